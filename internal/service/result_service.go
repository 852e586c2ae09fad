package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// submitGrace lets a submission racing the end of the window through.
const submitGrace = 2 * time.Minute

// maxClockSkew is how far ahead of the server a client's started_at may be.
const maxClockSkew = time.Minute

// maxAttemptRetries bounds retries when two attempts of a repeatable
// simulation race for the same attempt number.
const maxAttemptRetries = 3

// ResultStore persists results.
type ResultStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error)
	GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
	GetByAttempt(ctx context.Context, simulationID, studentID uuid.UUID, attempt int) (*model.Result, error)
	CountAttempts(ctx context.Context, simulationID, studentID uuid.UUID) (int, error)
	Insert(ctx context.Context, res *model.Result) (*model.Result, bool, error)
	ListCompletedBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Result, error)
	UpdateReview(ctx context.Context, res *model.Result) error
}

// QuestionLister loads the questions of a simulation.
type QuestionLister interface {
	ListQuestions(ctx context.Context, simulationID uuid.UUID) ([]model.Question, error)
}

// Notifier records in-app notifications and fans them out as push.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uuid.UUID, n model.Notification) error
}

// CacheInvalidator drops cached data of a simulation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, simulationID uuid.UUID) error
}

// SessionDiscarder drops the live session of a finished attempt.
type SessionDiscarder interface {
	Discard(ctx context.Context, simulationID, studentID uuid.UUID) error
}

// ResultService scores submissions and stores results.
type ResultService struct {
	access      *AccessService
	questions   QuestionLister
	results     ResultStore
	notifier    Notifier
	leaderboard CacheInvalidator
	sessions    SessionDiscarder
	now         func() time.Time
	log         zerolog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(
	access *AccessService,
	questions QuestionLister,
	results ResultStore,
	notifier Notifier,
	leaderboard CacheInvalidator,
	sessions SessionDiscarder,
	log zerolog.Logger,
) *ResultService {
	return &ResultService{
		access:      access,
		questions:   questions,
		results:     results,
		notifier:    notifier,
		leaderboard: leaderboard,
		sessions:    sessions,
		now:         time.Now,
		log:         log.With().Str("component", "result_service").Logger(),
	}
}

// Submit scores and stores an attempt. Submitting an attempt that already has
// a result returns the stored result unchanged, and for non-repeatable
// simulations any second attempt returns the first one.
func (s *ResultService) Submit(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest) (*model.Result, error) {
	return s.submit(ctx, p, simulationID, req, false)
}

// SubmitLive stores an attempt run by the live session service. Its start
// time is the server's, so the window is checked against the start of the
// attempt and a late submission of an attempt started in time is kept.
func (s *ResultService) SubmitLive(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest) (*model.Result, error) {
	if req.StartedAt == nil {
		return nil, fmt.Errorf("%w: live attempt without start time", ErrValidation)
	}
	return s.submit(ctx, p, simulationID, req, true)
}

func (s *ResultService) submit(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest, live bool) (*model.Result, error) {
	access, err := s.access.ResolveAccess(ctx, p, simulationID)
	if err != nil {
		return nil, err
	}
	if p.Role != model.RoleStudent {
		return nil, fmt.Errorf("%w: only students submit attempts", ErrForbidden)
	}
	sim := access.Simulation

	// Idempotency comes first so a retry after the window closed still works.
	existing, err := s.results.GetByAttemptID(ctx, req.AttemptID)
	switch {
	case err == nil:
		if existing.StudentID != p.UserID || existing.SimulationID != simulationID {
			return nil, fmt.Errorf("%w: attempt id already used", ErrConflict)
		}
		return existing, nil
	case !errors.Is(notFound(err), ErrNotFound):
		return nil, fmt.Errorf("get result by attempt: %w", err)
	}
	if !sim.IsRepeatable {
		first, err := s.results.GetByAttempt(ctx, simulationID, p.UserID, 1)
		if err == nil {
			return first, nil
		}
		if !errors.Is(notFound(err), ErrNotFound) {
			return nil, fmt.Errorf("get first attempt: %w", err)
		}
	}

	if sim.Status != model.SimulationStatusPublished {
		return nil, ErrNotPublished
	}
	now := s.now()
	if live {
		err = checkStartedInWindow(access.Assignment, *req.StartedAt)
	} else {
		err = checkSubmitWindow(access.Assignment, now)
	}
	if err != nil {
		return nil, err
	}
	if req.StartedAt != nil && req.StartedAt.After(now.Add(maxClockSkew)) {
		return nil, fmt.Errorf("%w: started_at is in the future", ErrValidation)
	}

	questions, err := s.questions.ListQuestions(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	scored, err := Score(sim, questions, req.Answers)
	if err != nil {
		return nil, err
	}

	res := &model.Result{
		SimulationID:    simulationID,
		StudentID:       p.UserID,
		StudentName:     p.Name,
		AttemptID:       req.AttemptID,
		Answers:         scored.Answers,
		CorrectAnswers:  scored.CorrectAnswers,
		WrongAnswers:    scored.WrongAnswers,
		BlankAnswers:    scored.BlankAnswers,
		PendingReview:   scored.PendingReview,
		TotalScore:      scored.TotalScore,
		MaxScore:        scored.MaxScore,
		PercentageScore: scored.PercentageScore,
		Passed:          scored.Passed,
		DurationSeconds: submittedDuration(req, now),
		StartedAt:       req.StartedAt,
		CompletedAt:     &now,
	}
	if access.Assignment != nil {
		res.AssignmentID = &access.Assignment.ID
	}

	stored, created, err := s.insert(ctx, sim, res)
	if err != nil {
		return nil, err
	}
	if !created {
		return stored, nil
	}

	s.afterSubmit(ctx, sim, stored, p)
	return stored, nil
}

// insert stores res, picking the next attempt number for repeatable
// simulations and retrying when a concurrent attempt took it.
func (s *ResultService) insert(ctx context.Context, sim *model.Simulation, res *model.Result) (*model.Result, bool, error) {
	for i := 0; i < maxAttemptRetries; i++ {
		res.Attempt = 1
		if sim.IsRepeatable {
			n, err := s.results.CountAttempts(ctx, sim.ID, res.StudentID)
			if err != nil {
				return nil, false, fmt.Errorf("count attempts: %w", err)
			}
			res.Attempt = n + 1
		}

		stored, created, err := s.results.Insert(ctx, res)
		if err != nil {
			return nil, false, fmt.Errorf("insert result: %w", err)
		}
		if created || stored.AttemptID == res.AttemptID || !sim.IsRepeatable {
			return stored, created, nil
		}
	}
	return nil, false, fmt.Errorf("%w: could not allocate an attempt number", ErrConflict)
}

func (s *ResultService) afterSubmit(ctx context.Context, sim *model.Simulation, res *model.Result, p *model.Principal) {
	log := s.log.With().
		Str("simulation_id", sim.ID.String()).
		Str("student_id", res.StudentID.String()).
		Str("result_id", res.ID.String()).
		Logger()
	log.Info().Float64("score", res.TotalScore).Int("attempt", res.Attempt).Msg("Result stored")

	if err := s.leaderboard.Invalidate(ctx, sim.ID); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
	if s.sessions != nil {
		if err := s.sessions.Discard(ctx, sim.ID, res.StudentID); err != nil {
			log.Warn().Err(err).Msg("Failed to discard live session")
		}
	}
	if res.PendingReview > 0 {
		n := model.Notification{
			Type:  model.NotificationReviewPending,
			Title: "Correzione richiesta",
			Body: fmt.Sprintf("%s ha consegnato \"%s\": %d risposte aperte da correggere.",
				displayName(p), sim.Title, res.PendingReview),
			Data: map[string]string{"simulation_id": sim.ID.String(), "result_id": res.ID.String()},
		}
		if err := s.notifier.Notify(ctx, []uuid.UUID{sim.CreatedBy}, n); err != nil {
			log.Warn().Err(err).Msg("Failed to notify pending review")
		}
	}
}

// Review grades the open-text answers of a result and recomputes its score.
func (s *ResultService) Review(ctx context.Context, p *model.Principal, resultID uuid.UUID, req *model.ReviewResultRequest) (*model.Result, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}

	res, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", notFound(err))
	}
	access, err := s.access.ResolveAccess(ctx, p, res.SimulationID)
	if err != nil {
		return nil, err
	}
	sim := access.Simulation

	questions, err := s.questions.ListQuestions(ctx, res.SimulationID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	scored, err := Rescore(sim, questions, res.Answers, req.Awards)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res.Answers = scored.Answers
	res.CorrectAnswers = scored.CorrectAnswers
	res.WrongAnswers = scored.WrongAnswers
	res.BlankAnswers = scored.BlankAnswers
	res.PendingReview = scored.PendingReview
	res.TotalScore = scored.TotalScore
	res.PercentageScore = scored.PercentageScore
	res.Passed = scored.Passed
	res.ReviewedAt = &now
	res.ReviewedBy = &p.UserID

	if err := s.results.UpdateReview(ctx, res); err != nil {
		return nil, fmt.Errorf("update review: %w", notFound(err))
	}

	if err := s.leaderboard.Invalidate(ctx, sim.ID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
	n := model.Notification{
		Type:  model.NotificationResultReviewed,
		Title: "Simulazione corretta",
		Body: fmt.Sprintf("La tua prova \"%s\" è stata corretta: punteggio %.2f/%.2f.",
			sim.Title, res.TotalScore, res.MaxScore),
		Data: map[string]string{"simulation_id": sim.ID.String(), "result_id": res.ID.String()},
	}
	if err := s.notifier.Notify(ctx, []uuid.UUID{res.StudentID}, n); err != nil {
		s.log.Warn().Err(err).Msg("Failed to notify reviewed result")
	}
	return res, nil
}

// Get returns one result. Students only see their own.
func (s *ResultService) Get(ctx context.Context, p *model.Principal, resultID uuid.UUID) (*model.Result, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	res, err := s.results.GetByID(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", notFound(err))
	}
	if p.Role == model.RoleStudent {
		if res.StudentID != p.UserID {
			return nil, ErrForbidden
		}
		return res, nil
	}
	if _, err := s.access.ResolveAccess(ctx, p, res.SimulationID); err != nil {
		return nil, err
	}
	return res, nil
}

// ListBySimulation returns all completed results of a simulation to staff.
func (s *ResultService) ListBySimulation(ctx context.Context, p *model.Principal, simulationID uuid.UUID) ([]model.Result, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if _, err := s.access.ResolveAccess(ctx, p, simulationID); err != nil {
		return nil, err
	}
	return s.results.ListCompletedBySimulation(ctx, simulationID)
}

func checkSubmitWindow(a *model.Assignment, now time.Time) error {
	err := CheckWindow(a, now)
	if errors.Is(err, ErrWindowClosed) && a.EndDate != nil && now.Before(a.EndDate.Add(submitGrace)) {
		return nil
	}
	return err
}

// checkStartedInWindow ignores the assignment status: a sweep may close the
// assignment while an attempt started in time is still running.
func checkStartedInWindow(a *model.Assignment, started time.Time) error {
	if a == nil {
		return nil
	}
	if a.StartDate != nil && started.Before(*a.StartDate) {
		return ErrWindowNotOpen
	}
	if a.EndDate != nil && !started.Before(*a.EndDate) {
		return ErrWindowClosed
	}
	return nil
}

// submittedDuration bounds the client's duration by the time elapsed since
// started_at, and derives it from started_at when the client sends none.
func submittedDuration(req *model.SubmitSimulationRequest, now time.Time) int {
	if req.StartedAt == nil {
		return max(req.DurationSeconds, 0)
	}
	elapsed := int(max(now.Sub(*req.StartedAt), 0) / time.Second)
	if req.DurationSeconds > 0 && req.DurationSeconds < elapsed {
		return req.DurationSeconds
	}
	return elapsed
}

func displayName(p *model.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	return "Uno studente"
}
