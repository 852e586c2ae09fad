package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/session"
)

// tickPersistEvery is how often, in timer seconds, a bare tick is also
// written to Postgres.
const tickPersistEvery = 30

// SessionStore keeps live attempt snapshots.
type SessionStore interface {
	Load(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error)
	Save(ctx context.Context, snap *session.Snapshot, persist bool) error
	Discard(ctx context.Context, simulationID, studentID uuid.UUID) error
}

// PaperSource returns the student paper of a simulation.
type PaperSource interface {
	Paper(ctx context.Context, sim *model.Simulation) (*model.SimulationPaper, error)
}

// Submitter stores the result of a packaged attempt.
type Submitter interface {
	SubmitLive(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest) (*model.Result, error)
}

// AttemptCounter counts a student's stored results.
type AttemptCounter interface {
	CountAttempts(ctx context.Context, simulationID, studentID uuid.UUID) (int, error)
}

// ActOutcome is the result of applying one action to a live attempt.
// Result is set once the attempt has been stored.
type ActOutcome struct {
	Snapshot *session.Snapshot
	Event    session.Event
	Result   *model.Result
}

// LiveSessionService runs exam sessions server side: it starts and resumes
// attempts, applies controller actions and hands submissions to the result
// service.
type LiveSessionService struct {
	access    *AccessService
	papers    PaperSource
	attempts  AttemptCounter
	submitter Submitter
	store     SessionStore
	now       func() time.Time
	log       zerolog.Logger
}

// NewLiveSessionService creates a new LiveSessionService.
func NewLiveSessionService(
	access *AccessService,
	papers PaperSource,
	attempts AttemptCounter,
	submitter Submitter,
	store SessionStore,
	log zerolog.Logger,
) *LiveSessionService {
	return &LiveSessionService{
		access:    access,
		papers:    papers,
		attempts:  attempts,
		submitter: submitter,
		store:     store,
		now:       time.Now,
		log:       log.With().Str("component", "live_session_service").Logger(),
	}
}

// Start begins an attempt, or resumes the one in progress.
func (s *LiveSessionService) Start(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*session.Snapshot, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if p.Role != model.RoleStudent {
		return nil, fmt.Errorf("%w: only students take simulations", ErrForbidden)
	}
	access, err := s.access.ResolveAccess(ctx, p, simulationID)
	if err != nil {
		return nil, err
	}
	sim := access.Simulation
	if sim.Status != model.SimulationStatusPublished {
		return nil, ErrNotPublished
	}

	existing, err := s.store.Load(ctx, simulationID, p.UserID)
	if err == nil {
		existing, err = s.catchUp(ctx, existing)
	}
	switch {
	case err == nil && !existing.State.Submitted:
		return existing, nil
	case err == nil:
		// A packaged attempt whose result never got stored: store it now.
		if _, err := s.finish(ctx, p, existing); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if err := CheckWindow(access.Assignment, now); err != nil {
		return nil, err
	}
	if !sim.IsRepeatable {
		n, err := s.attempts.CountAttempts(ctx, simulationID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: simulation already completed", ErrConflict)
		}
	}

	paper, err := s.papers.Paper(ctx, sim)
	if err != nil {
		return nil, fmt.Errorf("load paper: %w", err)
	}
	state, err := session.NewState(session.LayoutFromPaper(paper))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	snap := &session.Snapshot{
		SimulationID: simulationID,
		StudentID:    p.UserID,
		AttemptID:    uuid.New(),
		StartedAt:    now,
		State:        state,
		UpdatedAt:    now,
	}
	if access.Assignment != nil {
		id := access.Assignment.ID
		snap.AssignmentID = &id
	}
	if err := s.store.Save(ctx, snap, true); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.log.Info().
		Str("simulation_id", simulationID.String()).
		Str("student_id", p.UserID.String()).
		Str("attempt_id", snap.AttemptID.String()).
		Msg("Attempt started")
	return snap, nil
}

// Current returns the caller's attempt in progress.
func (s *LiveSessionService) Current(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*session.Snapshot, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if p.Role != model.RoleStudent {
		return nil, ErrForbidden
	}
	snap, err := s.store.Load(ctx, simulationID, p.UserID)
	if err != nil {
		return nil, err
	}
	next, _ := snap.CatchUp(s.now())
	return &next, nil
}

// catchUp charges the time the attempt spent without a connected client and
// saves the result when the clock moved.
func (s *LiveSessionService) catchUp(ctx context.Context, snap *session.Snapshot) (*session.Snapshot, error) {
	next, changed := snap.CatchUp(s.now())
	if !changed {
		return snap, nil
	}
	if err := s.store.Save(ctx, &next, true); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if next.State.Submitted {
		s.log.Info().
			Str("attempt_id", next.AttemptID.String()).
			Msg("Attempt ran out of time while disconnected")
	}
	return &next, nil
}

// Act applies one controller action and saves the new snapshot. When the
// action submits the attempt the result is stored; if that fails the snapshot
// keeps its packaged submission so the client can send SUBMIT again.
func (s *LiveSessionService) Act(ctx context.Context, p *model.Principal, snap *session.Snapshot, action session.Action) (*ActOutcome, error) {
	if p == nil || p.UserID != snap.StudentID {
		return nil, ErrForbidden
	}

	state, ev := session.Transition(snap.State, action)
	next := *snap
	next.State = state
	next.UpdatedAt = s.now()
	out := &ActOutcome{Snapshot: &next, Event: ev}

	persist := action.Type != session.ActionTick || ev != session.EventNone ||
		state.Timer.Remaining()%tickPersistEvery == 0
	if err := s.store.Save(ctx, &next, persist); err != nil {
		return out, fmt.Errorf("save session: %w", err)
	}

	if ev == session.EventSubmitted {
		res, err := s.finish(ctx, p, &next)
		if err != nil {
			return out, err
		}
		out.Result = res
	}
	return out, nil
}

// finish stores the packaged submission of snap and drops the live session.
func (s *LiveSessionService) finish(ctx context.Context, p *model.Principal, snap *session.Snapshot) (*model.Result, error) {
	sub := snap.State.Submission
	if sub == nil {
		return nil, fmt.Errorf("%w: attempt not packaged", ErrConflict)
	}

	started := snap.StartedAt
	req := &model.SubmitSimulationRequest{
		AttemptID:       snap.AttemptID,
		StartedAt:       &started,
		DurationSeconds: snap.Elapsed(),
		Answers:         make([]model.SubmittedAnswer, 0, len(sub.Answers)),
	}
	for _, a := range sub.Answers {
		req.Answers = append(req.Answers, model.SubmittedAnswer{
			QuestionID:       a.QuestionID,
			SelectedAnswerID: a.SelectedAnswerID,
			FreeText:         a.FreeText,
			TimeSpentSeconds: a.TimeSpentSeconds,
			Flagged:          a.Flagged,
		})
	}

	res, err := s.submitter.SubmitLive(ctx, p, snap.SimulationID, req)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	if err := s.store.Discard(ctx, snap.SimulationID, snap.StudentID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Failed to discard finished session")
	}
	return res, nil
}
