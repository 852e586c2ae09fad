package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// SimulationStore persists simulation templates.
type SimulationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Simulation, error)
	ListQuestions(ctx context.Context, simulationID uuid.UUID) ([]model.Question, error)
	List(ctx context.Context, createdBy *uuid.UUID, status model.SimulationStatus, limit, offset int) ([]model.Simulation, int, error)
	ListPublished(ctx context.Context) ([]model.Simulation, error)
	Create(ctx context.Context, s *model.Simulation, questions [][]model.Question) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.SimulationStatus) error
}

// SimulationDetail is a simulation with its questions, for staff.
type SimulationDetail struct {
	*model.Simulation
	Questions []model.Question `json:"questions"`
}

// SimulationService handles simulation authoring and the student paper cache.
type SimulationService struct {
	store  SimulationStore
	access *AccessService
	rdb    *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	log    zerolog.Logger
}

// NewSimulationService creates a new SimulationService.
func NewSimulationService(store SimulationStore, access *AccessService, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *SimulationService {
	return &SimulationService{
		store:  store,
		access: access,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "simulation_service").Logger(),
	}
}

// Create authors a new DRAFT simulation with its sections and questions.
func (s *SimulationService) Create(ctx context.Context, p *model.Principal, req *model.CreateSimulationRequest) (*model.Simulation, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}

	sim := &model.Simulation{
		Title:        req.Title,
		Type:         req.Type,
		PassingScore: req.PassingScore,
		WrongPenalty: req.WrongPenalty,
		IsOfficial:   req.IsOfficial,
		IsPublic:     req.IsPublic,
		IsRepeatable: req.IsRepeatable,
		Status:       model.SimulationStatusDraft,
		CreatedBy:    p.UserID,
	}
	questions := make([][]model.Question, 0, len(req.Sections))
	for i, secReq := range req.Sections {
		sim.Sections = append(sim.Sections, model.Section{Name: secReq.Name, DurationMinutes: secReq.DurationMinutes})
		sim.DurationMinutes += secReq.DurationMinutes

		secQuestions := make([]model.Question, 0, len(secReq.Questions))
		for j, qReq := range secReq.Questions {
			if err := validateQuestion(&qReq); err != nil {
				return nil, fmt.Errorf("%w: section %d question %d: %v", ErrValidation, i+1, j+1, err)
			}
			weight := qReq.Weight
			if weight == 0 {
				weight = 1
			}
			secQuestions = append(secQuestions, model.Question{
				Type:            qReq.Type,
				Text:            qReq.Text,
				Options:         qReq.Options,
				CorrectAnswerID: qReq.CorrectAnswerID,
				Weight:          weight,
			})
			sim.TotalQuestions++
		}
		questions = append(questions, secQuestions)
	}

	if err := s.store.Create(ctx, sim, questions); err != nil {
		return nil, fmt.Errorf("create simulation: %w", err)
	}
	s.log.Info().Str("simulation_id", sim.ID.String()).Int("questions", sim.TotalQuestions).Msg("Simulation created")
	return sim, nil
}

func validateQuestion(q *model.CreateQuestionRequest) error {
	switch q.Type {
	case model.QuestionTypeMultipleChoice:
		if len(q.Options) < 2 {
			return errors.New("multiple choice needs at least two options")
		}
		seen := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if seen[o.ID] {
				return fmt.Errorf("duplicate option id %q", o.ID)
			}
			seen[o.ID] = true
		}
		if !seen[q.CorrectAnswerID] {
			return fmt.Errorf("correct answer %q is not an option", q.CorrectAnswerID)
		}
	case model.QuestionTypeOpenText:
		if q.CorrectAnswerID != "" {
			return errors.New("open text questions have no correct answer")
		}
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}

// Get returns a simulation with its questions to staff entitled to it.
func (s *SimulationService) Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*SimulationDetail, error) {
	if p != nil && !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	access, err := s.access.ResolveAccess(ctx, p, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return &SimulationDetail{Simulation: access.Simulation, Questions: questions}, nil
}

// List returns simulations visible to staff. Collaborators see their own.
func (s *SimulationService) List(ctx context.Context, p *model.Principal, status model.SimulationStatus, page, perPage int) ([]model.Simulation, *response.Pagination, error) {
	if p == nil {
		return nil, nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, nil, ErrForbidden
	}
	var createdBy *uuid.UUID
	if p.Role == model.RoleCollaborator {
		createdBy = &p.UserID
	}
	page, perPage = normalizePage(page, perPage)
	sims, total, err := s.store.List(ctx, createdBy, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list simulations: %w", err)
	}
	if sims == nil {
		sims = []model.Simulation{}
	}
	return sims, response.NewPagination(page, perPage, total), nil
}

// owned loads a simulation the caller may change: admins, or its creator.
func (s *SimulationService) owned(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Simulation, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	sim, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", notFound(err))
	}
	if p.Role != model.RoleAdmin && sim.CreatedBy != p.UserID {
		return nil, ErrForbidden
	}
	return sim, nil
}

// Publish makes a DRAFT simulation available and warms its paper cache.
func (s *SimulationService) Publish(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Simulation, error) {
	sim, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if sim.Status != model.SimulationStatusDraft {
		return nil, ErrNotDraft
	}
	if err := s.store.UpdateStatus(ctx, id, model.SimulationStatusPublished); err != nil {
		return nil, fmt.Errorf("publish: %w", notFound(err))
	}
	sim.Status = model.SimulationStatusPublished

	if _, err := s.loadPaper(ctx, sim); err != nil {
		s.log.Warn().Err(err).Str("simulation_id", id.String()).Msg("Failed to warm paper cache")
	}
	return sim, nil
}

// Archive retires a PUBLISHED simulation and drops its paper cache.
func (s *SimulationService) Archive(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Simulation, error) {
	sim, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if sim.Status != model.SimulationStatusPublished {
		return nil, ErrNotPublished
	}
	if err := s.store.UpdateStatus(ctx, id, model.SimulationStatusArchived); err != nil {
		return nil, fmt.Errorf("archive: %w", notFound(err))
	}
	sim.Status = model.SimulationStatusArchived

	if err := s.rdb.Del(ctx, config.CacheKey.SimulationPaperKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to drop paper cache")
	}
	return sim, nil
}

// GetPaper returns the student paper to an entitled principal. Students only
// get papers of published simulations.
func (s *SimulationService) GetPaper(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.SimulationPaper, error) {
	access, err := s.access.ResolveAccess(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.Role == model.RoleStudent && access.Simulation.Status != model.SimulationStatusPublished {
		return nil, ErrNotPublished
	}
	return s.loadPaper(ctx, access.Simulation)
}

// Paper returns the cached paper of a simulation without access checks.
func (s *SimulationService) Paper(ctx context.Context, sim *model.Simulation) (*model.SimulationPaper, error) {
	return s.loadPaper(ctx, sim)
}

// loadPaper reads the paper from Redis, rebuilding it from Postgres on a miss.
// Concurrent misses for the same simulation share one rebuild.
func (s *SimulationService) loadPaper(ctx context.Context, sim *model.Simulation) (*model.SimulationPaper, error) {
	key := config.CacheKey.SimulationPaperKey(sim.ID.String())
	if paper, ok := s.cachedPaper(ctx, key); ok {
		return paper, nil
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		// Another caller may have filled the cache meanwhile.
		if paper, ok := s.cachedPaper(ctx, key); ok {
			return paper, nil
		}

		questions, err := s.store.ListQuestions(ctx, sim.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		paper := BuildPaper(sim, questions)

		if data, err := json.Marshal(paper); err == nil {
			if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Msg("Failed to cache paper")
			}
		}
		return paper, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SimulationPaper), nil
}

func (s *SimulationService) cachedPaper(ctx context.Context, key string) (*model.SimulationPaper, bool) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Redis read failed, building paper from Postgres")
		}
		return nil, false
	}
	var paper model.SimulationPaper
	if err := json.Unmarshal(raw, &paper); err != nil {
		return nil, false
	}
	return &paper, true
}

// BuildPaper renders the student-facing paper: sections in order, questions
// without correct answers.
func BuildPaper(sim *model.Simulation, questions []model.Question) *model.SimulationPaper {
	bySection := make(map[uuid.UUID][]model.QuestionForStudent, len(sim.Sections))
	for _, q := range questions {
		options := q.Options
		if options == nil {
			options = []model.AnswerOption{}
		}
		bySection[q.SectionID] = append(bySection[q.SectionID], model.QuestionForStudent{
			ID: q.ID, Type: q.Type, Text: q.Text, Options: options,
		})
	}

	paper := &model.SimulationPaper{
		SimulationID:    sim.ID,
		Title:           sim.Title,
		DurationMinutes: sim.DurationMinutes,
		Sections:        make([]model.PaperSection, 0, len(sim.Sections)),
	}
	for _, sec := range sim.Sections {
		paper.Sections = append(paper.Sections, model.PaperSection{
			ID:              sec.ID,
			Name:            sec.Name,
			DurationMinutes: sec.DurationMinutes,
			Questions:       bySection[sec.ID],
		})
	}
	return paper
}

// WarmCache preloads the papers of every published simulation.
func (s *SimulationService) WarmCache(ctx context.Context) error {
	sims, err := s.store.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}
	warmed := 0
	for i := range sims {
		sim, err := s.store.GetByID(ctx, sims[i].ID)
		if err != nil {
			s.log.Warn().Err(err).Str("simulation_id", sims[i].ID.String()).Msg("Skipping simulation")
			continue
		}
		if _, err := s.loadPaper(ctx, sim); err != nil {
			s.log.Warn().Err(err).Str("simulation_id", sim.ID.String()).Msg("Failed to warm paper")
			continue
		}
		warmed++
	}
	s.log.Info().Int("count", warmed).Msg("Paper cache warmed")
	return nil
}
