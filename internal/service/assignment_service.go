package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// AssignmentStore persists assignments.
type AssignmentStore interface {
	Create(ctx context.Context, a *model.Assignment) error
	ListBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Assignment, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID, classID *uuid.UUID) ([]model.Assignment, error)
	TargetedStudentIDs(ctx context.Context, a *model.Assignment) ([]uuid.UUID, error)
}

// UserDirectory resolves users, classes and groups.
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetGroup(ctx context.Context, id uuid.UUID) (*model.Group, error)
	ClassExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// AssignmentService assigns simulations and lists assignments.
type AssignmentService struct {
	store    AssignmentStore
	sims     SimulationReader
	access   *AccessService
	users    UserDirectory
	notifier Notifier
	log      zerolog.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(store AssignmentStore, sims SimulationReader, access *AccessService, users UserDirectory, notifier Notifier, log zerolog.Logger) *AssignmentService {
	return &AssignmentService{
		store:    store,
		sims:     sims,
		access:   access,
		users:    users,
		notifier: notifier,
		log:      log.With().Str("component", "assignment_service").Logger(),
	}
}

// Create assigns a published simulation to a student, a class or a group and
// notifies the targeted students.
func (s *AssignmentService) Create(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.CreateAssignmentRequest) (*model.Assignment, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}

	sim, err := s.sims.GetByID(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", notFound(err))
	}
	if p.Role != model.RoleAdmin && sim.CreatedBy != p.UserID {
		return nil, ErrForbidden
	}
	if sim.Status != model.SimulationStatusPublished {
		return nil, ErrNotPublished
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		return nil, fmt.Errorf("%w: end date must follow start date", ErrValidation)
	}

	a := &model.Assignment{
		SimulationID:    simulationID,
		SimulationTitle: sim.Title,
		TargetType:      req.TargetType,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Status:          model.AssignmentStatusActive,
		AssignedBy:      p.UserID,
	}
	target := req.TargetID
	if err := s.checkTarget(ctx, req.TargetType, target); err != nil {
		return nil, err
	}
	switch req.TargetType {
	case model.TargetTypeStudent:
		a.StudentID = &target
	case model.TargetTypeClass:
		a.ClassID = &target
	case model.TargetTypeGroup:
		a.GroupID = &target
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	students, err := s.store.TargetedStudentIDs(ctx, a)
	if err != nil {
		s.log.Warn().Err(err).Str("assignment_id", a.ID.String()).Msg("Failed to resolve targeted students")
		return a, nil
	}
	n := model.Notification{
		Type:  model.NotificationSimulationAssigned,
		Title: "Nuova simulazione",
		Body:  assignedBody(sim.Title, a.StartDate),
		Data:  map[string]string{"simulation_id": sim.ID.String(), "assignment_id": a.ID.String()},
	}
	if err := s.notifier.Notify(ctx, students, n); err != nil {
		s.log.Warn().Err(err).Msg("Failed to notify assignment")
	}
	return a, nil
}

func assignedBody(title string, start *time.Time) string {
	if start == nil {
		return fmt.Sprintf("Ti è stata assegnata la simulazione \"%s\".", title)
	}
	return fmt.Sprintf("Ti è stata assegnata la simulazione \"%s\" a partire dal %s.",
		title, start.In(romeLocation()).Format("02/01/2006 15:04"))
}

func (s *AssignmentService) checkTarget(ctx context.Context, t model.TargetType, id uuid.UUID) error {
	switch t {
	case model.TargetTypeStudent:
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get student: %w", notFound(err))
		}
		if u.Role != model.RoleStudent {
			return fmt.Errorf("%w: target is not a student", ErrValidation)
		}
	case model.TargetTypeClass:
		ok, err := s.users.ClassExists(ctx, id)
		if err != nil {
			return fmt.Errorf("check class: %w", err)
		}
		if !ok {
			return ErrNotFound
		}
	case model.TargetTypeGroup:
		if _, err := s.users.GetGroup(ctx, id); err != nil {
			return fmt.Errorf("get group: %w", notFound(err))
		}
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrValidation, t)
	}
	return nil
}

// ListForStudent returns the assignments reaching a student. Students may only
// list their own; staff may list anyone's.
func (s *AssignmentService) ListForStudent(ctx context.Context, p *model.Principal, studentID uuid.UUID) ([]model.Assignment, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	classID := p.ClassID
	switch {
	case p.Role == model.RoleStudent:
		if studentID != p.UserID {
			return nil, ErrForbidden
		}
	case p.Role.IsStaff():
		u, err := s.users.GetByID(ctx, studentID)
		if err != nil {
			return nil, fmt.Errorf("get student: %w", notFound(err))
		}
		classID = u.ClassID
	default:
		return nil, ErrForbidden
	}

	list, err := s.store.ListForStudent(ctx, studentID, classID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if list == nil {
		list = []model.Assignment{}
	}
	return list, nil
}

// ListBySimulation returns every assignment of a simulation to entitled staff.
func (s *AssignmentService) ListBySimulation(ctx context.Context, p *model.Principal, simulationID uuid.UUID) ([]model.Assignment, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if !p.Role.IsStaff() {
		return nil, ErrForbidden
	}
	if _, err := s.access.ResolveAccess(ctx, p, simulationID); err != nil {
		return nil, err
	}
	list, err := s.store.ListBySimulation(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if list == nil {
		list = []model.Assignment{}
	}
	return list, nil
}

// romeLocation is the school's wall clock for user-facing dates.
var romeLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		return time.UTC
	}
	return loc
})
