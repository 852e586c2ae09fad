package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// SimulationReader loads simulations.
type SimulationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Simulation, error)
}

// AssignmentFinder resolves the assignments that entitle a principal.
type AssignmentFinder interface {
	FindForStudent(ctx context.Context, simulationID, studentID uuid.UUID, classID *uuid.UUID) ([]model.Assignment, error)
	FindForReferenceCollaborator(ctx context.Context, simulationID, collaboratorID uuid.UUID) ([]model.Assignment, error)
}

// Access is the outcome of resolving a principal against a simulation.
// Assignment is nil when access comes from the role, authorship or a public
// simulation rather than from an assignment.
type Access struct {
	Allowed    bool
	Simulation *model.Simulation
	Assignment *model.Assignment
}

// AccessService decides who may see or take a simulation. It never writes.
type AccessService struct {
	sims        SimulationReader
	assignments AssignmentFinder
	now         func() time.Time
}

// NewAccessService creates a new AccessService.
func NewAccessService(sims SimulationReader, assignments AssignmentFinder) *AccessService {
	return &AccessService{sims: sims, assignments: assignments, now: time.Now}
}

// ResolveAccess decides whether p may access simulationID.
//
//   - ADMIN is always allowed.
//   - STUDENT is allowed by a direct, class or group assignment, or when the
//     simulation is public.
//   - COLLABORATOR is allowed as the simulation's creator or as reference
//     collaborator of a group the simulation is assigned to.
func (s *AccessService) ResolveAccess(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*Access, error) {
	if p == nil || p.UserID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	sim, err := s.sims.GetByID(ctx, simulationID)
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", notFound(err))
	}
	access := &Access{Simulation: sim}

	switch p.Role {
	case model.RoleAdmin:
		access.Allowed = true
		return access, nil

	case model.RoleStudent:
		found, err := s.assignments.FindForStudent(ctx, simulationID, p.UserID, p.ClassID)
		if err != nil {
			return nil, fmt.Errorf("find student assignments: %w", err)
		}
		if a := pickAssignment(found, s.now(), sim.IsPublic); a != nil {
			access.Allowed = true
			access.Assignment = a
			return access, nil
		}
		if sim.IsPublic {
			access.Allowed = true
			return access, nil
		}

	case model.RoleCollaborator:
		if sim.CreatedBy == p.UserID {
			access.Allowed = true
			return access, nil
		}
		found, err := s.assignments.FindForReferenceCollaborator(ctx, simulationID, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("find group assignments: %w", err)
		}
		if a := pickAssignment(found, s.now(), false); a != nil {
			access.Allowed = true
			access.Assignment = a
			return access, nil
		}

	default:
		return nil, ErrUnauthenticated
	}

	return access, ErrForbidden
}

// pickAssignment prefers an active assignment whose window contains now,
// then any active one, then whatever is left. For a public simulation only
// an open assignment is picked: one that expired or was closed never takes
// away public access.
func pickAssignment(list []model.Assignment, now time.Time, public bool) *model.Assignment {
	if len(list) == 0 {
		return nil
	}
	var active *model.Assignment
	for i := range list {
		a := &list[i]
		if a.Status != model.AssignmentStatusActive {
			continue
		}
		if CheckWindow(a, now) == nil {
			return a
		}
		if active == nil {
			active = a
		}
	}
	switch {
	case public:
		return nil
	case active != nil:
		return active
	}
	return &list[0]
}

// CheckWindow reports whether an attempt may happen at now under assignment a.
// A nil assignment has no window.
func CheckWindow(a *model.Assignment, now time.Time) error {
	if a == nil {
		return nil
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return ErrWindowNotOpen
	}
	if a.Status == model.AssignmentStatusClosed {
		return ErrWindowClosed
	}
	if a.EndDate != nil && !now.Before(*a.EndDate) {
		return ErrWindowClosed
	}
	return nil
}
