package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// sweepLockTTL bounds how long a crashed sweep keeps the lock.
const sweepLockTTL = 10 * time.Minute

// Sweep names, also used as lock keys.
const (
	SweepCloseSimulations = "close-simulations"
	SweepExpireContracts  = "expire-contracts"
)

// SweepAssignments is the assignment access the close sweep needs.
type SweepAssignments interface {
	ListActive(ctx context.Context) ([]model.Assignment, map[uuid.UUID]bool, error)
	TargetedStudentIDs(ctx context.Context, a *model.Assignment) ([]uuid.UUID, error)
	Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// CompletionCounter counts the targeted students who completed a simulation.
type CompletionCounter interface {
	CountCompletedStudents(ctx context.Context, simulationID uuid.UUID, studentIDs []uuid.UUID) (int, error)
}

// ContractStore is the contract access the expiry sweep needs.
type ContractStore interface {
	ListExpired(ctx context.Context, now time.Time) ([]model.Contract, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
}

// UserDeactivator disables accounts.
type UserDeactivator interface {
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
}

// ClosedAssignment describes one assignment closed by a sweep.
type ClosedAssignment struct {
	AssignmentID uuid.UUID `json:"assignment_id"`
	SimulationID uuid.UUID `json:"simulation_id"`
	Title        string    `json:"title"`
}

// CloseSimulationsReport is the outcome of a close sweep.
type CloseSimulationsReport struct {
	DryRun             bool               `json:"dry_run"`
	ClosedByDate       []ClosedAssignment `json:"closed_by_date"`
	ClosedByCompletion []ClosedAssignment `json:"closed_by_completion"`
	TotalClosed        int                `json:"total_closed"`
	Errors             []string           `json:"errors"`
}

// ExpiredContract describes one contract moved to EXPIRED.
type ExpiredContract struct {
	ContractID uuid.UUID `json:"contract_id"`
	UserID     uuid.UUID `json:"user_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}

// ExpireContractsReport is the outcome of a contract expiry sweep.
type ExpireContractsReport struct {
	DryRun           bool              `json:"dry_run"`
	Expired          []ExpiredContract `json:"expired"`
	DeactivatedUsers int               `json:"deactivated_users"`
	TotalExpired     int               `json:"total_expired"`
	Errors           []string          `json:"errors"`
}

// SweepService runs the periodic lifecycle sweeps. Per-item failures are
// collected in the report and never stop the sweep.
type SweepService struct {
	assignments SweepAssignments
	completions CompletionCounter
	contracts   ContractStore
	users       UserDeactivator
	notifier    Notifier
	rdb         *redis.Client
	now         func() time.Time
	log         zerolog.Logger
}

// NewSweepService creates a new SweepService.
func NewSweepService(
	assignments SweepAssignments,
	completions CompletionCounter,
	contracts ContractStore,
	users UserDeactivator,
	notifier Notifier,
	rdb *redis.Client,
	log zerolog.Logger,
) *SweepService {
	return &SweepService{
		assignments: assignments,
		completions: completions,
		contracts:   contracts,
		users:       users,
		notifier:    notifier,
		rdb:         rdb,
		now:         time.Now,
		log:         log.With().Str("component", "sweep_service").Logger(),
	}
}

// lock takes the Redis lock of a sweep. The returned func releases it.
func (s *SweepService) lock(ctx context.Context, sweep string) (func(), error) {
	key := config.CacheKey.SweepLockKey(sweep)
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, key, token, sweepLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: sweep lock: %v", ErrTransient, err)
	}
	if !ok {
		return nil, ErrSweepRunning
	}
	return func() {
		// Only release a lock we still own.
		if v, err := s.rdb.Get(context.Background(), key).Result(); err == nil && v == token {
			s.rdb.Del(context.Background(), key)
		}
	}, nil
}

// CloseSimulations closes ACTIVE assignments whose end date has passed, and
// assignments of non-repeatable simulations every targeted student completed.
func (s *SweepService) CloseSimulations(ctx context.Context, dryRun bool) (*CloseSimulationsReport, error) {
	unlock, err := s.lock(ctx, SweepCloseSimulations)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, repeatable, err := s.assignments.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}

	now := s.now()
	report := &CloseSimulationsReport{
		DryRun:             dryRun,
		ClosedByDate:       []ClosedAssignment{},
		ClosedByCompletion: []ClosedAssignment{},
		Errors:             []string{},
	}

	for i := range active {
		a := &active[i]
		item := ClosedAssignment{AssignmentID: a.ID, SimulationID: a.SimulationID, Title: a.SimulationTitle}

		if a.EndDate != nil && !a.EndDate.After(now) {
			if s.close(ctx, a, now, dryRun, report) {
				report.ClosedByDate = append(report.ClosedByDate, item)
			}
			continue
		}
		if repeatable[a.SimulationID] {
			continue
		}

		done, err := s.allCompleted(ctx, a)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("assignment %s: %v", a.ID, err))
			continue
		}
		if done && s.close(ctx, a, now, dryRun, report) {
			report.ClosedByCompletion = append(report.ClosedByCompletion, item)
		}
	}

	report.TotalClosed = len(report.ClosedByDate) + len(report.ClosedByCompletion)
	s.log.Info().
		Bool("dry_run", dryRun).
		Int("by_date", len(report.ClosedByDate)).
		Int("by_completion", len(report.ClosedByCompletion)).
		Int("errors", len(report.Errors)).
		Msg("Close sweep finished")
	return report, nil
}

// allCompleted reports whether every targeted student has a result. An
// assignment targeting nobody is never closed by completion.
func (s *SweepService) allCompleted(ctx context.Context, a *model.Assignment) (bool, error) {
	students, err := s.assignments.TargetedStudentIDs(ctx, a)
	if err != nil {
		return false, fmt.Errorf("targeted students: %w", err)
	}
	if len(students) == 0 {
		return false, nil
	}
	done, err := s.completions.CountCompletedStudents(ctx, a.SimulationID, students)
	if err != nil {
		return false, fmt.Errorf("count completions: %w", err)
	}
	return done >= len(students), nil
}

func (s *SweepService) close(ctx context.Context, a *model.Assignment, now time.Time, dryRun bool, report *CloseSimulationsReport) bool {
	if dryRun {
		return true
	}
	closed, err := s.assignments.Close(ctx, a.ID, now)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("assignment %s: close: %v", a.ID, err))
		return false
	}
	return closed
}

// ExpireContracts moves signed contracts past their expiry to EXPIRED,
// deactivates their users and notifies them.
func (s *SweepService) ExpireContracts(ctx context.Context, dryRun bool) (*ExpireContractsReport, error) {
	unlock, err := s.lock(ctx, SweepExpireContracts)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	contracts, err := s.contracts.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired contracts: %w", err)
	}

	report := &ExpireContractsReport{
		DryRun:  dryRun,
		Expired: []ExpiredContract{},
		Errors:  []string{},
	}
	deactivated := make(map[uuid.UUID]bool)

	for _, c := range contracts {
		item := ExpiredContract{ContractID: c.ID, UserID: c.UserID, ExpiredAt: *c.ExpiresAt}
		if dryRun {
			report.Expired = append(report.Expired, item)
			deactivated[c.UserID] = true
			continue
		}

		moved, err := s.contracts.MarkExpired(ctx, c.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("contract %s: %v", c.ID, err))
			continue
		}
		if !moved {
			continue
		}
		report.Expired = append(report.Expired, item)

		if !deactivated[c.UserID] {
			ok, err := s.users.Deactivate(ctx, c.UserID)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("user %s: deactivate: %v", c.UserID, err))
				continue
			}
			if ok {
				deactivated[c.UserID] = true
			}
		}

		err = s.notifier.Notify(ctx, []uuid.UUID{c.UserID}, model.Notification{
			Type:  model.NotificationContractExpired,
			Title: "Contratto scaduto",
			Body:  "Il tuo contratto è scaduto e l'accesso è stato sospeso.",
			Data:  map[string]string{"contract_id": c.ID.String()},
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("user %s: notify: %v", c.UserID, err))
		}
	}

	report.TotalExpired = len(report.Expired)
	report.DeactivatedUsers = len(deactivated)
	s.log.Info().
		Bool("dry_run", dryRun).
		Int("expired", report.TotalExpired).
		Int("deactivated_users", report.DeactivatedUsers).
		Int("errors", len(report.Errors)).
		Msg("Contract sweep finished")
	return report, nil
}
