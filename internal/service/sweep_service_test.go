package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

type fakeContracts struct {
	list []model.Contract
}

func (f *fakeContracts) ListExpired(_ context.Context, now time.Time) ([]model.Contract, error) {
	var out []model.Contract
	for _, c := range f.list {
		if c.Status == model.ContractStatusSigned && c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContracts) MarkExpired(_ context.Context, id uuid.UUID) (bool, error) {
	for i := range f.list {
		if f.list[i].ID == id && f.list[i].Status == model.ContractStatusSigned {
			f.list[i].Status = model.ContractStatusExpired
			return true, nil
		}
	}
	return false, nil
}

type fakeUsers struct {
	inactive map[uuid.UUID]bool
}

func (f *fakeUsers) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	if f.inactive[id] {
		return false, nil
	}
	f.inactive[id] = true
	return true, nil
}

type sweepFixture struct {
	svc         *SweepService
	assignments *fakeAssignments
	results     *fakeResults
	contracts   *fakeContracts
	users       *fakeUsers
	notifier    *fakeNotifier
	now         time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	_, rdb := newTestRedis(t)
	f := &sweepFixture{
		assignments: newFakeAssignments(),
		results:     &fakeResults{},
		contracts:   &fakeContracts{},
		users:       &fakeUsers{inactive: make(map[uuid.UUID]bool)},
		notifier:    &fakeNotifier{},
		now:         time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC),
	}
	f.svc = NewSweepService(f.assignments, f.results, f.contracts, f.users, f.notifier, rdb, testLog)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *sweepFixture) groupAssignment(simID uuid.UUID, students ...uuid.UUID) model.Assignment {
	groupID := uuid.New()
	f.assignments.members[groupID] = students
	a := model.Assignment{
		ID:           uuid.New(),
		SimulationID: simID,
		TargetType:   model.TargetTypeGroup,
		GroupID:      ptrUUID(groupID),
		Status:       model.AssignmentStatusActive,
	}
	f.assignments.list = append(f.assignments.list, a)
	return a
}

func (f *sweepFixture) complete(simID, studentID uuid.UUID) {
	f.results.results = append(f.results.results, completedResult(simID, studentID, "x", 1, 1, f.now))
}

func TestCloseSimulations(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	s1, s2 := uuid.New(), uuid.New()

	// Ended yesterday.
	ended := f.groupAssignment(uuid.New(), s1)
	f.assignments.list[0].EndDate = ptrTime(f.now.Add(-24 * time.Hour))

	// Everyone done on a non-repeatable simulation.
	doneSim := uuid.New()
	done := f.groupAssignment(doneSim, s1, s2)
	f.complete(doneSim, s1)
	f.complete(doneSim, s2)

	// Half done.
	halfSim := uuid.New()
	f.groupAssignment(halfSim, s1, s2)
	f.complete(halfSim, s1)

	// Everyone done but repeatable.
	repSim := uuid.New()
	f.groupAssignment(repSim, s1)
	f.complete(repSim, s1)
	f.assignments.repeatable[repSim] = true

	// Nobody targeted.
	f.groupAssignment(uuid.New())

	report, err := f.svc.CloseSimulations(ctx, false)
	if err != nil {
		t.Fatalf("close sweep: %v", err)
	}
	if len(report.ClosedByDate) != 1 || report.ClosedByDate[0].AssignmentID != ended.ID {
		t.Fatalf("unexpected closed by date: %+v", report.ClosedByDate)
	}
	if len(report.ClosedByCompletion) != 1 || report.ClosedByCompletion[0].AssignmentID != done.ID {
		t.Fatalf("unexpected closed by completion: %+v", report.ClosedByCompletion)
	}
	if report.TotalClosed != 2 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(f.assignments.closed) != 2 {
		t.Fatalf("expected 2 assignments closed, got %d", len(f.assignments.closed))
	}

	again, err := f.svc.CloseSimulations(ctx, false)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.TotalClosed != 0 {
		t.Fatalf("second sweep closed %d more", again.TotalClosed)
	}
}

func TestCloseSimulationsDryRunWritesNothing(t *testing.T) {
	f := newSweepFixture(t)
	f.groupAssignment(uuid.New(), uuid.New())
	f.assignments.list[0].EndDate = ptrTime(f.now.Add(-time.Minute))

	report, err := f.svc.CloseSimulations(context.Background(), true)
	if err != nil {
		t.Fatalf("close sweep: %v", err)
	}
	if report.TotalClosed != 1 || !report.DryRun {
		t.Fatalf("unexpected dry run report: %+v", report)
	}
	if len(f.assignments.closed) != 0 || f.assignments.list[0].Status != model.AssignmentStatusActive {
		t.Fatalf("dry run closed an assignment")
	}
}

func TestSweepLockRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	svc := NewSweepService(newFakeAssignments(), &fakeResults{}, &fakeContracts{}, &fakeUsers{}, &fakeNotifier{}, rdb, testLog)

	if err := mr.Set(config.CacheKey.SweepLockKey(SweepCloseSimulations), "other"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	if _, err := svc.CloseSimulations(ctx, false); !errors.Is(err, ErrSweepRunning) {
		t.Fatalf("expected ErrSweepRunning, got %v", err)
	}
	if v, _ := mr.Get(config.CacheKey.SweepLockKey(SweepCloseSimulations)); v != "other" {
		t.Fatalf("a rejected sweep must not release the lock of the running one")
	}

	if _, err := svc.CloseSimulations(ctx, false); !errors.Is(err, ErrSweepRunning) {
		t.Fatalf("expected ErrSweepRunning again, got %v", err)
	}
	mr.Del(config.CacheKey.SweepLockKey(SweepCloseSimulations))
	if _, err := svc.CloseSimulations(ctx, false); err != nil {
		t.Fatalf("sweep after release: %v", err)
	}
	if mr.Exists(config.CacheKey.SweepLockKey(SweepCloseSimulations)) {
		t.Fatalf("finished sweep must release its lock")
	}
}

func TestExpireContracts(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t)
	u1, u2 := uuid.New(), uuid.New()
	f.contracts.list = []model.Contract{
		{ID: uuid.New(), UserID: u1, Status: model.ContractStatusSigned, ExpiresAt: ptrTime(f.now.Add(-time.Hour))},
		{ID: uuid.New(), UserID: u1, Status: model.ContractStatusSigned, ExpiresAt: ptrTime(f.now.Add(-48 * time.Hour))},
		{ID: uuid.New(), UserID: u2, Status: model.ContractStatusSigned, ExpiresAt: ptrTime(f.now.Add(time.Hour))},
		{ID: uuid.New(), UserID: u2, Status: model.ContractStatusPending},
	}

	dry, err := f.svc.ExpireContracts(ctx, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.TotalExpired != 2 || dry.DeactivatedUsers != 1 || len(f.users.inactive) != 0 {
		t.Fatalf("unexpected dry run: %+v", dry)
	}

	report, err := f.svc.ExpireContracts(ctx, false)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if report.TotalExpired != 2 || report.DeactivatedUsers != 1 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !f.users.inactive[u1] || f.users.inactive[u2] {
		t.Fatalf("wrong users deactivated: %v", f.users.inactive)
	}
	if f.notifier.count(model.NotificationContractExpired) != 2 {
		t.Fatalf("expected one notification per expired contract")
	}

	again, err := f.svc.ExpireContracts(ctx, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.TotalExpired != 0 {
		t.Fatalf("second run expired %d more", again.TotalExpired)
	}
}
