package service

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

var testLog = zerolog.Nop()

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// ─── Simulations ───

type fakeSimulations struct {
	sims      map[uuid.UUID]*model.Simulation
	questions map[uuid.UUID][]model.Question
}

func newFakeSimulations() *fakeSimulations {
	return &fakeSimulations{
		sims:      make(map[uuid.UUID]*model.Simulation),
		questions: make(map[uuid.UUID][]model.Question),
	}
}

func (f *fakeSimulations) add(sim *model.Simulation, questions ...model.Question) {
	f.sims[sim.ID] = sim
	f.questions[sim.ID] = questions
}

func (f *fakeSimulations) GetByID(_ context.Context, id uuid.UUID) (*model.Simulation, error) {
	sim, ok := f.sims[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *sim
	return &cp, nil
}

func (f *fakeSimulations) ListQuestions(_ context.Context, id uuid.UUID) ([]model.Question, error) {
	return f.questions[id], nil
}

// ─── Assignments ───

type fakeAssignments struct {
	list    []model.Assignment
	members map[uuid.UUID][]uuid.UUID // group → students
	leads   map[uuid.UUID]uuid.UUID   // group → reference collaborator
	classes map[uuid.UUID][]uuid.UUID // class → students
	// repeatable flags simulations for ListActive.
	repeatable map[uuid.UUID]bool
	closed     []uuid.UUID
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{
		members: make(map[uuid.UUID][]uuid.UUID),
		leads:   make(map[uuid.UUID]uuid.UUID),
		classes:    make(map[uuid.UUID][]uuid.UUID),
		repeatable: make(map[uuid.UUID]bool),
	}
}

func (f *fakeAssignments) targets(a *model.Assignment, studentID uuid.UUID, classID *uuid.UUID) bool {
	switch a.TargetType {
	case model.TargetTypeStudent:
		return a.StudentID != nil && *a.StudentID == studentID
	case model.TargetTypeClass:
		return a.ClassID != nil && classID != nil && *a.ClassID == *classID
	case model.TargetTypeGroup:
		for _, id := range f.members[*a.GroupID] {
			if id == studentID {
				return true
			}
		}
	}
	return false
}

func (f *fakeAssignments) FindForStudent(_ context.Context, simulationID, studentID uuid.UUID, classID *uuid.UUID) ([]model.Assignment, error) {
	var out []model.Assignment
	for i := range f.list {
		if f.list[i].SimulationID == simulationID && f.targets(&f.list[i], studentID, classID) {
			out = append(out, f.list[i])
		}
	}
	return out, nil
}

func (f *fakeAssignments) FindForReferenceCollaborator(_ context.Context, simulationID, collaboratorID uuid.UUID) ([]model.Assignment, error) {
	var out []model.Assignment
	for _, a := range f.list {
		if a.SimulationID == simulationID && a.GroupID != nil && f.leads[*a.GroupID] == collaboratorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignments) ListBySimulation(_ context.Context, simulationID uuid.UUID) ([]model.Assignment, error) {
	var out []model.Assignment
	for _, a := range f.list {
		if a.SimulationID == simulationID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAssignments) ListActive(_ context.Context) ([]model.Assignment, map[uuid.UUID]bool, error) {
	var out []model.Assignment
	for _, a := range f.list {
		if a.Status == model.AssignmentStatusActive {
			out = append(out, a)
		}
	}
	return out, f.repeatable, nil
}

func (f *fakeAssignments) TargetedStudentIDs(_ context.Context, a *model.Assignment) ([]uuid.UUID, error) {
	switch a.TargetType {
	case model.TargetTypeStudent:
		return []uuid.UUID{*a.StudentID}, nil
	case model.TargetTypeClass:
		return f.classes[*a.ClassID], nil
	case model.TargetTypeGroup:
		return f.members[*a.GroupID], nil
	}
	return nil, nil
}

func (f *fakeAssignments) Close(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	for i := range f.list {
		if f.list[i].ID == id && f.list[i].Status == model.AssignmentStatusActive {
			f.list[i].Status = model.AssignmentStatusClosed
			f.list[i].ClosedAt = &at
			f.closed = append(f.closed, id)
			return true, nil
		}
	}
	return false, nil
}

// ─── Results ───

// fakeResults mirrors the unique constraints of the results table.
type fakeResults struct {
	mu      sync.Mutex
	results []model.Result
}

func (f *fakeResults) find(match func(*model.Result) bool) (*model.Result, error) {
	for i := range f.results {
		if match(&f.results[i]) {
			cp := f.results[i]
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeResults) GetByID(_ context.Context, id uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(r *model.Result) bool { return r.ID == id })
}

func (f *fakeResults) GetByAttemptID(_ context.Context, attemptID uuid.UUID) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(r *model.Result) bool { return r.AttemptID == attemptID })
}

func (f *fakeResults) GetByAttempt(_ context.Context, simulationID, studentID uuid.UUID, attempt int) (*model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(func(r *model.Result) bool {
		return r.SimulationID == simulationID && r.StudentID == studentID && r.Attempt == attempt
	})
}

func (f *fakeResults) CountAttempts(_ context.Context, simulationID, studentID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.results {
		if r.SimulationID == simulationID && r.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (f *fakeResults) Insert(_ context.Context, res *model.Result) (*model.Result, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, err := f.find(func(r *model.Result) bool { return r.AttemptID == res.AttemptID }); err == nil {
		return r, false, nil
	}
	if r, err := f.find(func(r *model.Result) bool {
		return r.SimulationID == res.SimulationID && r.StudentID == res.StudentID && r.Attempt == res.Attempt
	}); err == nil {
		return r, false, nil
	}
	stored := *res
	stored.ID = uuid.New()
	f.results = append(f.results, stored)
	return &stored, true, nil
}

func (f *fakeResults) ListCompletedBySimulation(_ context.Context, simulationID uuid.UUID) ([]model.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Result
	for _, r := range f.results {
		if r.SimulationID == simulationID && r.CompletedAt != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResults) CountCompletedStudents(_ context.Context, simulationID uuid.UUID, studentIDs []uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range studentIDs {
		for _, r := range f.results {
			if r.SimulationID == simulationID && r.StudentID == id && r.CompletedAt != nil {
				n++
				break
			}
		}
	}
	return n, nil
}

func (f *fakeResults) UpdateReview(_ context.Context, res *model.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.results {
		if f.results[i].ID == res.ID {
			f.results[i] = *res
			return nil
		}
	}
	return pgx.ErrNoRows
}

// ─── Side effects ───

type sentNotification struct {
	UserIDs []uuid.UUID
	N       model.Notification
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, userIDs []uuid.UUID, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserIDs: userIDs, N: n})
	return nil
}

func (f *fakeNotifier) count(t model.NotificationType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.N.Type == t {
			n++
		}
	}
	return n
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context, uuid.UUID) error {
	c.calls++
	return nil
}

// ─── Builders ───

func ptrTime(t time.Time) *time.Time { return &t }
func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }
func ptrFloat(f float64) *float64     { return &f }

func student(id uuid.UUID, classID *uuid.UUID) *model.Principal {
	return &model.Principal{UserID: id, Role: model.RoleStudent, ClassID: classID, Name: "Studente"}
}

func mcQuestion(simID uuid.UUID, pos int, correct string) model.Question {
	return model.Question{
		ID:           uuid.New(),
		SimulationID: simID,
		Position:     pos,
		Type:         model.QuestionTypeMultipleChoice,
		Text:         "Domanda",
		Options: []model.AnswerOption{
			{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"},
		},
		CorrectAnswerID: correct,
		Weight:          1,
	}
}

func openQuestion(simID uuid.UUID, pos int, weight float64) model.Question {
	return model.Question{
		ID:           uuid.New(),
		SimulationID: simID,
		Position:     pos,
		Type:         model.QuestionTypeOpenText,
		Text:         "Spiega",
		Weight:       weight,
	}
}

func publishedSimulation(createdBy uuid.UUID) *model.Simulation {
	return &model.Simulation{
		ID:              uuid.New(),
		Title:           "Simulazione di prova",
		Type:            "TOLC",
		TotalQuestions:  3,
		DurationMinutes: 30,
		Status:          model.SimulationStatusPublished,
		CreatedBy:       createdBy,
	}
}
