//go:build integration

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	dsn, cleanup, err := startPostgres(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			fmt.Printf("docker not available, skipping integration tests: %v\n", err)
			os.Exit(0)
		}
		fmt.Printf("start postgres: %v\n", err)
		os.Exit(1)
	}

	if err := migrateUp(dsn); err != nil {
		cleanup()
		fmt.Printf("migrate: %v\n", err)
		os.Exit(1)
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		cleanup()
		fmt.Printf("connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	cleanup()
	os.Exit(code)
}

func startPostgres(ctx context.Context) (string, func(), error) {
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "sim", "POSTGRES_PASSWORD": "simpass", "POSTGRES_DB": "simulazioni"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = container.Terminate(ctx) }

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	dsn := fmt.Sprintf("postgres://sim:simpass@%s:%s/simulazioni?sslmode=disable", host, port.Port())
	return dsn, cleanup, nil
}

func migrateUp(dsn string) error {
	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func createUser(t *testing.T, ctx context.Context, role model.Role, classID *uuid.UUID) *model.User {
	t.Helper()
	u := &model.User{
		Email:   uuid.NewString() + "@example.it",
		Name:    "Utente " + string(role),
		Role:    role,
		ClassID: classID,
		Active:  true,
	}
	if err := NewUserRepository(testPool).Upsert(ctx, u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func createClass(t *testing.T, ctx context.Context) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	if err := testPool.QueryRow(ctx,
		`INSERT INTO classes (name) VALUES ($1) RETURNING id`, "Classe "+uuid.NewString()[:8],
	).Scan(&id); err != nil {
		t.Fatalf("insert class: %v", err)
	}
	return id
}

func createSimulation(t *testing.T, ctx context.Context, author uuid.UUID) *model.Simulation {
	t.Helper()
	sim := &model.Simulation{
		Title:           "Simulazione integrazione",
		Type:            "TOLC",
		TotalQuestions:  3,
		DurationMinutes: 30,
		Status:          model.SimulationStatusPublished,
		CreatedBy:       author,
		Sections: []model.Section{
			{Name: "Logica", DurationMinutes: 10},
			{Name: "Biologia", DurationMinutes: 20},
		},
	}
	options := []model.AnswerOption{{ID: "a", Text: "Sì"}, {ID: "b", Text: "No"}}
	questions := [][]model.Question{
		{{Type: model.QuestionTypeMultipleChoice, Text: "Q1", Options: options, CorrectAnswerID: "a", Weight: 1}},
		{
			{Type: model.QuestionTypeMultipleChoice, Text: "Q2", Options: options, CorrectAnswerID: "b", Weight: 1},
			{Type: model.QuestionTypeOpenText, Text: "Q3", Weight: 2},
		},
	}
	if err := NewSimulationRepository(testPool).Create(ctx, sim, questions); err != nil {
		t.Fatalf("create simulation: %v", err)
	}
	return sim
}

func TestSimulationCreateLoadsSectionsInOrder(t *testing.T) {
	ctx := context.Background()
	admin := createUser(t, ctx, model.RoleAdmin, nil)
	sim := createSimulation(t, ctx, admin.ID)

	repo := NewSimulationRepository(testPool)
	got, err := repo.GetByID(ctx, sim.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Sections) != 2 || got.Sections[0].Name != "Logica" || got.Sections[1].Position != 2 {
		t.Fatalf("sections = %+v", got.Sections)
	}
	if len(got.Sections[1].QuestionIDs) != 2 {
		t.Errorf("second section question ids = %v", got.Sections[1].QuestionIDs)
	}

	qs, err := repo.ListQuestions(ctx, sim.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("questions = %d, want 3", len(qs))
	}
	if qs[2].Type != model.QuestionTypeOpenText || qs[2].CorrectAnswerID != "" {
		t.Errorf("open text question = %+v", qs[2])
	}
	if len(qs[0].Options) != 2 || qs[0].CorrectAnswerID != "a" {
		t.Errorf("multiple choice question = %+v", qs[0])
	}
}

func TestResultInsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	admin := createUser(t, ctx, model.RoleAdmin, nil)
	student := createUser(t, ctx, model.RoleStudent, nil)
	sim := createSimulation(t, ctx, admin.ID)
	repo := NewResultRepository(testPool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	res := &model.Result{
		SimulationID:    sim.ID,
		StudentID:       student.ID,
		AttemptID:       uuid.New(),
		Attempt:         1,
		Answers:         []model.EvaluatedAnswer{},
		CorrectAnswers:  1,
		TotalScore:      1,
		MaxScore:        4,
		PercentageScore: 25,
		DurationSeconds: 600,
		CompletedAt:     &now,
	}
	first, created, err := repo.Insert(ctx, res)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	retry := *res
	retry.ID = uuid.Nil
	retry.TotalScore = 3
	second, created, err := repo.Insert(ctx, &retry)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created || second.ID != first.ID || second.TotalScore != 1 {
		t.Errorf("retry stored a new row: created=%v %+v", created, second)
	}

	n, err := repo.CountCompletedStudents(ctx, sim.ID, []uuid.UUID{student.ID, uuid.New()})
	if err != nil || n != 1 {
		t.Errorf("CountCompletedStudents = %d, %v", n, err)
	}
}

func TestAssignmentReachesClassAndClosesOnce(t *testing.T) {
	ctx := context.Background()
	classID := createClass(t, ctx)
	admin := createUser(t, ctx, model.RoleAdmin, nil)
	student := createUser(t, ctx, model.RoleStudent, &classID)
	outsider := createUser(t, ctx, model.RoleStudent, nil)
	sim := createSimulation(t, ctx, admin.ID)
	repo := NewAssignmentRepository(testPool)

	a := &model.Assignment{
		SimulationID: sim.ID,
		TargetType:   model.TargetTypeClass,
		ClassID:      &classID,
		Status:       model.AssignmentStatusActive,
		AssignedBy:   admin.ID,
	}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	found, err := repo.FindForStudent(ctx, sim.ID, student.ID, &classID)
	if err != nil || len(found) != 1 || found[0].ID != a.ID {
		t.Fatalf("FindForStudent = %v, %v", found, err)
	}
	none, err := repo.FindForStudent(ctx, sim.ID, outsider.ID, nil)
	if err != nil || len(none) != 0 {
		t.Errorf("outsider reached: %v, %v", none, err)
	}

	ids, err := repo.TargetedStudentIDs(ctx, a)
	if err != nil || len(ids) != 1 || ids[0] != student.ID {
		t.Errorf("TargetedStudentIDs = %v, %v", ids, err)
	}

	closed, err := repo.Close(ctx, a.ID, time.Now())
	if err != nil || !closed {
		t.Fatalf("first close: %v, %v", closed, err)
	}
	closed, err = repo.Close(ctx, a.ID, time.Now())
	if err != nil || closed {
		t.Errorf("second close reported %v, %v", closed, err)
	}
}

func TestContractExpiryDeactivatesOnce(t *testing.T) {
	ctx := context.Background()
	student := createUser(t, ctx, model.RoleStudent, nil)

	var contractID uuid.UUID
	if err := testPool.QueryRow(ctx,
		`INSERT INTO contracts (user_id, status, signed_at, expires_at)
		 VALUES ($1, 'SIGNED', NOW() - INTERVAL '1 year', NOW() - INTERVAL '1 day') RETURNING id`,
		student.ID,
	).Scan(&contractID); err != nil {
		t.Fatalf("insert contract: %v", err)
	}

	contracts := NewContractRepository(testPool)
	expired, err := contracts.ListExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	var listed bool
	for _, c := range expired {
		listed = listed || c.ID == contractID
	}
	if !listed {
		t.Fatalf("contract %s not listed as expired", contractID)
	}

	for i, want := range []bool{true, false} {
		moved, err := contracts.MarkExpired(ctx, contractID)
		if err != nil || moved != want {
			t.Errorf("MarkExpired #%d = %v, %v; want %v", i+1, moved, err, want)
		}
	}

	users := NewUserRepository(testPool)
	for i, want := range []bool{true, false} {
		changed, err := users.Deactivate(ctx, student.ID)
		if err != nil || changed != want {
			t.Errorf("Deactivate #%d = %v, %v; want %v", i+1, changed, err, want)
		}
	}
	u, err := users.GetByID(ctx, student.ID)
	if err != nil || u.Active {
		t.Errorf("user after deactivate = %+v, %v", u, err)
	}
}

func TestUserUpsertKeyedByEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testPool)

	u := createUser(t, ctx, model.RoleStudent, nil)
	again := &model.User{Email: u.Email, Name: "Nome aggiornato", Role: model.RoleCollaborator, Active: true}
	if err := repo.Upsert(ctx, again); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if again.ID != u.ID {
		t.Fatalf("upsert created a second row: %s != %s", again.ID, u.ID)
	}
	got, err := repo.GetByID(ctx, u.ID)
	if err != nil || got.Name != "Nome aggiornato" || got.Role != model.RoleCollaborator {
		t.Errorf("after upsert = %+v, %v", got, err)
	}
}
