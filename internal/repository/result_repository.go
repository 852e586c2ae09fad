package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const resultColumns = `r.id, r.simulation_id, r.student_id, u.name, r.assignment_id, r.attempt_id, r.attempt,
	r.answers, r.correct_answers, r.wrong_answers, r.blank_answers, r.pending_review,
	r.total_score, r.max_score, r.percentage_score, r.passed, r.duration_seconds,
	r.started_at, r.completed_at, r.reviewed_at, r.reviewed_by`

// ResultRepository handles result data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func scanResult(row pgx.Row, res *model.Result) error {
	return row.Scan(&res.ID, &res.SimulationID, &res.StudentID, &res.StudentName, &res.AssignmentID,
		&res.AttemptID, &res.Attempt, &res.Answers, &res.CorrectAnswers, &res.WrongAnswers,
		&res.BlankAnswers, &res.PendingReview, &res.TotalScore, &res.MaxScore, &res.PercentageScore,
		&res.Passed, &res.DurationSeconds, &res.StartedAt, &res.CompletedAt, &res.ReviewedAt, &res.ReviewedBy)
}

func (r *ResultRepository) getOne(ctx context.Context, where string, args ...any) (*model.Result, error) {
	res := &model.Result{}
	err := scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results r JOIN users u ON u.id = r.student_id WHERE `+where, args...), res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetByID retrieves a result by id.
func (r *ResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Result, error) {
	return r.getOne(ctx, `r.id = $1`, id)
}

// GetByAttemptID retrieves the result of one attempt.
func (r *ResultRepository) GetByAttemptID(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	return r.getOne(ctx, `r.attempt_id = $1`, attemptID)
}

// GetByAttempt retrieves the result of a student's n-th attempt.
func (r *ResultRepository) GetByAttempt(ctx context.Context, simulationID, studentID uuid.UUID, attempt int) (*model.Result, error) {
	return r.getOne(ctx, `r.simulation_id = $1 AND r.student_id = $2 AND r.attempt = $3`, simulationID, studentID, attempt)
}

// CountAttempts returns how many results a student has for a simulation.
func (r *ResultRepository) CountAttempts(ctx context.Context, simulationID, studentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE simulation_id = $1 AND student_id = $2`,
		simulationID, studentID).Scan(&n)
	return n, err
}

// Insert stores a result once. When a row with the same attempt id, or the same
// (simulation, student, attempt), already exists the stored row is returned
// with created=false and nothing is written.
func (r *ResultRepository) Insert(ctx context.Context, res *model.Result) (stored *model.Result, created bool, err error) {
	if res.Answers == nil {
		res.Answers = []model.EvaluatedAnswer{}
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO results (simulation_id, student_id, assignment_id, attempt_id, attempt, answers,
		                      correct_answers, wrong_answers, blank_answers, pending_review,
		                      total_score, max_score, percentage_score, passed, duration_seconds,
		                      started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		res.SimulationID, res.StudentID, res.AssignmentID, res.AttemptID, res.Attempt, res.Answers,
		res.CorrectAnswers, res.WrongAnswers, res.BlankAnswers, res.PendingReview,
		res.TotalScore, res.MaxScore, res.PercentageScore, res.Passed, res.DurationSeconds,
		res.StartedAt, res.CompletedAt,
	).Scan(&res.ID)
	if err == nil {
		return res, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: a concurrent or repeated submission already stored the row.
	existing, err := r.GetByAttemptID(ctx, res.AttemptID)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err = r.GetByAttempt(ctx, res.SimulationID, res.StudentID, res.Attempt)
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListCompletedBySimulation returns every completed result of a simulation.
func (r *ResultRepository) ListCompletedBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+`
		 FROM results r JOIN users u ON u.id = r.student_id
		 WHERE r.simulation_id = $1 AND r.completed_at IS NOT NULL
		 ORDER BY r.completed_at`, simulationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Result
	for rows.Next() {
		var res model.Result
		if err := scanResult(rows, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CountCompletedStudents returns how many of studentIDs have at least one
// completed result for the simulation.
func (r *ResultRepository) CountCompletedStudents(ctx context.Context, simulationID uuid.UUID, studentIDs []uuid.UUID) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT student_id) FROM results
		 WHERE simulation_id = $1 AND student_id = ANY($2) AND completed_at IS NOT NULL`,
		simulationID, studentIDs).Scan(&n)
	return n, err
}

// UpdateReview stores the outcome of a manual review.
func (r *ResultRepository) UpdateReview(ctx context.Context, res *model.Result) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE results
		 SET answers = $2, correct_answers = $3, wrong_answers = $4, blank_answers = $5,
		     pending_review = $6, total_score = $7, percentage_score = $8, passed = $9,
		     reviewed_at = $10, reviewed_by = $11
		 WHERE id = $1`,
		res.ID, res.Answers, res.CorrectAnswers, res.WrongAnswers, res.BlankAnswers,
		res.PendingReview, res.TotalScore, res.PercentageScore, res.Passed,
		res.ReviewedAt, res.ReviewedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
