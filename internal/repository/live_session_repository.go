package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/session"
)

// LiveSessionRepository persists in-progress attempt snapshots.
type LiveSessionRepository struct {
	pool *pgxpool.Pool
}

// NewLiveSessionRepository creates a new LiveSessionRepository.
func NewLiveSessionRepository(pool *pgxpool.Pool) *LiveSessionRepository {
	return &LiveSessionRepository{pool: pool}
}

// Get retrieves the stored snapshot of a student's attempt.
func (r *LiveSessionRepository) Get(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error) {
	s := &session.Snapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT simulation_id, student_id, attempt_id, assignment_id, started_at, state, updated_at
		 FROM live_sessions WHERE simulation_id = $1 AND student_id = $2`, simulationID, studentID,
	).Scan(&s.SimulationID, &s.StudentID, &s.AttemptID, &s.AssignmentID, &s.StartedAt, &s.State, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertBatch writes many snapshots in one round trip. An older snapshot never
// overwrites a newer one.
func (r *LiveSessionRepository) UpsertBatch(ctx context.Context, snaps []session.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range snaps {
		s := &snaps[i]
		batch.Queue(
			`INSERT INTO live_sessions (simulation_id, student_id, attempt_id, assignment_id, started_at, state, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (simulation_id, student_id) DO UPDATE
			 SET attempt_id = EXCLUDED.attempt_id, assignment_id = EXCLUDED.assignment_id,
			     started_at = EXCLUDED.started_at, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
			 WHERE live_sessions.updated_at <= EXCLUDED.updated_at`,
			s.SimulationID, s.StudentID, s.AttemptID, s.AssignmentID, s.StartedAt, s.State, s.UpdatedAt,
		)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Delete removes a snapshot once its attempt has a stored result.
func (r *LiveSessionRepository) Delete(ctx context.Context, simulationID, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM live_sessions WHERE simulation_id = $1 AND student_id = $2`, simulationID, studentID)
	return err
}
