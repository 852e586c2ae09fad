package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// MessageRepository handles in-session chat messages.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a message and fills its id and timestamp.
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO simulation_messages (simulation_id, sender_id, body)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		m.SimulationID, m.SenderID, m.Body,
	).Scan(&m.ID, &m.CreatedAt)
}

// ListAfter returns up to limit messages posted strictly after the cursor,
// oldest first.
func (r *MessageRepository) ListAfter(ctx context.Context, simulationID uuid.UUID, after time.Time, limit int) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.simulation_id, m.sender_id, u.name, m.body, m.created_at
		 FROM simulation_messages m JOIN users u ON u.id = m.sender_id
		 WHERE m.simulation_id = $1 AND m.created_at > $2
		 ORDER BY m.created_at LIMIT $3`, simulationID, after, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Message, error) {
		var m model.Message
		err := row.Scan(&m.ID, &m.SimulationID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt)
		return m, err
	})
}
