package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// ContractRepository handles contract data access.
type ContractRepository struct {
	pool *pgxpool.Pool
}

// NewContractRepository creates a new ContractRepository.
func NewContractRepository(pool *pgxpool.Pool) *ContractRepository {
	return &ContractRepository{pool: pool}
}

// ListExpired returns SIGNED contracts whose expiry is before now.
func (r *ContractRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Contract, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, status, signed_at, expires_at, created_at
		 FROM contracts
		 WHERE status = 'SIGNED' AND expires_at IS NOT NULL AND expires_at < $1
		 ORDER BY expires_at`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Contract, error) {
		var c model.Contract
		err := row.Scan(&c.ID, &c.UserID, &c.Status, &c.SignedAt, &c.ExpiresAt, &c.CreatedAt)
		return c, err
	})
}

// MarkExpired moves a SIGNED contract to EXPIRED. It reports false when the
// contract was already moved by a concurrent sweep.
func (r *ContractRepository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE contracts SET status = 'EXPIRED' WHERE id = $1 AND status = 'SIGNED'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
