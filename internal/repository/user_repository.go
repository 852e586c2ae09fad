package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// UserRepository handles users, classes and groups.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, COALESCE(external_id, ''), email, name, role, class_id, active, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Role, &u.ClassID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Upsert inserts or updates a user keyed by email. Used by the import tooling.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, role, class_id, active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name, role = EXCLUDED.role, class_id = EXCLUDED.class_id, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		u.Email, u.Name, u.Role, u.ClassID, u.Active,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// Deactivate marks a user inactive. It reports false when already inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetGroup retrieves a group by id.
func (r *UserRepository) GetGroup(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	g := &model.Group{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, reference_collaborator_id, created_at FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.ReferenceCollaboratorID, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ClassExists reports whether a class id resolves.
func (r *UserRepository) ClassExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}
