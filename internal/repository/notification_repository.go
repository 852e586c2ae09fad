package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// NotificationRepository handles in-app notifications and device tokens.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// CreateMany inserts one notification per recipient with a single COPY.
func (r *NotificationRepository) CreateMany(ctx context.Context, userIDs []uuid.UUID, n model.Notification) error {
	if len(userIDs) == 0 {
		return nil
	}
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		[]string{"user_id", "type", "title", "body", "data"},
		pgx.CopyFromSlice(len(userIDs), func(i int) ([]any, error) {
			return []any{userIDs[i], n.Type, n.Title, n.Body, data}, nil
		}),
	)
	return err
}

// ListByUser returns a page of a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, title, body, data, read_at, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		var n model.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Data, &n.ReadAt, &n.CreatedAt)
		return n, err
	})
	return items, total, err
}

// MarkRead sets read_at on a notification owned by userID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpsertDevice registers a push token, moving it to userID if another account
// held it and reactivating it.
func (r *NotificationRepository) UpsertDevice(ctx context.Context, d *model.DeviceToken) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO device_tokens (user_id, token, provider)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token) DO UPDATE
		 SET user_id = EXCLUDED.user_id, provider = EXCLUDED.provider,
		     active = TRUE, last_error = NULL, updated_at = NOW()
		 RETURNING id, active, created_at, updated_at`,
		d.UserID, d.Token, d.Provider,
	).Scan(&d.ID, &d.Active, &d.CreatedAt, &d.UpdatedAt)
}

// DeleteDevice removes a token owned by userID.
func (r *NotificationRepository) DeleteDevice(ctx context.Context, userID uuid.UUID, token string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM device_tokens WHERE user_id = $1 AND token = $2`, userID, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListActiveDevices returns active tokens of the given users.
func (r *NotificationRepository) ListActiveDevices(ctx context.Context, userIDs []uuid.UUID) ([]model.DeviceToken, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, token, provider, active, last_error, created_at, updated_at
		 FROM device_tokens WHERE user_id = ANY($1) AND active`, userIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DeviceToken, error) {
		var d model.DeviceToken
		err := row.Scan(&d.ID, &d.UserID, &d.Token, &d.Provider, &d.Active, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
		return d, err
	})
}

// DeactivateDevice marks a token inactive with the provider's reason.
func (r *NotificationRepository) DeactivateDevice(ctx context.Context, token, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_tokens SET active = FALSE, last_error = $2, updated_at = NOW() WHERE token = $1`,
		token, reason)
	return err
}
