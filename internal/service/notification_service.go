package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/push"
	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// NotificationStore persists notifications and device tokens.
type NotificationStore interface {
	CreateMany(ctx context.Context, userIDs []uuid.UUID, n model.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Notification, int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	UpsertDevice(ctx context.Context, d *model.DeviceToken) error
	DeleteDevice(ctx context.Context, userID uuid.UUID, token string) error
}

// NotificationService writes in-app notifications and queues their push
// delivery. Push is best effort: a failed enqueue never fails the caller.
type NotificationService struct {
	store NotificationStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore, rdb *redis.Client, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "notification_service").Logger(),
	}
}

// Notify stores one notification per recipient and enqueues a push job.
func (s *NotificationService) Notify(ctx context.Context, userIDs []uuid.UUID, n model.Notification) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := s.store.CreateMany(ctx, userIDs, n); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}

	job := push.Job{
		UserIDs: userIDs,
		Message: push.Message{Title: n.Title, Body: n.Body, Data: withType(n.Data, n.Type)},
	}
	raw, err := json.Marshal(job)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode push job")
		return nil
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PushQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("type", string(n.Type)).Int("recipients", len(userIDs)).
			Msg("Failed to enqueue push job")
	}
	return nil
}

func withType(data map[string]string, t model.NotificationType) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["type"] = string(t)
	return out
}

// ListMine returns a page of the caller's notifications.
func (s *NotificationService) ListMine(ctx context.Context, p *model.Principal, page, perPage int) ([]model.Notification, *response.Pagination, error) {
	if p == nil {
		return nil, nil, ErrUnauthenticated
	}
	page, perPage = normalizePage(page, perPage)
	items, total, err := s.store.ListByUser(ctx, p.UserID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, response.NewPagination(page, perPage, total), nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, p *model.Principal, id uuid.UUID) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if err := s.store.MarkRead(ctx, id, p.UserID); err != nil {
		return fmt.Errorf("mark read: %w", notFound(err))
	}
	return nil
}

// RegisterDevice registers a push token for the caller.
func (s *NotificationService) RegisterDevice(ctx context.Context, p *model.Principal, req *model.RegisterDeviceRequest) (*model.DeviceToken, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	if req.Provider == model.PushProviderExpo && !push.IsExpoToken(req.Token) {
		return nil, fmt.Errorf("%w: not an Expo push token", ErrValidation)
	}
	d := &model.DeviceToken{UserID: p.UserID, Token: req.Token, Provider: req.Provider}
	if err := s.store.UpsertDevice(ctx, d); err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return d, nil
}

// UnregisterDevice removes one of the caller's push tokens.
func (s *NotificationService) UnregisterDevice(ctx context.Context, p *model.Principal, token string) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if err := s.store.DeleteDevice(ctx, p.UserID, token); err != nil {
		return fmt.Errorf("delete device: %w", notFound(err))
	}
	return nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
