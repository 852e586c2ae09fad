package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// UserReader loads accounts.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// ProfileService serves the caller's own account and answers whether an
// account may still use the API.
type ProfileService struct {
	users UserReader
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewProfileService creates a new ProfileService.
func NewProfileService(users UserReader, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		users: users,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "profile_service").Logger(),
	}
}

// Me returns the caller's account.
func (s *ProfileService) Me(ctx context.Context, p *model.Principal) (*model.User, error) {
	if p == nil {
		return nil, ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", notFound(err))
	}
	return u, nil
}

// IsActive reports whether the account exists and is active. The answer is
// cached for a short while so every request does not hit Postgres; a Redis
// failure falls through to the database.
func (s *ProfileService) IsActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := config.CacheKey.AccountStatusKey(userID.String())

	cached, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Msg("account status cache unavailable")
	}

	active := false
	u, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		active = u.Active
	case errors.Is(notFound(err), ErrNotFound):
	default:
		return false, fmt.Errorf("get user: %w", err)
	}

	val := "0"
	if active {
		val = "1"
	}
	if err := s.rdb.Set(ctx, key, val, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache account status")
	}
	return active, nil
}
