package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/session"
)

// SnapshotRepository is the durable copy of live sessions.
type SnapshotRepository interface {
	Get(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error)
	UpsertBatch(ctx context.Context, snaps []session.Snapshot) error
	Delete(ctx context.Context, simulationID, studentID uuid.UUID) error
}

// LiveSessionStore keeps in-progress attempts in Redis and queues them for
// the autosave worker, which copies them to Postgres. Reads fall back to
// Postgres when Redis lost the key.
type LiveSessionStore struct {
	rdb  *redis.Client
	repo SnapshotRepository
	ttl  time.Duration
	log  zerolog.Logger
}

// NewLiveSessionStore creates a new LiveSessionStore.
func NewLiveSessionStore(rdb *redis.Client, repo SnapshotRepository, ttl time.Duration, log zerolog.Logger) *LiveSessionStore {
	return &LiveSessionStore{
		rdb:  rdb,
		repo: repo,
		ttl:  ttl,
		log:  log.With().Str("component", "live_session_store").Logger(),
	}
}

// QueueItem is the autosave queue entry for one attempt.
func QueueItem(simulationID, studentID uuid.UUID) string {
	return simulationID.String() + ":" + studentID.String()
}

// ParseQueueItem splits an autosave queue entry.
func ParseQueueItem(item string) (simulationID, studentID uuid.UUID, err error) {
	simRaw, stuRaw, ok := strings.Cut(item, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("malformed queue item %q", item)
	}
	if simulationID, err = uuid.Parse(simRaw); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if studentID, err = uuid.Parse(stuRaw); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return simulationID, studentID, nil
}

// Peek reads a snapshot from Redis only. It returns ErrNotFound on a miss.
func (s *LiveSessionStore) Peek(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error) {
	key := config.CacheKey.LiveSessionKey(simulationID.String(), studentID.String())
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Load returns the current snapshot of an attempt, falling back to Postgres
// and re-caching the row on a Redis miss.
func (s *LiveSessionStore) Load(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error) {
	snap, err := s.Peek(ctx, simulationID, studentID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.log.Warn().Err(err).Str("simulation_id", simulationID.String()).Msg("Redis read failed, falling back to Postgres")
	}

	snap, err = s.repo.Get(ctx, simulationID, studentID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", notFound(err))
	}
	if err := s.cache(ctx, snap); err != nil {
		s.log.Warn().Err(err).Msg("Failed to re-cache snapshot")
	}
	return snap, nil
}

func (s *LiveSessionStore) cache(ctx context.Context, snap *session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	key := config.CacheKey.LiveSessionKey(snap.SimulationID.String(), snap.StudentID.String())
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

// Save writes the snapshot to Redis. With persist it is also queued for the
// autosave worker.
func (s *LiveSessionStore) Save(ctx context.Context, snap *session.Snapshot, persist bool) error {
	if err := s.cache(ctx, snap); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	if !persist {
		return nil
	}
	item := QueueItem(snap.SimulationID, snap.StudentID)
	if err := s.rdb.RPush(ctx, config.WorkerKey.AutosaveQueue, item).Err(); err != nil {
		return fmt.Errorf("queue autosave: %w", err)
	}
	return nil
}

// Persist writes snapshots straight to Postgres. Used by the autosave worker.
func (s *LiveSessionStore) Persist(ctx context.Context, snaps []session.Snapshot) error {
	return s.repo.UpsertBatch(ctx, snaps)
}

// Discard removes an attempt from Redis and Postgres.
func (s *LiveSessionStore) Discard(ctx context.Context, simulationID, studentID uuid.UUID) error {
	key := config.CacheKey.LiveSessionKey(simulationID.String(), studentID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete cached snapshot: %w", err)
	}
	if err := s.repo.Delete(ctx, simulationID, studentID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
