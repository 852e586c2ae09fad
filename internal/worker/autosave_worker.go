package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/session"
)

const (
	AutosaveBatchSize    = 100
	AutosaveBatchTimeout = 2 * time.Second
	AutosavePollTimeout  = 1 * time.Second
)

// SnapshotSource reads live snapshots from Redis and writes them to Postgres.
type SnapshotSource interface {
	Peek(ctx context.Context, simulationID, studentID uuid.UUID) (*session.Snapshot, error)
	Persist(ctx context.Context, snaps []session.Snapshot) error
}

// AutosaveWorker consumes the autosave queue and copies the latest snapshot
// of each queued attempt to Postgres. Entries are deduplicated per batch, so
// a burst of actions on one attempt costs one write.
type AutosaveWorker struct {
	sessions SnapshotSource
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(sessions SnapshotSource, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		sessions: sessions,
		rdb:      rdb,
		log:      log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AutosaveWorker started")

	pending := make(map[string]struct{}, AutosaveBatchSize)
	batch := make([]string, 0, AutosaveBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AutosaveBatchSize || time.Since(lastFlush) >= AutosaveBatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			clear(pending)
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested, flushing remaining snapshots")
			w.flush(context.Background(), batch)
			w.drain(context.Background())
			return

		default:
			item, err := w.rdb.BLPop(ctx, AutosavePollTimeout, config.WorkerKey.AutosaveQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}
			if _, dup := pending[item[1]]; dup {
				continue
			}
			pending[item[1]] = struct{}{}
			batch = append(batch, item[1])
		}
	}
}

// flush persists the current snapshot of every queued attempt. Attempts that
// left Redis in the meantime were finished or expired and are skipped. On a
// failed write the entries go back on the queue.
func (w *AutosaveWorker) flush(ctx context.Context, items []string) {
	if len(items) == 0 {
		return
	}

	snaps := make([]session.Snapshot, 0, len(items))
	kept := make([]string, 0, len(items))
	for _, item := range items {
		simID, studentID, err := service.ParseQueueItem(item)
		if err != nil {
			w.log.Error().Err(err).Str("item", item).Msg("Dropping malformed queue item")
			continue
		}
		snap, err := w.sessions.Peek(ctx, simID, studentID)
		if errors.Is(err, service.ErrNotFound) {
			continue
		}
		if err != nil {
			w.log.Warn().Err(err).Str("item", item).Msg("Peek failed, requeueing")
			w.requeue(ctx, item)
			continue
		}
		snaps = append(snaps, *snap)
		kept = append(kept, item)
	}
	if len(snaps) == 0 {
		return
	}

	if err := w.sessions.Persist(ctx, snaps); err != nil {
		w.log.Error().Err(err).Int("count", len(snaps)).Msg("Persist failed, requeueing batch")
		w.requeue(ctx, kept...)
		return
	}
	w.log.Debug().Int("count", len(snaps)).Msg("Snapshots persisted")
}

func (w *AutosaveWorker) requeue(ctx context.Context, items ...string) {
	if len(items) == 0 {
		return
	}
	values := make([]any, len(items))
	for i, item := range items {
		values[i] = item
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.AutosaveQueue, values...).Err(); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("Requeue failed, snapshots stay in Redis only")
	}
}

// drain persists whatever is still queued before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	items, err := w.rdb.LPopCount(ctx, config.WorkerKey.AutosaveQueue, AutosaveBatchSize*10).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			w.log.Error().Err(err).Msg("Drain failed")
		}
		return
	}

	seen := make(map[string]struct{}, len(items))
	unique := items[:0]
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		unique = append(unique, item)
	}
	for start := 0; start < len(unique); start += AutosaveBatchSize {
		w.flush(ctx, unique[start:min(start+AutosaveBatchSize, len(unique))])
	}
	w.log.Info().Int("count", len(unique)).Msg("Drained remaining items")
}
