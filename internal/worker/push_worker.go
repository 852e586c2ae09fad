package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/config"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/push"
)

const PushPollTimeout = 1 * time.Second

// DeviceStore loads and retires push tokens.
type DeviceStore interface {
	ListActiveDevices(ctx context.Context, userIDs []uuid.UUID) ([]model.DeviceToken, error)
	DeactivateDevice(ctx context.Context, token, reason string) error
}

// Sender fans a message out to devices.
type Sender interface {
	Send(ctx context.Context, devices []model.DeviceToken, msg push.Message) push.Report
}

// PushWorker consumes the push queue and delivers each job to the active
// devices of its recipients. Delivery is best effort: failed jobs are logged
// and dropped, tokens the provider rejects are deactivated.
type PushWorker struct {
	devices DeviceStore
	sender  Sender
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewPushWorker creates a new PushWorker.
func NewPushWorker(devices DeviceStore, sender Sender, rdb *redis.Client, log zerolog.Logger) *PushWorker {
	return &PushWorker{
		devices: devices,
		sender:  sender,
		rdb:     rdb,
		log:     log.With().Str("component", "push_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *PushWorker) Start(ctx context.Context) {
	w.log.Info().Msg("PushWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("PushWorker stopped")
			return
		default:
			item, err := w.rdb.BLPop(ctx, PushPollTimeout, config.WorkerKey.PushQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}
			w.handle(ctx, item[1])
		}
	}
}

func (w *PushWorker) handle(ctx context.Context, raw string) {
	var job push.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		w.log.Error().Err(err).Msg("Invalid push job")
		return
	}

	devices, err := w.devices.ListActiveDevices(ctx, job.UserIDs)
	if err != nil {
		w.log.Error().Err(err).Int("recipients", len(job.UserIDs)).Msg("Failed to load devices, dropping job")
		return
	}
	if len(devices) == 0 {
		return
	}

	report := w.sender.Send(ctx, devices, job.Message)
	for _, r := range report.Rejected {
		if err := w.devices.DeactivateDevice(ctx, r.Token, r.Reason); err != nil {
			w.log.Warn().Err(err).Msg("Failed to deactivate rejected token")
		}
	}

	w.log.Info().
		Str("type", job.Message.Data["type"]).
		Int("devices", len(devices)).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("rejected", len(report.Rejected)).
		Msg("Push job delivered")
}
