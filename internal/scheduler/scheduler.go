// Package scheduler runs the maintenance sweeps in-process on a cron
// schedule, for deployments without an external trigger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/service"
)

// sweepTimeout bounds a single scheduled run.
const sweepTimeout = 5 * time.Minute

// Sweeper runs the maintenance sweeps.
type Sweeper interface {
	CloseSimulations(ctx context.Context, dryRun bool) (*service.CloseSimulationsReport, error)
	ExpireContracts(ctx context.Context, dryRun bool) (*service.ExpireContractsReport, error)
}

// Scheduler wraps a cron runner with the two sweep jobs.
type Scheduler struct {
	cron   *cron.Cron
	sweeps Sweeper
	log    zerolog.Logger
}

// New registers the sweeps at the given cron specs (standard five fields,
// evaluated in loc).
func New(sweeps Sweeper, closeSpec, expireSpec string, loc *time.Location, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		sweeps: sweeps,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(closeSpec, s.closeSimulations); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", service.SweepCloseSimulations, closeSpec, err)
	}
	if _, err := s.cron.AddFunc(expireSpec, s.expireContracts); err != nil {
		return nil, fmt.Errorf("schedule %s %q: %w", service.SweepExpireContracts, expireSpec, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Info().Time("next", e.Next).Msg("Sweep scheduled")
	}
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("Scheduler stop timed out with a sweep still running")
	}
}

func (s *Scheduler) closeSimulations() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := s.sweeps.CloseSimulations(ctx, false)
	if s.failed(service.SweepCloseSimulations, err) {
		return
	}
	s.log.Info().
		Str("sweep", service.SweepCloseSimulations).
		Int("total_closed", report.TotalClosed).
		Int("errors", len(report.Errors)).
		Msg("Scheduled sweep finished")
}

func (s *Scheduler) expireContracts() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := s.sweeps.ExpireContracts(ctx, false)
	if s.failed(service.SweepExpireContracts, err) {
		return
	}
	s.log.Info().
		Str("sweep", service.SweepExpireContracts).
		Int("total_expired", report.TotalExpired).
		Int("errors", len(report.Errors)).
		Msg("Scheduled sweep finished")
}

// failed logs err and reports whether there was one. A run skipped because
// another instance holds the lock is expected with several replicas.
func (s *Scheduler) failed(sweep string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, service.ErrSweepRunning):
		s.log.Debug().Str("sweep", sweep).Msg("Sweep already running elsewhere, skipped")
	default:
		s.log.Error().Err(err).Str("sweep", sweep).Msg("Scheduled sweep failed")
	}
	return true
}
