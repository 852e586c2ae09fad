package service

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// Domain errors. Handlers map them to response codes with errors.Is.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrForbidden       = errors.New("not entitled to this resource")
	ErrUnauthenticated = errors.New("missing or invalid principal")
	ErrConflict        = errors.New("conflicting state")
	ErrValidation      = errors.New("invalid input")
	ErrTransient       = errors.New("temporary failure of an external service")

	ErrNotPublished  = errors.New("simulation is not published")
	ErrNotDraft      = errors.New("simulation is not a draft")
	ErrWindowNotOpen = errors.New("assignment window is not open yet")
	ErrWindowClosed  = errors.New("assignment window is closed")
	ErrNotScheduled  = errors.New("simulation has no scheduled window")
	ErrSweepRunning  = errors.New("sweep already running")
)

// notFound maps pgx.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
