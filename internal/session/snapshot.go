package session

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a student's in-progress attempt as stored in Redis and Postgres.
type Snapshot struct {
	SimulationID uuid.UUID  `json:"simulation_id"`
	StudentID    uuid.UUID  `json:"student_id"`
	AttemptID    uuid.UUID  `json:"attempt_id"`
	AssignmentID *uuid.UUID `json:"assignment_id,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	State        State      `json:"state"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Elapsed returns the whole seconds between the start and the last update.
func (s *Snapshot) Elapsed() int {
	d := s.UpdatedAt.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

// CatchUp charges the seconds since the last update to the attempt, one
// section at a time, so the clock keeps running while no client is
// connected. UpdatedAt advances by the time actually consumed: an attempt
// that runs out of time stops at its last timeout.
func (s Snapshot) CatchUp(now time.Time) (Snapshot, bool) {
	idle := int(now.Sub(s.UpdatedAt) / time.Second)
	if idle <= 0 || s.State.Submitted {
		return s, false
	}
	state, left := s.State, idle
	for left > 0 && !state.Submitted {
		step := min(left, max(state.Timer.Remaining(), 1))
		state, _ = Transition(state, Action{Type: ActionTick, Seconds: step})
		left -= step
	}
	s.State = state
	s.UpdatedAt = s.UpdatedAt.Add(time.Duration(idle-left) * time.Second)
	return s, true
}
