package websocket

import (
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/session"
)

// ─── Requests (Client → Server) ─────────────────────────────────────

// ActionPing keeps the connection alive; it never reaches the controller.
const ActionPing session.ActionType = "PING"

// Request is one client message: a controller action or a ping. TICK and
// TIMEOUT are server-driven and refused when sent by the client.
type Request = session.Action

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries the rendered attempt after every change. Transition
// is the controller event the change produced, if any.
type StateResponse struct {
	Event      Event         `json:"event"`
	AttemptID  uuid.UUID     `json:"attempt_id"`
	Transition session.Event `json:"transition,omitempty"`
	View       session.View  `json:"view"`
}

// SubmittedResponse is the last message of an attempt.
type SubmittedResponse struct {
	Event  Event         `json:"event"`
	Result *model.Result `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewStateResponse renders snap for the client.
func NewStateResponse(snap *session.Snapshot, transition session.Event) StateResponse {
	return StateResponse{
		Event:      EventState,
		AttemptID:  snap.AttemptID,
		Transition: transition,
		View:       session.Render(snap.State),
	}
}
