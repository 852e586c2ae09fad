package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/session"
	ws "github.com/prepscuola/simulazioni-backend/internal/websocket"
)

// SessionReader starts attempts and reads the one in progress.
type SessionReader interface {
	Start(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*session.Snapshot, error)
	Current(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (*session.Snapshot, error)
}

// SessionHandler exposes live attempts over plain HTTP for clients that
// reconnect before opening the stream.
type SessionHandler struct {
	sessions SessionReader
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionReader) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// StartSession godoc
// POST /api/v1/simulations/:id/start
// Starts a new attempt, or returns the one already in progress.
func (h *SessionHandler) StartSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	snap, err := h.sessions.Start(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ws.NewStateResponse(snap, session.EventNone)})
}

// GetSession godoc
// GET /api/v1/simulations/:id/session
// Returns the attempt in progress, recovered from Postgres if Redis lost it.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	snap, err := h.sessions.Current(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		if _, code := classify(err); code == response.ErrNotFound {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": ws.NewStateResponse(snap, session.EventNone)})
}

var _ SessionReader = (*service.LiveSessionService)(nil)
