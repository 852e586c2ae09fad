package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

// MessageBoard posts and lists in-session messages.
type MessageBoard interface {
	Post(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.PostMessageRequest) (*model.Message, error)
	List(ctx context.Context, p *model.Principal, simulationID uuid.UUID, after *time.Time) ([]model.Message, error)
}

// MessageHandler handles in-session messages.
type MessageHandler struct {
	messages MessageBoard
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(messages MessageBoard) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// ListMessages godoc
// GET /api/v1/simulations/:id/messages?after=<RFC3339>
// Clients poll with the created_at of the last message they hold.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var after *time.Time
	if raw := c.Query("after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"after": "deve essere una data RFC 3339"})
			return
		}
		after = &t
	}

	list, err := h.messages.List(c.Request.Context(), middleware.GetPrincipal(c), simulationID, after)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"messages": list})
}

// PostMessage godoc
// POST /api/v1/simulations/:id/messages
func (h *MessageHandler) PostMessage(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req model.PostMessageRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	m, err := h.messages.Post(c.Request.Context(), middleware.GetPrincipal(c), simulationID, &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"message": m})
}
