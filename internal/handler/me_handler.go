package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

// ProfileReader returns the caller's account.
type ProfileReader interface {
	Me(ctx context.Context, p *model.Principal) (*model.User, error)
}

// NotificationInbox serves the caller's notifications and push devices.
type NotificationInbox interface {
	ListMine(ctx context.Context, p *model.Principal, page, perPage int) ([]model.Notification, *response.Pagination, error)
	MarkRead(ctx context.Context, p *model.Principal, id uuid.UUID) error
	RegisterDevice(ctx context.Context, p *model.Principal, req *model.RegisterDeviceRequest) (*model.DeviceToken, error)
	UnregisterDevice(ctx context.Context, p *model.Principal, token string) error
}

// MeHandler handles the caller's own profile, inbox and devices.
type MeHandler struct {
	profiles      ProfileReader
	notifications NotificationInbox
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(profiles ProfileReader, notifications NotificationInbox) *MeHandler {
	return &MeHandler{profiles: profiles, notifications: notifications}
}

// GetMe godoc
// GET /api/v1/me
func (h *MeHandler) GetMe(c *gin.Context) {
	u, err := h.profiles.Me(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": u})
}

// ListNotifications godoc
// GET /api/v1/me/notifications?page=&per_page=
func (h *MeHandler) ListNotifications(c *gin.Context) {
	list, pagination, err := h.notifications.ListMine(c.Request.Context(), middleware.GetPrincipal(c),
		queryInt(c, "page", 1), queryInt(c, "per_page", 20))
	if err != nil {
		failWith(c, err)
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"notifications": list}, pagination)
}

// MarkNotificationRead godoc
// POST /api/v1/me/notifications/:id/read
func (h *MeHandler) MarkNotificationRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// RegisterDevice godoc
// POST /api/v1/me/devices
// Registers (or re-activates) a push token for the caller.
func (h *MeHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	d, err := h.notifications.RegisterDevice(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"device": d})
}

// UnregisterDevice godoc
// DELETE /api/v1/me/devices/:token
func (h *MeHandler) UnregisterDevice(c *gin.Context) {
	if err := h.notifications.UnregisterDevice(c.Request.Context(), middleware.GetPrincipal(c), c.Param("token")); err != nil {
		failWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
