package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// CalendarExporter renders iCalendar documents.
type CalendarExporter interface {
	Export(ctx context.Context, p *model.Principal, simulationID uuid.UUID) (string, error)
}

// CalendarHandler serves calendar exports.
type CalendarHandler struct {
	calendar CalendarExporter
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(calendar CalendarExporter) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// ExportCalendar godoc
// GET /api/v1/simulations/:id/calendar
// Returns a text/calendar document with one VEVENT for the caller's window.
func (h *CalendarHandler) ExportCalendar(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ics, err := h.calendar.Export(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="simulazione-%s.ics"`, id))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics))
}
