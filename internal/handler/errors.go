package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
)

// classify maps a service error to its HTTP status and response code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, response.ErrUnauthenticated
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrNotPublished):
		return http.StatusConflict, response.ErrSimulationNotPublished
	case errors.Is(err, service.ErrNotDraft):
		return http.StatusConflict, response.ErrSimulationNotDraft
	case errors.Is(err, service.ErrWindowNotOpen):
		return http.StatusForbidden, response.ErrWindowNotOpen
	case errors.Is(err, service.ErrWindowClosed):
		return http.StatusForbidden, response.ErrWindowClosed
	case errors.Is(err, service.ErrNotScheduled):
		return http.StatusNotFound, response.ErrNotScheduled
	case errors.Is(err, service.ErrSweepRunning):
		return http.StatusConflict, response.ErrSweepRunning
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable, response.ErrServiceUnavailable
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error response for a service error. Validation errors
// carry the service message as the "detail" field.
func failWith(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if code == response.ErrValidation {
		response.FailWithFields(c, status, code, map[string]string{"detail": err.Error()})
		return
	}
	response.Fail(c, status, code)
}

// paramID parses a UUID path parameter, writing INVALID_ID on failure.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an integer query parameter, falling back on absence or junk.
func queryInt(c *gin.Context, name string, fallback int) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return fallback
	}
	return n
}
