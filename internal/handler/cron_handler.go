package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
)

// Sweeper runs the periodic maintenance sweeps.
type Sweeper interface {
	CloseSimulations(ctx context.Context, dryRun bool) (*service.CloseSimulationsReport, error)
	ExpireContracts(ctx context.Context, dryRun bool) (*service.ExpireContractsReport, error)
}

// sweepRequest is the optional body of a sweep call. External schedulers
// send dryRun; dry_run is accepted too.
type sweepRequest struct {
	DryRun      bool `json:"dry_run"`
	DryRunCamel bool `json:"dryRun"`
}

// CronHandler exposes the sweeps to an external scheduler.
type CronHandler struct {
	sweeps Sweeper
	log    zerolog.Logger
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(sweeps Sweeper, log zerolog.Logger) *CronHandler {
	return &CronHandler{
		sweeps: sweeps,
		log:    log.With().Str("component", "cron_handler").Logger(),
	}
}

// CloseSimulations godoc
// POST /cron/close-simulations
// Closes assignments past their end date or completed by every target.
func (h *CronHandler) CloseSimulations(c *gin.Context) {
	dryRun, ok := h.dryRun(c)
	if !ok {
		return
	}
	report, err := h.sweeps.CloseSimulations(c.Request.Context(), dryRun)
	if err != nil {
		h.log.Error().Err(err).Msg("close-simulations sweep failed")
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// ExpireContracts godoc
// POST /cron/expire-contracts
// Deactivates users whose contract expired and notifies them.
func (h *CronHandler) ExpireContracts(c *gin.Context) {
	dryRun, ok := h.dryRun(c)
	if !ok {
		return
	}
	report, err := h.sweeps.ExpireContracts(c.Request.Context(), dryRun)
	if err != nil {
		h.log.Error().Err(err).Msg("expire-contracts sweep failed")
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// dryRun reads the flag from ?dry_run= or the JSON body. An empty body is a
// real run.
func (h *CronHandler) dryRun(c *gin.Context) (bool, bool) {
	if raw := c.Query("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"dry_run": "deve essere un valore booleano"})
			return false, false
		}
		return v, true
	}
	if c.Request.ContentLength == 0 {
		return false, true
	}
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Chunked requests carry no length: an empty one is still a real run.
		if errors.Is(err, io.EOF) {
			return false, true
		}
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return false, false
	}
	return req.DryRun || req.DryRunCamel, true
}
