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
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// ResultRecorder stores and reviews attempts.
type ResultRecorder interface {
	Submit(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.SubmitSimulationRequest) (*model.Result, error)
	Get(ctx context.Context, p *model.Principal, resultID uuid.UUID) (*model.Result, error)
	ListBySimulation(ctx context.Context, p *model.Principal, simulationID uuid.UUID) ([]model.Result, error)
	Review(ctx context.Context, p *model.Principal, resultID uuid.UUID, req *model.ReviewResultRequest) (*model.Result, error)
}

// LeaderboardReader serves ranked results.
type LeaderboardReader interface {
	Get(ctx context.Context, p *model.Principal, simulationID uuid.UUID, limit int) (*service.LeaderboardView, error)
}

// ResultHandler handles submissions, results and leaderboards.
type ResultHandler struct {
	results     ResultRecorder
	leaderboard LeaderboardReader
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(results ResultRecorder, leaderboard LeaderboardReader) *ResultHandler {
	return &ResultHandler{results: results, leaderboard: leaderboard}
}

// SubmitSimulation godoc
// POST /api/v1/simulations/:id/submit
// Scores and stores an attempt. Resubmitting the same attempt_id returns the
// stored result, so the status is always 200.
func (h *ResultHandler) SubmitSimulation(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req model.SubmitSimulationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.results.Submit(c.Request.Context(), middleware.GetPrincipal(c), simulationID, &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// GetLeaderboard godoc
// GET /api/v1/simulations/:id/leaderboard?limit=
func (h *ResultHandler) GetLeaderboard(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit := queryInt(c, "limit", defaultLeaderboardLimit)
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	view, err := h.leaderboard.Get(c.Request.Context(), middleware.GetPrincipal(c), simulationID, limit)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetResult godoc
// GET /api/v1/results/:id
func (h *ResultHandler) GetResult(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.results.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// ListResults godoc
// GET /api/v1/admin/simulations/:id/results
func (h *ResultHandler) ListResults(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	results, err := h.results.ListBySimulation(c.Request.Context(), middleware.GetPrincipal(c), simulationID)
	if err != nil {
		failWith(c, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// ReviewResult godoc
// POST /api/v1/admin/results/:id/review
// Awards points to open-text answers and completes the result.
func (h *ResultHandler) ReviewResult(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req model.ReviewResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.results.Review(c.Request.Context(), middleware.GetPrincipal(c), id, &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}
