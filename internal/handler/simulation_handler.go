package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/middleware"
	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
	"github.com/prepscuola/simulazioni-backend/internal/service"
	"github.com/prepscuola/simulazioni-backend/internal/validator"
)

// SimulationManager authors simulations and serves their papers.
type SimulationManager interface {
	Create(ctx context.Context, p *model.Principal, req *model.CreateSimulationRequest) (*model.Simulation, error)
	Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*service.SimulationDetail, error)
	List(ctx context.Context, p *model.Principal, status model.SimulationStatus, page, perPage int) ([]model.Simulation, *response.Pagination, error)
	Publish(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Simulation, error)
	Archive(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Simulation, error)
	GetPaper(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.SimulationPaper, error)
}

// SimulationHandler handles simulation authoring and the student paper.
type SimulationHandler struct {
	simulations SimulationManager
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(simulations SimulationManager) *SimulationHandler {
	return &SimulationHandler{simulations: simulations}
}

// CreateSimulation godoc
// POST /api/v1/admin/simulations
// Creates a draft simulation with its sections and questions.
func (h *SimulationHandler) CreateSimulation(c *gin.Context) {
	var req model.CreateSimulationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulations.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"simulation": sim})
}

// ListSimulations godoc
// GET /api/v1/admin/simulations?status=&page=&per_page=
// Admins see every simulation; collaborators see their own.
func (h *SimulationHandler) ListSimulations(c *gin.Context) {
	status := model.SimulationStatus(strings.ToUpper(c.Query("status")))
	switch status {
	case "", model.SimulationStatusDraft, model.SimulationStatusPublished, model.SimulationStatusArchived:
	default:
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"status": "deve essere uno tra DRAFT PUBLISHED ARCHIVED"})
		return
	}

	sims, pagination, err := h.simulations.List(c.Request.Context(), middleware.GetPrincipal(c),
		status, queryInt(c, "page", 1), queryInt(c, "per_page", 20))
	if err != nil {
		failWith(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"simulations": sims}, pagination)
}

// GetSimulation godoc
// GET /api/v1/admin/simulations/:id
// Returns the simulation with its questions, correct answers included.
func (h *SimulationHandler) GetSimulation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.simulations.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PublishSimulation godoc
// POST /api/v1/admin/simulations/:id/publish
func (h *SimulationHandler) PublishSimulation(c *gin.Context) {
	h.changeStatus(c, h.simulations.Publish)
}

// ArchiveSimulation godoc
// POST /api/v1/admin/simulations/:id/archive
func (h *SimulationHandler) ArchiveSimulation(c *gin.Context) {
	h.changeStatus(c, h.simulations.Archive)
}

func (h *SimulationHandler) changeStatus(c *gin.Context, fn func(context.Context, *model.Principal, uuid.UUID) (*model.Simulation, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sim, err := fn(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"simulation": sim})
}

// GetPaper godoc
// GET /api/v1/simulations/:id/paper
// Returns the questions without correct answers or weights.
func (h *SimulationHandler) GetPaper(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	paper, err := h.simulations.GetPaper(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}
