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

// AssignmentManager schedules simulations for students, classes and groups.
type AssignmentManager interface {
	Create(ctx context.Context, p *model.Principal, simulationID uuid.UUID, req *model.CreateAssignmentRequest) (*model.Assignment, error)
	ListForStudent(ctx context.Context, p *model.Principal, studentID uuid.UUID) ([]model.Assignment, error)
	ListBySimulation(ctx context.Context, p *model.Principal, simulationID uuid.UUID) ([]model.Assignment, error)
}

// AssignmentHandler handles assignment endpoints.
type AssignmentHandler struct {
	assignments AssignmentManager
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(assignments AssignmentManager) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

// CreateAssignment godoc
// POST /api/v1/admin/simulations/:id/assignments
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req model.CreateAssignmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.assignments.Create(c.Request.Context(), middleware.GetPrincipal(c), simulationID, &req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"assignment": a})
}

// ListSimulationAssignments godoc
// GET /api/v1/admin/simulations/:id/assignments
func (h *AssignmentHandler) ListSimulationAssignments(c *gin.Context) {
	simulationID, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.assignments.ListBySimulation(c.Request.Context(), middleware.GetPrincipal(c), simulationID)
	h.writeList(c, list, err)
}

// ListMyAssignments godoc
// GET /api/v1/student/assignments
func (h *AssignmentHandler) ListMyAssignments(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	if p == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	list, err := h.assignments.ListForStudent(c.Request.Context(), p, p.UserID)
	h.writeList(c, list, err)
}

// ListStudentAssignments godoc
// GET /api/v1/admin/students/:id/assignments
func (h *AssignmentHandler) ListStudentAssignments(c *gin.Context) {
	studentID, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.assignments.ListForStudent(c.Request.Context(), middleware.GetPrincipal(c), studentID)
	h.writeList(c, list, err)
}

func (h *AssignmentHandler) writeList(c *gin.Context, list []model.Assignment, err error) {
	if err != nil {
		failWith(c, err)
		return
	}
	if list == nil {
		list = []model.Assignment{}
	}
	response.Success(c, http.StatusOK, gin.H{"assignments": list})
}
