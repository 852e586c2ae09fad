package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const assignmentColumns = `a.id, a.simulation_id, s.title, a.target_type, a.student_id, a.class_id, a.group_id,
	a.start_date, a.end_date, a.status, a.assigned_by, a.closed_at, a.created_at`

// AssignmentRepository handles assignment data access.
type AssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

func scanAssignment(row pgx.Row, a *model.Assignment) error {
	return row.Scan(&a.ID, &a.SimulationID, &a.SimulationTitle, &a.TargetType, &a.StudentID, &a.ClassID,
		&a.GroupID, &a.StartDate, &a.EndDate, &a.Status, &a.AssignedBy, &a.ClosedAt, &a.CreatedAt)
}

func collectAssignments(rows pgx.Rows) ([]model.Assignment, error) {
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := scanAssignment(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *model.Assignment) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO assignments (simulation_id, target_type, student_id, class_id, group_id,
		                          start_date, end_date, status, assigned_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		a.SimulationID, a.TargetType, a.StudentID, a.ClassID, a.GroupID,
		a.StartDate, a.EndDate, a.Status, a.AssignedBy,
	).Scan(&a.ID, &a.CreatedAt)
}

// GetByID retrieves an assignment by id.
func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	a := &model.Assignment{}
	err := scanAssignment(r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+`
		 FROM assignments a JOIN simulations s ON s.id = a.simulation_id
		 WHERE a.id = $1`, id), a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListBySimulation returns every assignment of a simulation.
func (r *AssignmentRepository) ListBySimulation(ctx context.Context, simulationID uuid.UUID) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM assignments a JOIN simulations s ON s.id = a.simulation_id
		 WHERE a.simulation_id = $1
		 ORDER BY a.created_at`, simulationID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// ListForStudent returns the assignments reaching a student directly, through
// their class or through any group they belong to.
func (r *AssignmentRepository) ListForStudent(ctx context.Context, studentID uuid.UUID, classID *uuid.UUID) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM assignments a JOIN simulations s ON s.id = a.simulation_id
		 WHERE s.status <> 'DRAFT' AND (
		       a.student_id = $1
		    OR ($2::uuid IS NOT NULL AND a.class_id = $2)
		    OR a.group_id IN (SELECT group_id FROM group_members WHERE student_id = $1))
		 ORDER BY a.start_date NULLS LAST, a.created_at`, studentID, classID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// FindForStudent returns the assignments of one simulation that reach a student.
func (r *AssignmentRepository) FindForStudent(ctx context.Context, simulationID, studentID uuid.UUID, classID *uuid.UUID) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM assignments a JOIN simulations s ON s.id = a.simulation_id
		 WHERE a.simulation_id = $1 AND (
		       a.student_id = $2
		    OR ($3::uuid IS NOT NULL AND a.class_id = $3)
		    OR a.group_id IN (SELECT group_id FROM group_members WHERE student_id = $2))
		 ORDER BY a.created_at`, simulationID, studentID, classID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// FindForReferenceCollaborator returns the assignments of one simulation whose
// target group is followed by the given collaborator.
func (r *AssignmentRepository) FindForReferenceCollaborator(ctx context.Context, simulationID, collaboratorID uuid.UUID) ([]model.Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`
		 FROM assignments a
		 JOIN simulations s ON s.id = a.simulation_id
		 JOIN groups g ON g.id = a.group_id
		 WHERE a.simulation_id = $1 AND g.reference_collaborator_id = $2
		 ORDER BY a.created_at`, simulationID, collaboratorID)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// ListActive returns all ACTIVE assignments with the repeatability of their simulation.
func (r *AssignmentRepository) ListActive(ctx context.Context) ([]model.Assignment, map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+`, s.is_repeatable
		 FROM assignments a JOIN simulations s ON s.id = a.simulation_id
		 WHERE a.status = 'ACTIVE'
		 ORDER BY a.created_at`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var out []model.Assignment
	repeatable := make(map[uuid.UUID]bool)
	for rows.Next() {
		var a model.Assignment
		var rep bool
		if err := rows.Scan(&a.ID, &a.SimulationID, &a.SimulationTitle, &a.TargetType, &a.StudentID,
			&a.ClassID, &a.GroupID, &a.StartDate, &a.EndDate, &a.Status, &a.AssignedBy, &a.ClosedAt,
			&a.CreatedAt, &rep); err != nil {
			return nil, nil, err
		}
		out = append(out, a)
		repeatable[a.SimulationID] = rep
	}
	return out, repeatable, rows.Err()
}

// TargetedStudentIDs resolves the active students an assignment addresses.
func (r *AssignmentRepository) TargetedStudentIDs(ctx context.Context, a *model.Assignment) ([]uuid.UUID, error) {
	var query string
	switch a.TargetType {
	case model.TargetTypeStudent:
		query = `SELECT id FROM users WHERE id = $1 AND role = 'STUDENT'`
	case model.TargetTypeClass:
		query = `SELECT id FROM users WHERE class_id = $1 AND role = 'STUDENT' AND active`
	case model.TargetTypeGroup:
		query = `SELECT u.id FROM group_members gm JOIN users u ON u.id = gm.student_id
		         WHERE gm.group_id = $1 AND u.active`
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, a.TargetID())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Close transitions an ACTIVE assignment to CLOSED. It reports false when the
// assignment was already closed.
func (r *AssignmentRepository) Close(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE assignments SET status = 'CLOSED', closed_at = $2
		 WHERE id = $1 AND status = 'ACTIVE'`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
