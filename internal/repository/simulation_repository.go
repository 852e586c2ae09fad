package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

const simulationColumns = `id, title, type, total_questions, duration_minutes, passing_score,
	wrong_penalty, is_official, is_public, is_repeatable, status, created_by, created_at, updated_at`

// SimulationRepository handles simulation, section and question data access.
type SimulationRepository struct {
	pool *pgxpool.Pool
}

// NewSimulationRepository creates a new SimulationRepository.
func NewSimulationRepository(pool *pgxpool.Pool) *SimulationRepository {
	return &SimulationRepository{pool: pool}
}

func scanSimulation(row pgx.Row, s *model.Simulation) error {
	return row.Scan(&s.ID, &s.Title, &s.Type, &s.TotalQuestions, &s.DurationMinutes, &s.PassingScore,
		&s.WrongPenalty, &s.IsOfficial, &s.IsPublic, &s.IsRepeatable, &s.Status, &s.CreatedBy,
		&s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a simulation with its sections.
func (r *SimulationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Simulation, error) {
	s := &model.Simulation{}
	if err := scanSimulation(r.pool.QueryRow(ctx,
		`SELECT `+simulationColumns+` FROM simulations WHERE id = $1`, id), s); err != nil {
		return nil, err
	}

	sections, err := r.listSections(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Sections = sections
	return s, nil
}

func (r *SimulationRepository) listSections(ctx context.Context, simulationID uuid.UUID) ([]model.Section, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ss.id, ss.simulation_id, ss.name, ss.position, ss.duration_minutes,
		        COALESCE(ARRAY_AGG(q.id ORDER BY q.position) FILTER (WHERE q.id IS NOT NULL), '{}')
		 FROM simulation_sections ss
		 LEFT JOIN questions q ON q.section_id = ss.id
		 WHERE ss.simulation_id = $1
		 GROUP BY ss.id
		 ORDER BY ss.position`, simulationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.SimulationID, &sec.Name, &sec.Position, &sec.DurationMinutes, &sec.QuestionIDs); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// ListQuestions returns every question of a simulation ordered by section and position.
func (r *SimulationRepository) ListQuestions(ctx context.Context, simulationID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.simulation_id, q.section_id, q.position, q.type, q.text, q.options,
		        COALESCE(q.correct_answer_id, ''), q.weight
		 FROM questions q
		 JOIN simulation_sections ss ON ss.id = q.section_id
		 WHERE q.simulation_id = $1
		 ORDER BY ss.position, q.position`, simulationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SimulationID, &q.SectionID, &q.Position, &q.Type, &q.Text,
			&q.Options, &q.CorrectAnswerID, &q.Weight); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// List returns simulations with pagination. A non-nil createdBy restricts the
// list to one author; a non-empty status filters by status.
func (r *SimulationRepository) List(ctx context.Context, createdBy *uuid.UUID, status model.SimulationStatus, limit, offset int) ([]model.Simulation, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if createdBy != nil {
		args = append(args, *createdBy)
		where += fmt.Sprintf(" AND created_by = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM simulations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + simulationColumns + ` FROM simulations` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sims []model.Simulation
	for rows.Next() {
		var s model.Simulation
		if err := scanSimulation(rows, &s); err != nil {
			return nil, 0, err
		}
		sims = append(sims, s)
	}
	return sims, total, rows.Err()
}

// ListPublished returns all published simulations. Used for cache prewarming.
func (r *SimulationRepository) ListPublished(ctx context.Context) ([]model.Simulation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+simulationColumns+` FROM simulations WHERE status = $1`, model.SimulationStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []model.Simulation
	for rows.Next() {
		var s model.Simulation
		if err := scanSimulation(rows, &s); err != nil {
			return nil, err
		}
		sims = append(sims, s)
	}
	return sims, rows.Err()
}

// Create inserts a simulation together with its sections and questions in a
// single transaction. IDs and timestamps are written back into the arguments.
func (r *SimulationRepository) Create(ctx context.Context, s *model.Simulation, questions [][]model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO simulations (title, type, total_questions, duration_minutes, passing_score,
			                          wrong_penalty, is_official, is_public, is_repeatable, status, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id, created_at, updated_at`,
			s.Title, s.Type, s.TotalQuestions, s.DurationMinutes, s.PassingScore,
			s.WrongPenalty, s.IsOfficial, s.IsPublic, s.IsRepeatable, s.Status, s.CreatedBy,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return fmt.Errorf("insert simulation: %w", err)
		}

		for i := range s.Sections {
			sec := &s.Sections[i]
			sec.SimulationID = s.ID
			sec.Position = i + 1
			if err := tx.QueryRow(ctx,
				`INSERT INTO simulation_sections (simulation_id, name, position, duration_minutes)
				 VALUES ($1, $2, $3, $4) RETURNING id`,
				s.ID, sec.Name, sec.Position, sec.DurationMinutes,
			).Scan(&sec.ID); err != nil {
				return fmt.Errorf("insert section %d: %w", sec.Position, err)
			}

			if i >= len(questions) {
				continue
			}
			batch := &pgx.Batch{}
			for j := range questions[i] {
				q := &questions[i][j]
				q.SimulationID = s.ID
				q.SectionID = sec.ID
				q.Position = j + 1
				if q.Options == nil {
					q.Options = []model.AnswerOption{}
				}
				batch.Queue(
					`INSERT INTO questions (simulation_id, section_id, position, type, text, options, correct_answer_id, weight)
					 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8) RETURNING id`,
					q.SimulationID, q.SectionID, q.Position, q.Type, q.Text, q.Options, q.CorrectAnswerID, q.Weight,
				).QueryRow(func(row pgx.Row) error {
					return row.Scan(&q.ID)
				})
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert questions of section %d: %w", sec.Position, err)
			}
			sec.QuestionIDs = make([]uuid.UUID, 0, len(questions[i]))
			for _, q := range questions[i] {
				sec.QuestionIDs = append(sec.QuestionIDs, q.ID)
			}
		}
		return nil
	})
}

// UpdateStatus updates a simulation's status.
func (r *SimulationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.SimulationStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE simulations SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
