package model

import (
	"time"

	"github.com/google/uuid"
)

// SimulationStatus enumerates the lifecycle of a simulation template.
type SimulationStatus string

const (
	SimulationStatusDraft     SimulationStatus = "DRAFT"
	SimulationStatusPublished SimulationStatus = "PUBLISHED"
	SimulationStatusArchived  SimulationStatus = "ARCHIVED"
)

// Simulation is a reusable exam template.
type Simulation struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	Type            string           `json:"type"`
	TotalQuestions  int              `json:"total_questions"`
	DurationMinutes int              `json:"duration_minutes"`
	PassingScore    *float64         `json:"passing_score,omitempty"`
	WrongPenalty    float64          `json:"wrong_penalty"`
	IsOfficial      bool             `json:"is_official"`
	IsPublic        bool             `json:"is_public"`
	IsRepeatable    bool             `json:"is_repeatable"`
	Status          SimulationStatus `json:"status"`
	CreatedBy       uuid.UUID        `json:"created_by"`
	Sections        []Section        `json:"sections,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Section is a timed sub-block of a simulation.
type Section struct {
	ID              uuid.UUID   `json:"id"`
	SimulationID    uuid.UUID   `json:"simulation_id"`
	Name            string      `json:"name"`
	Position        int         `json:"position"`
	DurationMinutes int         `json:"duration_minutes"`
	QuestionIDs     []uuid.UUID `json:"question_ids"`
}

// QuestionType decides whether a question is graded automatically.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeOpenText       QuestionType = "OPEN_TEXT"
)

// AnswerOption is one selectable answer of a multiple-choice question.
type AnswerOption struct {
	ID   string `json:"id" yaml:"id" binding:"required,max=16"`
	Text string `json:"text" yaml:"text" binding:"required,max=2000"`
}

// Question belongs to exactly one section.
type Question struct {
	ID              uuid.UUID      `json:"id"`
	SimulationID    uuid.UUID      `json:"simulation_id"`
	SectionID       uuid.UUID      `json:"section_id"`
	Position        int            `json:"position"`
	Type            QuestionType   `json:"type"`
	Text            string         `json:"text"`
	Options         []AnswerOption `json:"options"`
	CorrectAnswerID string         `json:"correct_answer_id,omitempty"`
	Weight          float64        `json:"weight"`
}

// CreateSimulationRequest is the payload for authoring a simulation with its
// sections and questions in one call.
type CreateSimulationRequest struct {
	Title        string                 `json:"title" yaml:"title" binding:"required,min=3,max=255"`
	Type         string                 `json:"type" yaml:"type" binding:"required,max=50"`
	PassingScore *float64               `json:"passing_score" yaml:"passing_score" binding:"omitempty,min=0"`
	WrongPenalty float64                `json:"wrong_penalty" yaml:"wrong_penalty" binding:"min=0"`
	IsOfficial   bool                   `json:"is_official" yaml:"is_official"`
	IsPublic     bool                   `json:"is_public" yaml:"is_public"`
	IsRepeatable bool                   `json:"is_repeatable" yaml:"is_repeatable"`
	Sections     []CreateSectionRequest `json:"sections" yaml:"sections" binding:"required,min=1,dive"`
}

// CreateSectionRequest describes one section of a new simulation.
type CreateSectionRequest struct {
	Name            string                  `json:"name" yaml:"name" binding:"required,max=255"`
	DurationMinutes int                     `json:"duration_minutes" yaml:"duration_minutes" binding:"required,min=1,max=480"`
	Questions       []CreateQuestionRequest `json:"questions" yaml:"questions" binding:"required,min=1,dive"`
}

// CreateQuestionRequest describes one question of a new section.
type CreateQuestionRequest struct {
	Type            QuestionType   `json:"type" yaml:"type" binding:"required,oneof=MULTIPLE_CHOICE OPEN_TEXT"`
	Text            string         `json:"text" yaml:"text" binding:"required,max=4000"`
	Options         []AnswerOption `json:"options" yaml:"options" binding:"omitempty,dive"`
	CorrectAnswerID string         `json:"correct_answer_id" yaml:"correct_answer_id" binding:"omitempty,max=16"`
	Weight          float64        `json:"weight" yaml:"weight" binding:"omitempty,gt=0"`
}

// SimulationPaper is the cached payload sent to students (no correct answers).
type SimulationPaper struct {
	SimulationID    uuid.UUID      `json:"simulation_id"`
	Title           string         `json:"title"`
	DurationMinutes int            `json:"duration_minutes"`
	Sections        []PaperSection `json:"sections"`
}

// PaperSection is a section as rendered to students.
type PaperSection struct {
	ID              uuid.UUID            `json:"id"`
	Name            string               `json:"name"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	ID      uuid.UUID      `json:"id"`
	Type    QuestionType   `json:"type"`
	Text    string         `json:"text"`
	Options []AnswerOption `json:"options"`
}
