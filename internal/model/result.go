package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnswerOutcome is the grading outcome of a single answer.
type AnswerOutcome string

const (
	OutcomeCorrect       AnswerOutcome = "CORRECT"
	OutcomeWrong         AnswerOutcome = "WRONG"
	OutcomeBlank         AnswerOutcome = "BLANK"
	OutcomePendingReview AnswerOutcome = "PENDING_REVIEW"
)

// SubmittedAnswer is one per-question entry of a submission.
type SubmittedAnswer struct {
	QuestionID       uuid.UUID `json:"question_id" binding:"required"`
	SelectedAnswerID string    `json:"selected_answer_id,omitempty" binding:"omitempty,max=16"`
	FreeText         string    `json:"free_text,omitempty" binding:"omitempty,max=10000"`
	TimeSpentSeconds int       `json:"time_spent_seconds" binding:"min=0"`
	Flagged          bool      `json:"flagged"`
}

// Answered reports whether the entry carries a selection or some text.
func (a SubmittedAnswer) Answered() bool {
	return a.SelectedAnswerID != "" || strings.TrimSpace(a.FreeText) != ""
}

// EvaluatedAnswer is a submitted answer together with its grading.
type EvaluatedAnswer struct {
	SubmittedAnswer
	Outcome AnswerOutcome `json:"outcome"`
	Points  float64       `json:"points"`
}

// Result is the persisted outcome of one completed attempt.
type Result struct {
	ID              uuid.UUID         `json:"id"`
	SimulationID    uuid.UUID         `json:"simulation_id"`
	StudentID       uuid.UUID         `json:"student_id"`
	StudentName     string            `json:"student_name,omitempty"`
	AssignmentID    *uuid.UUID        `json:"assignment_id,omitempty"`
	AttemptID       uuid.UUID         `json:"attempt_id"`
	Attempt         int               `json:"attempt"`
	Answers         []EvaluatedAnswer `json:"answers"`
	CorrectAnswers  int               `json:"correct_answers"`
	WrongAnswers    int               `json:"wrong_answers"`
	BlankAnswers    int               `json:"blank_answers"`
	PendingReview   int               `json:"pending_review"`
	TotalScore      float64           `json:"total_score"`
	MaxScore        float64           `json:"max_score"`
	PercentageScore float64           `json:"percentage_score"`
	Passed          bool              `json:"passed"`
	DurationSeconds int               `json:"duration_seconds"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy      *uuid.UUID        `json:"reviewed_by,omitempty"`
}

// SubmitSimulationRequest is the payload for submitting an attempt.
// AttemptID is the idempotency key of the attempt.
type SubmitSimulationRequest struct {
	AttemptID       uuid.UUID         `json:"attempt_id" binding:"required"`
	StartedAt       *time.Time        `json:"started_at" binding:"omitempty"`
	DurationSeconds int               `json:"duration_seconds" binding:"min=0"`
	Answers         []SubmittedAnswer `json:"answers" binding:"dive"`
}

// ReviewAward grants points to one open-text answer.
type ReviewAward struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Points     float64   `json:"points" binding:"min=0"`
}

// ReviewResultRequest is the payload for the manual review of open answers.
type ReviewResultRequest struct {
	Awards []ReviewAward `json:"awards" binding:"required,min=1,dive"`
}
