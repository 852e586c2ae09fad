package session

import (
	"strings"

	"github.com/google/uuid"
)

// Answer is the per-question record kept while an attempt is in progress.
// SelectedAnswerID is meaningful for multiple-choice questions and FreeText
// for open-text ones.
type Answer struct {
	QuestionID       uuid.UUID `json:"question_id"`
	SelectedAnswerID string    `json:"selected_answer_id,omitempty"`
	FreeText         string    `json:"free_text,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	Flagged          bool      `json:"flagged"`
}

// Answered reports whether the record carries a response.
func (a Answer) Answered() bool {
	return a.SelectedAnswerID != "" || strings.TrimSpace(a.FreeText) != ""
}

// AnswerStore holds one entry per touched question. Untouched questions are
// absent; defaults are only produced when the attempt is packaged.
type AnswerStore map[uuid.UUID]Answer

// Get returns the entry for questionID, if any.
func (s AnswerStore) Get(questionID uuid.UUID) (Answer, bool) {
	a, ok := s[questionID]
	return a, ok
}

// Len returns the number of touched questions.
func (s AnswerStore) Len() int { return len(s) }

// Clone returns an independent copy of the store.
func (s AnswerStore) Clone() AnswerStore {
	out := make(AnswerStore, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// upsert returns a copy of the store with fn applied to questionID's entry,
// creating the entry when missing.
func (s AnswerStore) upsert(questionID uuid.UUID, fn func(*Answer)) AnswerStore {
	out := s.Clone()
	a, ok := out[questionID]
	if !ok {
		a = Answer{QuestionID: questionID}
	}
	fn(&a)
	out[questionID] = a
	return out
}
