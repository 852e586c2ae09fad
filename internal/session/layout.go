package session

import (
	"errors"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// ErrEmptyLayout is returned when a paper has no questions to navigate.
var ErrEmptyLayout = errors.New("session: layout has an empty section or no sections")

// QuestionRef identifies a question and its kind inside a layout.
type QuestionRef struct {
	ID   uuid.UUID          `json:"id"`
	Type model.QuestionType `json:"type"`
}

// SectionLayout is the ordered question list and duration of one section.
type SectionLayout struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	DurationMinutes int           `json:"duration_minutes"`
	Questions       []QuestionRef `json:"questions"`
}

// Layout is the section structure of a paper. Questions are addressed by a
// flat index running across all sections in order.
type Layout struct {
	Sections []SectionLayout `json:"sections"`
}

// LayoutFromPaper builds the navigation layout of a student paper.
func LayoutFromPaper(p *model.SimulationPaper) Layout {
	l := Layout{Sections: make([]SectionLayout, 0, len(p.Sections))}
	for _, s := range p.Sections {
		sl := SectionLayout{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes}
		for _, q := range s.Questions {
			sl.Questions = append(sl.Questions, QuestionRef{ID: q.ID, Type: q.Type})
		}
		l.Sections = append(l.Sections, sl)
	}
	return l
}

func (l Layout) validate() error {
	if len(l.Sections) == 0 {
		return ErrEmptyLayout
	}
	for _, s := range l.Sections {
		if len(s.Questions) == 0 {
			return ErrEmptyLayout
		}
	}
	return nil
}

// Len returns the total number of questions.
func (l Layout) Len() int {
	n := 0
	for _, s := range l.Sections {
		n += len(s.Questions)
	}
	return n
}

// Locate maps a flat index to its section index and question. ok is false when
// index is out of range.
func (l Layout) Locate(index int) (section int, q QuestionRef, ok bool) {
	if index < 0 {
		return 0, QuestionRef{}, false
	}
	for i, s := range l.Sections {
		if index < len(s.Questions) {
			return i, s.Questions[index], true
		}
		index -= len(s.Questions)
	}
	return 0, QuestionRef{}, false
}

// FirstIndex returns the flat index of the first question of section.
func (l Layout) FirstIndex(section int) int {
	n := 0
	for i := 0; i < section && i < len(l.Sections); i++ {
		n += len(l.Sections[i].Questions)
	}
	return n
}

// Find returns the section index and question ref of questionID.
func (l Layout) Find(questionID uuid.UUID) (section int, q QuestionRef, ok bool) {
	for i, s := range l.Sections {
		for _, ref := range s.Questions {
			if ref.ID == questionID {
				return i, ref, true
			}
		}
	}
	return 0, QuestionRef{}, false
}
