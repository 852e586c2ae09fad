package session

import "github.com/google/uuid"

// CanEnter reports whether the question at index may be shown. Only the
// current section is reachable while it is open; once the current section is
// completed (which only happens after the last one) every completed section is
// reachable for review.
func CanEnter(index int, s State) bool {
	section, _, ok := s.Layout.Locate(index)
	if !ok {
		return false
	}
	if !s.sectionCompleted(s.CurrentSection) {
		return section == s.CurrentSection
	}
	return s.sectionCompleted(section)
}

// DotStatus is the marker drawn for a question in the section navigator.
type DotStatus string

const (
	DotAnswered   DotStatus = "answered"
	DotFlagged    DotStatus = "flagged"
	DotUnanswered DotStatus = "unanswered"
)

// QuestionStatus is one navigator dot.
type QuestionStatus struct {
	Index      int       `json:"index"`
	QuestionID uuid.UUID `json:"question_id"`
	Status     DotStatus `json:"status"`
}

// QuestionStatuses returns the navigator dots of the current section. A flag
// wins over an answer.
func QuestionStatuses(s State) []QuestionStatus {
	if s.CurrentSection < 0 || s.CurrentSection >= len(s.Layout.Sections) {
		return nil
	}
	first := s.Layout.FirstIndex(s.CurrentSection)
	sec := s.Layout.Sections[s.CurrentSection]
	out := make([]QuestionStatus, 0, len(sec.Questions))
	for i, q := range sec.Questions {
		st := DotUnanswered
		if a, ok := s.Answers.Get(q.ID); ok {
			switch {
			case a.Flagged:
				st = DotFlagged
			case a.Answered():
				st = DotAnswered
			}
		}
		out = append(out, QuestionStatus{Index: first + i, QuestionID: q.ID, Status: st})
	}
	return out
}
