package session

import (
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// ActionType enumerates the inputs accepted by the session controller.
type ActionType string

const (
	ActionSelectAnswer    ActionType = "SELECT_ANSWER"
	ActionSetFreeText     ActionType = "SET_FREE_TEXT"
	ActionToggleFlag      ActionType = "TOGGLE_FLAG"
	ActionGoto            ActionType = "GOTO"
	ActionNext            ActionType = "NEXT"
	ActionPrev            ActionType = "PREV"
	ActionCompleteSection ActionType = "COMPLETE_SECTION"
	ActionSubmit          ActionType = "SUBMIT"
	ActionTimeout         ActionType = "TIMEOUT"
	ActionTick            ActionType = "TICK"
)

// Action is a single controller input. Only the fields relevant to Type are read.
type Action struct {
	Type       ActionType `json:"type"`
	QuestionID uuid.UUID  `json:"question_id,omitempty"`
	AnswerID   string     `json:"answer_id,omitempty"`
	Text       string     `json:"text,omitempty"`
	Index      int        `json:"index,omitempty"`
	Seconds    int        `json:"seconds,omitempty"`
}

// Event is what a transition signals to the caller besides the new state.
type Event string

const (
	EventNone             Event = ""
	EventSectionCompleted Event = "SECTION_COMPLETED"
	EventTimeout          Event = "TIMEOUT"
	EventSubmitted        Event = "SUBMITTED"
)

// Submission is the packaged attempt: one entry per question of the paper in
// layout order, untouched questions filled with defaults.
type Submission struct {
	Answers  []Answer `json:"answers"`
	TimedOut bool     `json:"timed_out"`
}

// State is the full state of one attempt.
type State struct {
	Layout         Layout            `json:"layout"`
	Current        int               `json:"current"`
	CurrentSection int               `json:"current_section"`
	Completed      []bool            `json:"completed"`
	Answers        AnswerStore       `json:"answers"`
	TimeSpent      map[uuid.UUID]int `json:"time_spent"`
	Timer          SectionTimer      `json:"timer"`
	Submitted      bool              `json:"submitted"`
	Submission     *Submission       `json:"submission,omitempty"`
}

// NewState positions a fresh attempt on the first question of the first
// section with that section's timer armed.
func NewState(l Layout) (State, error) {
	if err := l.validate(); err != nil {
		return State{}, err
	}
	return State{
		Layout:    l,
		Completed: make([]bool, len(l.Sections)),
		Answers:   AnswerStore{},
		TimeSpent: map[uuid.UUID]int{},
		Timer:     NewSectionTimer(l.Sections[0].DurationMinutes),
	}, nil
}

func (s State) sectionCompleted(i int) bool {
	return i >= 0 && i < len(s.Completed) && s.Completed[i]
}

func (s State) lastSection() int { return len(s.Layout.Sections) - 1 }

// ReviewMode reports whether every section is closed and the attempt is
// waiting to be submitted (or was submitted).
func (s State) ReviewMode() bool { return s.sectionCompleted(s.CurrentSection) }

// clone copies everything an action may modify so the input is never touched.
func (s State) clone() State {
	out := s
	out.Completed = append([]bool(nil), s.Completed...)
	out.Answers = s.Answers.Clone()
	out.TimeSpent = make(map[uuid.UUID]int, len(s.TimeSpent))
	for k, v := range s.TimeSpent {
		out.TimeSpent[k] = v
	}
	return out
}

// Apply returns the state reached by applying a to s. s is left untouched.
func Apply(s State, a Action) State {
	next, _ := Transition(s, a)
	return next
}

// Transition is Apply plus the event the action produced. Invalid or
// disallowed actions yield the unchanged state and EventNone; no action fails.
func Transition(s State, a Action) (State, Event) {
	if s.Submitted {
		// A submitted attempt only answers SUBMIT again so the packaged
		// submission can be resent.
		if a.Type == ActionSubmit {
			return s, EventSubmitted
		}
		return s, EventNone
	}

	switch a.Type {
	case ActionSelectAnswer:
		return editAnswer(s, a.QuestionID, model.QuestionTypeMultipleChoice, func(ans *Answer) {
			ans.SelectedAnswerID = a.AnswerID
		})
	case ActionSetFreeText:
		return editAnswer(s, a.QuestionID, model.QuestionTypeOpenText, func(ans *Answer) {
			ans.FreeText = a.Text
		})
	case ActionToggleFlag:
		return editAnswer(s, a.QuestionID, "", func(ans *Answer) {
			ans.Flagged = !ans.Flagged
		})
	case ActionGoto:
		return gotoIndex(s, a.Index)
	case ActionNext:
		return step(s, 1)
	case ActionPrev:
		return step(s, -1)
	case ActionCompleteSection:
		return completeSection(s)
	case ActionSubmit:
		if !s.sectionCompleted(s.lastSection()) {
			return s, EventNone
		}
		return submit(s, false), EventSubmitted
	case ActionTimeout:
		return timeout(s)
	case ActionTick:
		return tick(s, a.Seconds)
	}
	return s, EventNone
}

// editAnswer upserts the store entry of questionID when the question is part of
// the open current section. kind restricts the edit to one question type;
// empty means any.
func editAnswer(s State, questionID uuid.UUID, kind model.QuestionType, fn func(*Answer)) (State, Event) {
	section, ref, ok := s.Layout.Find(questionID)
	if !ok || section != s.CurrentSection || s.sectionCompleted(section) {
		return s, EventNone
	}
	if kind != "" && ref.Type != "" && ref.Type != kind {
		return s, EventNone
	}
	next := s.clone()
	next.Answers = s.Answers.upsert(questionID, fn)
	return next, EventNone
}

func gotoIndex(s State, index int) (State, Event) {
	if index == s.Current || !CanEnter(index, s) {
		return s, EventNone
	}
	next := s.clone()
	next.Current = index
	return next, EventNone
}

// step moves by delta without leaving the section of the current question.
func step(s State, delta int) (State, Event) {
	from, _, ok := s.Layout.Locate(s.Current)
	if !ok {
		return s, EventNone
	}
	to, _, ok := s.Layout.Locate(s.Current + delta)
	if !ok || to != from {
		return s, EventNone
	}
	return gotoIndex(s, s.Current+delta)
}

func completeSection(s State) (State, Event) {
	if s.sectionCompleted(s.CurrentSection) {
		return s, EventNone
	}
	next := s.clone()
	next.Completed[s.CurrentSection] = true
	if s.CurrentSection < s.lastSection() {
		next.CurrentSection++
		next.Current = next.Layout.FirstIndex(next.CurrentSection)
		next.Timer = NewSectionTimer(next.Layout.Sections[next.CurrentSection].DurationMinutes)
	}
	return next, EventSectionCompleted
}

// timeout closes the active section; on the last section it also submits.
func timeout(s State) (State, Event) {
	last := s.CurrentSection == s.lastSection()
	next, _ := completeSection(s)
	if !last {
		return next, EventTimeout
	}
	next.Timer = SectionTimer{Fired: true}
	return submit(next, true), EventSubmitted
}

// tick accounts elapsed seconds to the current question and the section timer.
func tick(s State, seconds int) (State, Event) {
	if seconds <= 0 {
		return s, EventNone
	}
	next := s.clone()
	if !s.ReviewMode() {
		if _, q, ok := s.Layout.Locate(s.Current); ok {
			next.TimeSpent[q.ID] += seconds
		}
	}
	var fired bool
	next.Timer, fired = s.Timer.Advance(seconds)
	if !fired {
		return next, EventNone
	}
	return timeout(next)
}

// submit packages every question of the paper. Answers stay in the store.
func submit(s State, timedOut bool) State {
	next := s.clone()
	sub := &Submission{TimedOut: timedOut, Answers: make([]Answer, 0, s.Layout.Len())}
	for _, sec := range s.Layout.Sections {
		for _, q := range sec.Questions {
			a, ok := s.Answers.Get(q.ID)
			if !ok {
				a = Answer{QuestionID: q.ID}
			}
			a.TimeSpentSeconds = s.TimeSpent[q.ID]
			sub.Answers = append(sub.Answers, a)
		}
	}
	next.Submitted = true
	next.Submission = sub
	return next
}

// View is the client-facing rendering of a state.
type View struct {
	Current          int              `json:"current"`
	QuestionID       uuid.UUID        `json:"question_id"`
	CurrentSection   int              `json:"current_section"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Completed        []bool           `json:"completed"`
	ReviewMode       bool             `json:"review_mode"`
	Submitted        bool             `json:"submitted"`
	Statuses         []QuestionStatus `json:"statuses"`
	Answers          AnswerStore      `json:"answers"`
}

// Render builds the view of s.
func Render(s State) View {
	_, q, _ := s.Layout.Locate(s.Current)
	return View{
		Current:          s.Current,
		QuestionID:       q.ID,
		CurrentSection:   s.CurrentSection,
		RemainingSeconds: s.Timer.Remaining(),
		Completed:        append([]bool(nil), s.Completed...),
		ReviewMode:       s.ReviewMode(),
		Submitted:        s.Submitted,
		Statuses:         QuestionStatuses(s),
		Answers:          s.Answers.Clone(),
	}
}
