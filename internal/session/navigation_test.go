package session

import (
	"testing"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

func TestCanEnter(t *testing.T) {
	open, _ := newTestState(t)
	second := Apply(open, Action{Type: ActionCompleteSection})
	review := Apply(second, Action{Type: ActionCompleteSection})

	tests := []struct {
		name  string
		state State
		index int
		want  bool
	}{
		{"current section first", open, 0, true},
		{"current section last", open, 2, true},
		{"next section", open, 3, false},
		{"out of range", open, 5, false},
		{"negative", open, -1, false},
		{"completed section while next open", second, 1, false},
		{"open second section", second, 4, true},
		{"review first section", review, 0, true},
		{"review second section", review, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanEnter(tt.index, tt.state); got != tt.want {
				t.Errorf("CanEnter(%d) = %v, want %v", tt.index, got, tt.want)
			}
		})
	}
}

func TestLayoutFromPaper(t *testing.T) {
	q1, q2 := uuid.New(), uuid.New()
	paper := &model.SimulationPaper{
		SimulationID: uuid.New(),
		Sections: []model.PaperSection{
			{ID: uuid.New(), Name: "Chimica", DurationMinutes: 20, Questions: []model.QuestionForStudent{
				{ID: q1, Type: model.QuestionTypeMultipleChoice},
			}},
			{ID: uuid.New(), Name: "Tema", DurationMinutes: 30, Questions: []model.QuestionForStudent{
				{ID: q2, Type: model.QuestionTypeOpenText},
			}},
		},
	}
	l := LayoutFromPaper(paper)
	if l.Len() != 2 {
		t.Fatalf("len = %d", l.Len())
	}
	sec, ref, ok := l.Locate(1)
	if !ok || sec != 1 || ref.ID != q2 || ref.Type != model.QuestionTypeOpenText {
		t.Fatalf("Locate(1) = %d %+v %v", sec, ref, ok)
	}
	if l.FirstIndex(1) != 1 {
		t.Fatalf("FirstIndex(1) = %d", l.FirstIndex(1))
	}
}
