package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

func TestScore(t *testing.T) {
	sim := publishedSimulation(uuid.New())
	sim.WrongPenalty = 0.25
	sim.PassingScore = ptrFloat(1.5)
	q1 := mcQuestion(sim.ID, 1, "a")
	q2 := mcQuestion(sim.ID, 2, "b")
	q3 := mcQuestion(sim.ID, 3, "c")
	q4 := openQuestion(sim.ID, 4, 2)
	questions := []model.Question{q1, q2, q3, q4}

	tests := []struct {
		name    string
		answers []model.SubmittedAnswer
		correct int
		wrong   int
		blank   int
		pending int
		total   float64
		pct     float64
		passed  bool
	}{
		{
			name:  "all blank",
			blank: 4,
		},
		{
			name: "two right one wrong open pending",
			answers: []model.SubmittedAnswer{
				{QuestionID: q1.ID, SelectedAnswerID: "a"},
				{QuestionID: q2.ID, SelectedAnswerID: "b"},
				{QuestionID: q3.ID, SelectedAnswerID: "a"},
				{QuestionID: q4.ID, FreeText: "La fotosintesi..."},
			},
			correct: 2, wrong: 1, pending: 1,
			total: 1.75, pct: 35, passed: true,
		},
		{
			name: "wrong answers go negative",
			answers: []model.SubmittedAnswer{
				{QuestionID: q1.ID, SelectedAnswerID: "b"},
				{QuestionID: q2.ID, SelectedAnswerID: "a"},
				{QuestionID: q4.ID, FreeText: "   "},
			},
			wrong: 2, blank: 2,
			total: -0.5, pct: -10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(sim, questions, tt.answers)
			if err != nil {
				t.Fatalf("score: %v", err)
			}
			if got.CorrectAnswers != tt.correct || got.WrongAnswers != tt.wrong ||
				got.BlankAnswers != tt.blank || got.PendingReview != tt.pending {
				t.Fatalf("counts: got %d/%d/%d/%d", got.CorrectAnswers, got.WrongAnswers, got.BlankAnswers, got.PendingReview)
			}
			if got.TotalScore != tt.total || got.PercentageScore != tt.pct || got.Passed != tt.passed {
				t.Fatalf("got total=%v pct=%v passed=%v", got.TotalScore, got.PercentageScore, got.Passed)
			}
			if got.MaxScore != 5 {
				t.Fatalf("expected max score 5, got %v", got.MaxScore)
			}
			if len(got.Answers) != len(questions) {
				t.Fatalf("expected one evaluated answer per question, got %d", len(got.Answers))
			}
		})
	}
}

func TestScoreDecimalRounding(t *testing.T) {
	sim := publishedSimulation(uuid.New())
	var questions []model.Question
	var answers []model.SubmittedAnswer
	for i := 0; i < 3; i++ {
		q := mcQuestion(sim.ID, i, "a")
		q.Weight = 0.1
		questions = append(questions, q)
		answers = append(answers, model.SubmittedAnswer{QuestionID: q.ID, SelectedAnswerID: "a"})
	}

	got, err := Score(sim, questions, answers)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got.TotalScore != 0.3 || got.PercentageScore != 100 {
		t.Fatalf("expected 0.3 and 100%%, got %v and %v", got.TotalScore, got.PercentageScore)
	}
	if got.Passed {
		t.Fatalf("no passing score means not passed")
	}
}

func TestScoreRejectsUnknownAndDuplicateAnswers(t *testing.T) {
	sim := publishedSimulation(uuid.New())
	q := mcQuestion(sim.ID, 1, "a")

	_, err := Score(sim, []model.Question{q}, []model.SubmittedAnswer{{QuestionID: uuid.New(), SelectedAnswerID: "a"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown question, got %v", err)
	}
	_, err = Score(sim, []model.Question{q}, []model.SubmittedAnswer{
		{QuestionID: q.ID, SelectedAnswerID: "a"},
		{QuestionID: q.ID, SelectedAnswerID: "b"},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for duplicate answer, got %v", err)
	}
}

func TestRescore(t *testing.T) {
	sim := publishedSimulation(uuid.New())
	mc := mcQuestion(sim.ID, 1, "a")
	open := openQuestion(sim.ID, 2, 3)
	blankOpen := openQuestion(sim.ID, 3, 1)
	questions := []model.Question{mc, open, blankOpen}

	scored, err := Score(sim, questions, []model.SubmittedAnswer{
		{QuestionID: mc.ID, SelectedAnswerID: "a"},
		{QuestionID: open.ID, FreeText: "risposta"},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	got, err := Rescore(sim, questions, scored.Answers, []model.ReviewAward{{QuestionID: open.ID, Points: 2.5}})
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if got.PendingReview != 0 || got.CorrectAnswers != 2 || got.TotalScore != 3.5 {
		t.Fatalf("unexpected rescore: %+v", got)
	}
	if scored.Answers[1].Outcome != model.OutcomePendingReview {
		t.Fatalf("rescore must not touch the stored answers")
	}

	bad := []struct {
		name   string
		awards []model.ReviewAward
	}{
		{"above weight", []model.ReviewAward{{QuestionID: open.ID, Points: 3.5}}},
		{"negative", []model.ReviewAward{{QuestionID: open.ID, Points: -1}}},
		{"multiple choice", []model.ReviewAward{{QuestionID: mc.ID, Points: 1}}},
		{"unknown", []model.ReviewAward{{QuestionID: uuid.New(), Points: 1}}},
		{"unanswered", []model.ReviewAward{{QuestionID: blankOpen.ID, Points: 1}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rescore(sim, questions, scored.Answers, tt.awards); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
