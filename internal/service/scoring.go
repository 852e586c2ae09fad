package service

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// ScoredResult is the grading of one attempt.
type ScoredResult struct {
	Answers         []model.EvaluatedAnswer
	CorrectAnswers  int
	WrongAnswers    int
	BlankAnswers    int
	PendingReview   int
	TotalScore      float64
	MaxScore        float64
	PercentageScore float64
	Passed          bool
}

// Score grades answers against the questions of sim. Every question gets an
// evaluated entry in question order; questions without an answer are blank.
// Answers to unknown questions, or duplicated answers, are a validation error.
func Score(sim *model.Simulation, questions []model.Question, answers []model.SubmittedAnswer) (*ScoredResult, error) {
	byQuestion := make(map[uuid.UUID]model.SubmittedAnswer, len(answers))
	known := make(map[uuid.UUID]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	for _, a := range answers {
		if _, ok := known[a.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: unknown question %s", ErrValidation, a.QuestionID)
		}
		if _, dup := byQuestion[a.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate answer for question %s", ErrValidation, a.QuestionID)
		}
		byQuestion[a.QuestionID] = a
	}

	evaluated := make([]model.EvaluatedAnswer, 0, len(questions))
	for _, q := range questions {
		a, ok := byQuestion[q.ID]
		if !ok {
			a = model.SubmittedAnswer{QuestionID: q.ID}
		}
		evaluated = append(evaluated, grade(sim, q, a))
	}
	return totals(sim, questions, evaluated), nil
}

// Rescore applies review awards to the open-text answers of a stored result.
// Awards must target open-text questions and cannot exceed the question weight.
func Rescore(sim *model.Simulation, questions []model.Question, stored []model.EvaluatedAnswer, awards []model.ReviewAward) (*ScoredResult, error) {
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	awarded := make(map[uuid.UUID]decimal.Decimal, len(awards))
	for _, aw := range awards {
		q, ok := byID[aw.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %s", ErrValidation, aw.QuestionID)
		}
		if q.Type != model.QuestionTypeOpenText {
			return nil, fmt.Errorf("%w: question %s is not open text", ErrValidation, aw.QuestionID)
		}
		points := decimal.NewFromFloat(aw.Points)
		if points.IsNegative() || points.GreaterThan(decimal.NewFromFloat(q.Weight)) {
			return nil, fmt.Errorf("%w: points for %s must be between 0 and %v", ErrValidation, aw.QuestionID, q.Weight)
		}
		awarded[aw.QuestionID] = points
	}

	evaluated := make([]model.EvaluatedAnswer, len(stored))
	copy(evaluated, stored)
	for i := range evaluated {
		pts, ok := awarded[evaluated[i].QuestionID]
		if !ok {
			continue
		}
		if !evaluated[i].Answered() {
			return nil, fmt.Errorf("%w: question %s has no answer to review", ErrValidation, evaluated[i].QuestionID)
		}
		evaluated[i].Points = pts.Round(2).InexactFloat64()
		if pts.IsPositive() {
			evaluated[i].Outcome = model.OutcomeCorrect
		} else {
			evaluated[i].Outcome = model.OutcomeWrong
		}
	}
	return totals(sim, questions, evaluated), nil
}

func grade(sim *model.Simulation, q model.Question, a model.SubmittedAnswer) model.EvaluatedAnswer {
	ev := model.EvaluatedAnswer{SubmittedAnswer: a}
	switch q.Type {
	case model.QuestionTypeOpenText:
		// Only the free text is meaningful for open questions.
		ev.SelectedAnswerID = ""
		if strings.TrimSpace(a.FreeText) == "" {
			ev.Outcome = model.OutcomeBlank
		} else {
			ev.Outcome = model.OutcomePendingReview
		}
	default:
		ev.FreeText = ""
		switch {
		case a.SelectedAnswerID == "":
			ev.Outcome = model.OutcomeBlank
		case a.SelectedAnswerID == q.CorrectAnswerID:
			ev.Outcome = model.OutcomeCorrect
			ev.Points = decimal.NewFromFloat(q.Weight).Round(2).InexactFloat64()
		default:
			ev.Outcome = model.OutcomeWrong
			ev.Points = decimal.NewFromFloat(sim.WrongPenalty).Neg().Round(2).InexactFloat64()
		}
	}
	return ev
}

func totals(sim *model.Simulation, questions []model.Question, evaluated []model.EvaluatedAnswer) *ScoredResult {
	res := &ScoredResult{Answers: evaluated}

	maxScore := decimal.Zero
	for _, q := range questions {
		maxScore = maxScore.Add(decimal.NewFromFloat(q.Weight))
	}

	total := decimal.Zero
	for _, ev := range evaluated {
		switch ev.Outcome {
		case model.OutcomeCorrect:
			res.CorrectAnswers++
		case model.OutcomeWrong:
			res.WrongAnswers++
		case model.OutcomeBlank:
			res.BlankAnswers++
		case model.OutcomePendingReview:
			res.PendingReview++
		}
		total = total.Add(decimal.NewFromFloat(ev.Points))
	}

	total = total.Round(2)
	res.TotalScore = total.InexactFloat64()
	res.MaxScore = maxScore.Round(2).InexactFloat64()
	if maxScore.IsPositive() {
		res.PercentageScore = total.Div(maxScore).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	if sim.PassingScore != nil {
		res.Passed = total.GreaterThanOrEqual(decimal.NewFromFloat(*sim.PassingScore))
	}
	return res
}
