package engine

import (
	"math"

	"quiz-session-service/internal/domain"
)

// IsCorrect decides correctness for one question given its recorded answer.
// An unanswered slot is never correct.
func IsCorrect(q domain.Question, a domain.Answer) bool {
	if !a.MatchesType(q.Type) {
		return false
	}
	switch q.Type {
	case domain.SingleChoice, domain.Boolean:
		return a.Value == q.CorrectAnswer
	case domain.MultiSelect:
		return setEqual(a.Values, q.CorrectAnswers)
	case domain.FreeText:
		// Bit-exact comparison, no trimming or case folding. Whether free
		// text should be normalized is a product decision; until it is
		// made, this stays strict.
		return a.Value == q.CorrectAnswer
	}
	return false
}

// Score sums per-question correctness over the full list.
// Percentage is rounded to the nearest integer.
func Score(questions []domain.Question, answers []domain.Answer) (domain.ScoreResult, error) {
	if len(questions) == 0 {
		return domain.ScoreResult{}, domain.ErrEmptyQuestionSet
	}

	correct := 0
	for i, q := range questions {
		a := domain.NoAnswer()
		if i < len(answers) {
			a = answers[i]
		}
		if IsCorrect(q, a) {
			correct++
		}
	}

	total := len(questions)
	return domain.ScoreResult{
		TotalQuestions: total,
		CorrectCount:   correct,
		Percentage:     int(math.Round(float64(correct*100) / float64(total))),
	}, nil
}

// setEqual compares selections as sets: order irrelevant, duplicates collapse.
func setEqual(got, want []string) bool {
	wantSet := make(map[string]struct{}, len(want))
	for _, v := range want {
		wantSet[v] = struct{}{}
	}
	gotSet := make(map[string]struct{}, len(got))
	for _, v := range got {
		gotSet[v] = struct{}{}
	}
	if len(gotSet) != len(wantSet) {
		return false
	}
	for v := range gotSet {
		if _, ok := wantSet[v]; !ok {
			return false
		}
	}
	return true
}
