package domain

// AnswerKind tags the shape of a recorded answer.
type AnswerKind string

const (
	AnswerNone   AnswerKind = "none"
	AnswerSingle AnswerKind = "single"
	AnswerMulti  AnswerKind = "multi"
	AnswerText   AnswerKind = "text"
)

// Answer is a tagged value matching the question's type: a single option,
// a set of options, raw text, or the explicit unanswered marker.
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Values []string   `json:"values,omitempty"`
}

// NoAnswer is the unanswered marker every slot starts as.
func NoAnswer() Answer {
	return Answer{Kind: AnswerNone}
}

// SingleAnswer records one selected option (single_choice / boolean).
func SingleAnswer(value string) Answer {
	return Answer{Kind: AnswerSingle, Value: value}
}

// MultiAnswer records a selection set (multi_select). Order and duplicates
// are preserved as submitted; scoring collapses them.
func MultiAnswer(values ...string) Answer {
	vs := make([]string, len(values))
	copy(vs, values)
	return Answer{Kind: AnswerMulti, Values: vs}
}

// TextAnswer records free text verbatim.
func TextAnswer(value string) Answer {
	return Answer{Kind: AnswerText, Value: value}
}

// IsAnswered reports whether the slot holds a real answer.
func (a Answer) IsAnswered() bool {
	return a.Kind != AnswerNone && a.Kind != ""
}

// MatchesType reports whether the answer's shape fits a question type.
// The unanswered marker matches nothing; it is the default, not a submission.
func (a Answer) MatchesType(t QuestionType) bool {
	switch a.Kind {
	case AnswerSingle:
		return t == SingleChoice || t == Boolean
	case AnswerMulti:
		return t == MultiSelect
	case AnswerText:
		return t == FreeText
	default:
		return false
	}
}
