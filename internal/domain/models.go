package domain

import "time"

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiSelect  QuestionType = "multi_select"
	Boolean      QuestionType = "boolean"
	FreeText     QuestionType = "free_text"
)

// Question is one entry of a session's ordered question list.
// For multi_select the correct answers live in CorrectAnswers (a non-empty
// subset of Options); every other type uses CorrectAnswer.
type Question struct {
	ID             string       `json:"id"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Options        []string     `json:"options,omitempty"`
	CorrectAnswer  string       `json:"correctAnswer,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers,omitempty"`
}

// PublicQuestion is the client-facing view of a question with the answer key stripped.
type PublicQuestion struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
}

// Public strips the answer key from a question.
func (q Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:      q.ID,
		Type:    q.Type,
		Prompt:  q.Prompt,
		Options: options,
	}
}

// Category is an ordered set of questions plus display metadata.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// ScoreResult is derived from a question list and its answers; it is
// recomputable at any time and never stored independently of them.
type ScoreResult struct {
	TotalQuestions int `json:"totalQuestions"`
	CorrectCount   int `json:"correctCount"`
	Percentage     int `json:"percentage"`
}

// FinalResult is what a completed session hands to the result recorder.
type FinalResult struct {
	SessionID    string      `json:"sessionId"`
	CategoryID   string      `json:"categoryId"`
	CategoryName string      `json:"categoryName"`
	Username     string      `json:"username"`
	Score        ScoreResult `json:"score"`
	CompletedAt  time.Time   `json:"completedAt"`
}
