package domain

// SchemaVersion guards the persisted snapshot layout. Stores reject
// snapshots written under a different version instead of guessing.
const SchemaVersion = 1

// Snapshot is the serialized subset of session state used to resume a
// session after interruption. There is exactly one resumable slot per
// installation; every write overwrites it. Question bodies are not
// stored: resume reloads the category and reorders by QuestionIDs, so a
// shuffled order survives a restart. Remaining time is deliberately not
// part of the snapshot; a resumed question restarts with a full budget.
type Snapshot struct {
	Version                int      `json:"version"`
	SessionID              string   `json:"sessionId"`
	CategoryID             string   `json:"categoryId"`
	CategoryName           string   `json:"categoryName"`
	Username               string   `json:"username"`
	TimePerQuestionSeconds int      `json:"timePerQuestionSeconds"`
	QuestionIDs            []string `json:"questionIds"`
	Answers                []Answer `json:"answers"`
	CurrentIndex           int      `json:"currentIndex"`
	MarkedForReview        []int    `json:"markedForReview"`
}
