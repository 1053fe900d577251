package domain

import "errors"

var (
	// ErrPreconditionViolation is returned when an operation is invoked in a
	// phase that does not allow it. Always a caller bug.
	ErrPreconditionViolation = errors.New("session operation not valid in current phase")
	// ErrInvalidAnswerType is returned when a submitted answer's shape does
	// not match the current question's type. The session is not mutated.
	ErrInvalidAnswerType = errors.New("answer shape does not match question type")
	// ErrEmptyQuestionSet is returned when a session is started or scored
	// with zero questions.
	ErrEmptyQuestionSet = errors.New("question set is empty")
	// ErrNoSnapshot indicates there is no resumable session in the slot.
	ErrNoSnapshot = errors.New("no session snapshot")
	// ErrSnapshotVersion indicates the stored snapshot was written under a
	// different schema version and cannot be resumed.
	ErrSnapshotVersion = errors.New("session snapshot schema version mismatch")
	// ErrSnapshotStale indicates the snapshot references questions that no
	// longer exist in the category.
	ErrSnapshotStale = errors.New("session snapshot no longer matches category")
	// ErrCategoryNotFound indicates the category content could not be loaded.
	ErrCategoryNotFound = errors.New("category not found")
)
