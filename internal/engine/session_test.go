package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

type captureRecorder struct {
	mu      sync.Mutex
	results []domain.FinalResult
}

func (r *captureRecorder) Record(_ context.Context, result domain.FinalResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *captureRecorder) recorded() []domain.FinalResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.FinalResult, len(r.results))
	copy(out, r.results)
	return out
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.SingleChoice, Prompt: "Pick B", Options: []string{"A", "B", "C"}, CorrectAnswer: "B"},
		{ID: "q2", Type: domain.MultiSelect, Prompt: "Pick X and Y", Options: []string{"X", "Y", "Z"}, CorrectAnswers: []string{"X", "Y"}},
		{ID: "q3", Type: domain.Boolean, Prompt: "True?", Options: []string{"true", "false"}, CorrectAnswer: "true"},
	}
}

func newTestSession() (*Session, *memory.SnapshotStore, *captureRecorder, *manualTicker) {
	store := memory.NewSnapshotStore()
	recorder := &captureRecorder{}
	mt := &manualTicker{}
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	session := NewSessionWithTicker(SessionParams{
		SessionID:    "s1",
		CategoryID:   "general",
		CategoryName: "General Knowledge",
		Username:     "alice",
	}, store, recorder, mt.factory, func() time.Time { return fixed })
	return session, store, recorder, mt
}

func TestStartInitializesAndPersists(t *testing.T) {
	ctx := context.Background()
	session, store, _, _ := newTestSession()

	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Phase() != InProgress {
		t.Fatalf("expected InProgress, got %s", session.Phase())
	}
	if session.RemainingSeconds() != 30 {
		t.Fatalf("expected full budget, got %d", session.RemainingSeconds())
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Version != domain.SchemaVersion || snap.CurrentIndex != 0 || len(snap.Answers) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	for i, a := range snap.Answers {
		if a.IsAnswered() {
			t.Fatalf("answer %d should start unanswered", i)
		}
	}
}

func TestStartPreconditions(t *testing.T) {
	ctx := context.Background()
	session, _, _, _ := newTestSession()

	if err := session.Start(ctx, nil, 30); !errors.Is(err, domain.ErrEmptyQuestionSet) {
		t.Fatalf("expected ErrEmptyQuestionSet, got %v", err)
	}
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Start(ctx, sampleQuestions(), 30); !errors.Is(err, domain.ErrPreconditionViolation) {
		t.Fatalf("expected ErrPreconditionViolation, got %v", err)
	}
}

func TestSubmitAnswerOverwrites(t *testing.T) {
	ctx := context.Background()
	session, store, _, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("A")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	answers := session.Answers()
	if answers[0].Value != "B" {
		t.Fatalf("expected latest answer B, got %+v", answers[0])
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.Answers[0].Value != "B" {
		t.Fatalf("snapshot must hold latest answer, got %+v", snap.Answers[0])
	}
}

func TestSubmitAnswerRejectsWrongShape(t *testing.T) {
	ctx := context.Background()
	session, _, _, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Question 0 is single_choice; a selection set must not fit.
	if err := session.SubmitAnswer(ctx, domain.MultiAnswer("A")); !errors.Is(err, domain.ErrInvalidAnswerType) {
		t.Fatalf("expected ErrInvalidAnswerType, got %v", err)
	}
	if session.Answers()[0].IsAnswered() {
		t.Fatalf("rejected submission must not mutate state")
	}
	if err := session.SubmitAnswer(ctx, domain.NoAnswer()); !errors.Is(err, domain.ErrInvalidAnswerType) {
		t.Fatalf("expected ErrInvalidAnswerType for unanswered marker, got %v", err)
	}
}

func TestMonotonicCompletion(t *testing.T) {
	ctx := context.Background()
	session, _, _, _ := newTestSession()
	questions := sampleQuestions()
	if err := session.Start(ctx, questions, 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < len(questions); i++ {
		if session.Phase() == Completed {
			t.Fatalf("completed too early after %d advances", i)
		}
		if err := session.Advance(ctx); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	if session.Phase() != Completed {
		t.Fatalf("expected Completed after %d advances, got %s", len(questions), session.Phase())
	}
}

func TestRetreatAtFirstQuestionIsNoop(t *testing.T) {
	ctx := context.Background()
	session, _, _, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := session.Retreat(ctx); err != nil {
		t.Fatalf("retreat at 0: %v", err)
	}
	if session.CurrentIndex() != 0 {
		t.Fatalf("index must stay 0, got %d", session.CurrentIndex())
	}
}

func TestNavigationResetsClockBothDirections(t *testing.T) {
	ctx := context.Background()
	session, _, _, mt := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 5); err != nil {
		t.Fatalf("start: %v", err)
	}

	mt.tick(2)
	waitFor(t, "countdown", func() bool { return session.RemainingSeconds() == 3 })

	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if session.RemainingSeconds() != 5 {
		t.Fatalf("advance must reset the clock, got %d", session.RemainingSeconds())
	}

	mt.tick(2)
	waitFor(t, "countdown", func() bool { return session.RemainingSeconds() == 3 })

	if err := session.Retreat(ctx); err != nil {
		t.Fatalf("retreat: %v", err)
	}
	if session.CurrentIndex() != 0 {
		t.Fatalf("expected index 0, got %d", session.CurrentIndex())
	}
	if session.RemainingSeconds() != 5 {
		t.Fatalf("retreat must also reset the clock, got %d", session.RemainingSeconds())
	}
}

func TestExpirationBehavesLikeAdvance(t *testing.T) {
	ctx := context.Background()

	expired, _, _, mt := newTestSession()
	if err := expired.Start(ctx, sampleQuestions(), 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := expired.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mt.tick(2)
	waitFor(t, "timer-forced advance", func() bool { return expired.CurrentIndex() == 1 })

	advanced, _, _, _ := newTestSession()
	if err := advanced.Start(ctx, sampleQuestions(), 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := advanced.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := advanced.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if expired.CurrentIndex() != advanced.CurrentIndex() {
		t.Fatalf("index mismatch: %d vs %d", expired.CurrentIndex(), advanced.CurrentIndex())
	}
	ea, aa := expired.Answers(), advanced.Answers()
	for i := range ea {
		if ea[i].Kind != aa[i].Kind || ea[i].Value != aa[i].Value {
			t.Fatalf("answers diverge at %d: %+v vs %+v", i, ea[i], aa[i])
		}
	}
	if expired.Phase() != advanced.Phase() {
		t.Fatalf("phase mismatch: %s vs %s", expired.Phase(), advanced.Phase())
	}
}

func TestToggleMarkBookkeeping(t *testing.T) {
	ctx := context.Background()
	session, store, _, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := session.ToggleMarkCurrent(ctx); err != nil {
		t.Fatalf("mark current: %v", err)
	}
	if err := session.ToggleMark(ctx, 2); err != nil {
		t.Fatalf("mark 2: %v", err)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if len(snap.MarkedForReview) != 2 || snap.MarkedForReview[0] != 0 || snap.MarkedForReview[1] != 2 {
		t.Fatalf("unexpected marks %v", snap.MarkedForReview)
	}

	if err := session.ToggleMark(ctx, 0); err != nil {
		t.Fatalf("unmark 0: %v", err)
	}
	snap, _ = store.Load(ctx)
	if len(snap.MarkedForReview) != 1 || snap.MarkedForReview[0] != 2 {
		t.Fatalf("expected only index 2 marked, got %v", snap.MarkedForReview)
	}

	if err := session.ToggleMark(ctx, 99); !errors.Is(err, domain.ErrPreconditionViolation) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestSubmitQuizEarlyCompletesAndRecords(t *testing.T) {
	ctx := context.Background()
	session, store, recorder, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Submit from question 0 with two questions unanswered.
	if err := session.SubmitQuiz(ctx); err != nil {
		t.Fatalf("submit quiz: %v", err)
	}
	if session.Phase() != Completed {
		t.Fatalf("expected Completed, got %s", session.Phase())
	}

	results := recorder.recorded()
	if len(results) != 1 {
		t.Fatalf("expected one recorded result, got %d", len(results))
	}
	got := results[0]
	if got.Score.TotalQuestions != 3 || got.Score.CorrectCount != 1 || got.Score.Percentage != 33 {
		t.Fatalf("unexpected score %+v", got.Score)
	}
	if got.Username != "alice" || got.CategoryID != "general" {
		t.Fatalf("result must echo identity, got %+v", got)
	}

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("completed session must not be resumable, got %v", err)
	}

	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("A")); !errors.Is(err, domain.ErrPreconditionViolation) {
		t.Fatalf("expected ErrPreconditionViolation after completion, got %v", err)
	}
	if err := session.Advance(ctx); !errors.Is(err, domain.ErrPreconditionViolation) {
		t.Fatalf("expected ErrPreconditionViolation after completion, got %v", err)
	}
}

func TestCompleteScenario(t *testing.T) {
	ctx := context.Background()
	session, _, recorder, mt := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := session.SubmitAnswer(ctx, domain.MultiAnswer("Y", "X")); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	if err := session.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// Let question 3's clock run out; expiration on the last question completes.
	mt.tick(30)
	waitFor(t, "completion by expiration", func() bool { return session.Phase() == Completed })

	results := recorder.recorded()
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	score := results[0].Score
	if score.CorrectCount != 2 || score.TotalQuestions != 3 || score.Percentage != 67 {
		t.Fatalf("expected 2/3 = 67%%, got %+v", score)
	}
}

func TestResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	session, store, _, _ := newTestSession()
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := session.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if session.Phase() != NotStarted {
		t.Fatalf("expected NotStarted, got %s", session.Phase())
	}
	if len(session.Answers()) != 0 {
		t.Fatalf("answers must be discarded")
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("reset must delete snapshot, got %v", err)
	}

	// Reset re-enters NotStarted, so a fresh start is allowed.
	if err := session.Start(ctx, sampleQuestions(), 30); err != nil {
		t.Fatalf("start after reset: %v", err)
	}
}

func TestRestoreKeepsAnswersWithFreshBudget(t *testing.T) {
	ctx := context.Background()
	first, store, _, mt := newTestSession()
	if err := first.Start(ctx, sampleQuestions(), 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := first.SubmitAnswer(ctx, domain.SingleAnswer("B")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := first.Advance(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	mt.tick(3)
	waitFor(t, "partial countdown", func() bool { return first.RemainingSeconds() == 2 })

	// Simulated process restart: a brand-new session restored from the slot.
	first.clock.Stop()
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	second, _, _, _ := newTestSession()
	if err := second.Restore(ctx, sampleQuestions(), snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if second.Phase() != InProgress {
		t.Fatalf("expected InProgress, got %s", second.Phase())
	}
	if second.CurrentIndex() != 1 {
		t.Fatalf("expected index 1, got %d", second.CurrentIndex())
	}
	answers := second.Answers()
	if answers[0].Value != "B" {
		t.Fatalf("answers must survive restore, got %+v", answers[0])
	}
	if second.RemainingSeconds() != 5 {
		t.Fatalf("restore must grant a fresh budget, got %d", second.RemainingSeconds())
	}
}
