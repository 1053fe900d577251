package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

// SnapshotStore is the single resumable slot a session writes on every
// mutation. Load returns domain.ErrNoSnapshot when the slot is empty.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, error)
	Delete(ctx context.Context) error
}

// ResultRecorder receives the finalized score of a completed session.
type ResultRecorder interface {
	Record(ctx context.Context, result domain.FinalResult) error
}

// Phase is the session lifecycle stage.
type Phase int

const (
	NotStarted Phase = iota
	InProgress
	Completed
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// StateView is the snapshot-friendly view pushed to subscribers after
// every mutation and on every clock tick.
type StateView struct {
	SessionID        string                 `json:"sessionId"`
	Phase            string                 `json:"phase"`
	CategoryID       string                 `json:"categoryId"`
	CategoryName     string                 `json:"categoryName"`
	Username         string                 `json:"username"`
	CurrentIndex     int                    `json:"currentIndex"`
	TotalQuestions   int                    `json:"totalQuestions"`
	RemainingSeconds int                    `json:"remainingSeconds"`
	AnsweredCount    int                    `json:"answeredCount"`
	MarkedForReview  []int                  `json:"markedForReview"`
	Question         *domain.PublicQuestion `json:"question,omitempty"`
	Result           *domain.FinalResult    `json:"result,omitempty"`
}

// SessionParams identify a session and echo through to its final result.
type SessionParams struct {
	SessionID    string
	CategoryID   string
	CategoryName string
	Username     string
}

// Session is the authoritative state machine for one run through an
// ordered question list. All mutations, including the clock's expiration
// callback, are serialized behind one mutex.
type Session struct {
	params SessionParams

	mu              sync.Mutex
	phase           Phase
	questions       []domain.Question
	answers         []domain.Answer
	currentIndex    int
	marked          map[int]struct{}
	timePerQuestion int
	clock           *Clock
	clockGen        uint64
	result          *domain.FinalResult
	subscribers     map[chan StateView]struct{}

	store    SnapshotStore
	recorder ResultRecorder
	now      func() time.Time
}

// NewSession builds an idle session in the NotStarted phase.
func NewSession(params SessionParams, store SnapshotStore, recorder ResultRecorder) *Session {
	return newSessionWithTicker(params, store, recorder, realTicker, time.Now)
}

// NewSessionWithTicker is test-only for deterministic ticks and timestamps.
func NewSessionWithTicker(params SessionParams, store SnapshotStore, recorder ResultRecorder, tf func(time.Duration) (<-chan time.Time, func()), now func() time.Time) *Session {
	return newSessionWithTicker(params, store, recorder, tf, now)
}

func newSessionWithTicker(params SessionParams, store SnapshotStore, recorder ResultRecorder, tf tickerFunc, now func() time.Time) *Session {
	s := &Session{
		params:      params,
		phase:       NotStarted,
		marked:      make(map[int]struct{}),
		subscribers: make(map[chan StateView]struct{}),
		store:       store,
		recorder:    recorder,
		now:         now,
	}
	s.clock = newClockWithTicker(s.onClockTick, s.onClockExpired, tf)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.params.SessionID
}

// Start loads the fixed question list and enters InProgress.
func (s *Session) Start(ctx context.Context, questions []domain.Question, timePerQuestionSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != NotStarted {
		return fmt.Errorf("start in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	if len(questions) == 0 {
		return domain.ErrEmptyQuestionSet
	}

	s.questions = make([]domain.Question, len(questions))
	copy(s.questions, questions)
	s.answers = make([]domain.Answer, len(questions))
	for i := range s.answers {
		s.answers[i] = domain.NoAnswer()
	}
	s.currentIndex = 0
	s.marked = make(map[int]struct{})
	s.timePerQuestion = timePerQuestionSeconds
	s.result = nil
	s.phase = InProgress
	s.clockGen = s.clock.Start(timePerQuestionSeconds)

	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// Restore rebuilds an interrupted session from its snapshot and the
// reloaded question list (already ordered to match the snapshot). The
// current question restarts with a full time budget.
func (s *Session) Restore(ctx context.Context, questions []domain.Question, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != NotStarted {
		return fmt.Errorf("restore in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	if len(questions) == 0 {
		return domain.ErrEmptyQuestionSet
	}
	if len(snap.Answers) != len(questions) {
		return fmt.Errorf("snapshot has %d answers for %d questions: %w", len(snap.Answers), len(questions), domain.ErrSnapshotStale)
	}

	s.questions = make([]domain.Question, len(questions))
	copy(s.questions, questions)
	s.answers = make([]domain.Answer, len(snap.Answers))
	copy(s.answers, snap.Answers)
	s.currentIndex = snap.CurrentIndex
	if s.currentIndex < 0 || s.currentIndex >= len(questions) {
		s.currentIndex = 0
	}
	s.marked = make(map[int]struct{}, len(snap.MarkedForReview))
	for _, idx := range snap.MarkedForReview {
		if idx >= 0 && idx < len(questions) {
			s.marked[idx] = struct{}{}
		}
	}
	s.timePerQuestion = snap.TimePerQuestionSeconds
	s.result = nil
	s.phase = InProgress
	s.clockGen = s.clock.Start(s.timePerQuestion)

	s.broadcastLocked()
	return nil
}

// SubmitAnswer overwrites the current question's answer slot. The value's
// shape must match the question type; on mismatch nothing is mutated.
func (s *Session) SubmitAnswer(ctx context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != InProgress {
		return fmt.Errorf("submit answer in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	q := s.questions[s.currentIndex]
	if !answer.MatchesType(q.Type) {
		return fmt.Errorf("question %s expects %s: %w", q.ID, q.Type, domain.ErrInvalidAnswerType)
	}

	s.answers[s.currentIndex] = answer
	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// Advance moves to the next question with a fresh time budget, or
// completes the session when already on the last question.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != InProgress {
		return fmt.Errorf("advance in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	return s.advanceLocked(ctx)
}

func (s *Session) advanceLocked(ctx context.Context) error {
	if s.currentIndex >= len(s.questions)-1 {
		return s.completeLocked(ctx)
	}
	s.currentIndex++
	s.clockGen = s.clock.Reset(s.timePerQuestion)
	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// Retreat moves to the previous question. Moving backward also resets the
// clock to a full budget, matching forward navigation. No-op at index 0.
func (s *Session) Retreat(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != InProgress {
		return fmt.Errorf("retreat in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	if s.currentIndex == 0 {
		return nil
	}
	s.currentIndex--
	s.clockGen = s.clock.Reset(s.timePerQuestion)
	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// ToggleMark flips the marked-for-review flag on a question index.
// Pure bookkeeping with no effect on scoring.
func (s *Session) ToggleMark(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != InProgress {
		return fmt.Errorf("toggle mark in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	if index < 0 || index >= len(s.questions) {
		return fmt.Errorf("mark index %d out of range: %w", index, domain.ErrPreconditionViolation)
	}

	if _, ok := s.marked[index]; ok {
		delete(s.marked, index)
	} else {
		s.marked[index] = struct{}{}
	}
	s.persistLocked(ctx)
	s.broadcastLocked()
	return nil
}

// ToggleMarkCurrent marks or unmarks the question currently shown.
func (s *Session) ToggleMarkCurrent(ctx context.Context) error {
	s.mu.Lock()
	idx := s.currentIndex
	s.mu.Unlock()
	return s.ToggleMark(ctx, idx)
}

// SubmitQuiz finalizes the session early, from any question. Unanswered
// slots count as incorrect; confirmation of an incomplete submission is
// the caller's concern, not the state machine's.
func (s *Session) SubmitQuiz(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != InProgress {
		return fmt.Errorf("submit quiz in phase %s: %w", s.phase, domain.ErrPreconditionViolation)
	}
	return s.completeLocked(ctx)
}

func (s *Session) completeLocked(ctx context.Context) error {
	s.clock.Stop()
	s.phase = Completed

	score, err := Score(s.questions, s.answers)
	if err != nil {
		return fmt.Errorf("score session %s: %w", s.params.SessionID, err)
	}
	result := domain.FinalResult{
		SessionID:    s.params.SessionID,
		CategoryID:   s.params.CategoryID,
		CategoryName: s.params.CategoryName,
		Username:     s.params.Username,
		Score:        score,
		CompletedAt:  s.now(),
	}
	s.result = &result

	if err := s.store.Delete(ctx); err != nil {
		log.Printf("session %s: delete snapshot: %v", s.params.SessionID, err)
	}
	s.broadcastLocked()

	if err := s.recorder.Record(ctx, result); err != nil {
		return fmt.Errorf("record result for session %s: %w", s.params.SessionID, err)
	}
	return nil
}

// Reset discards all state and re-enters NotStarted. Valid in any phase.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock.Stop()
	s.phase = NotStarted
	s.questions = nil
	s.answers = nil
	s.currentIndex = 0
	s.marked = make(map[int]struct{})
	s.result = nil

	if err := s.store.Delete(ctx); err != nil {
		log.Printf("session %s: delete snapshot: %v", s.params.SessionID, err)
	}
	s.broadcastLocked()
	return nil
}

// onClockTick pushes the fresh remaining count to subscribers.
func (s *Session) onClockTick(int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress {
		return
	}
	s.broadcastLocked()
}

// onClockExpired is the clock's expiration signal. It behaves exactly
// like Advance: the unanswered slot stays unanswered and counts as
// incorrect. A stale generation means the session already moved on.
func (s *Session) onClockExpired(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress || gen != s.clockGen {
		return
	}
	if err := s.advanceLocked(context.Background()); err != nil {
		log.Printf("session %s: advance on expiration: %v", s.params.SessionID, err)
	}
}

// Phase returns the lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentIndex returns the index of the question currently shown.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// RemainingSeconds returns the countdown for the current question.
func (s *Session) RemainingSeconds() int {
	return s.clock.Remaining()
}

// Answers returns a copy of the recorded answer slots.
func (s *Session) Answers() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// CurrentQuestion returns the client-facing view of the question shown.
func (s *Session) CurrentQuestion() (domain.PublicQuestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress {
		return domain.PublicQuestion{}, false
	}
	return s.questions[s.currentIndex].Public(), true
}

// Result returns the final score once the session has completed.
func (s *Session) Result() (domain.FinalResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.FinalResult{}, false
	}
	return *s.result, true
}

// View returns the current subscriber-facing state.
func (s *Session) View() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a channel receiving state updates. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan StateView, func()) {
	ch := make(chan StateView, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.viewLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() {
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// A full buffer means the subscriber is behind; drop its oldest
			// update so it always ends on the latest state.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (s *Session) viewLocked() StateView {
	view := StateView{
		SessionID:       s.params.SessionID,
		Phase:           s.phase.String(),
		CategoryID:      s.params.CategoryID,
		CategoryName:    s.params.CategoryName,
		Username:        s.params.Username,
		CurrentIndex:    s.currentIndex,
		TotalQuestions:  len(s.questions),
		MarkedForReview: s.markedSortedLocked(),
	}
	for _, a := range s.answers {
		if a.IsAnswered() {
			view.AnsweredCount++
		}
	}
	if s.phase == InProgress {
		view.RemainingSeconds = s.clock.Remaining()
		q := s.questions[s.currentIndex].Public()
		view.Question = &q
	}
	if s.result != nil {
		result := *s.result
		view.Result = &result
	}
	return view
}

func (s *Session) markedSortedLocked() []int {
	out := make([]int, 0, len(s.marked))
	for idx := range s.marked {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (s *Session) snapshotLocked() domain.Snapshot {
	ids := make([]string, len(s.questions))
	for i, q := range s.questions {
		ids[i] = q.ID
	}
	answers := make([]domain.Answer, len(s.answers))
	copy(answers, s.answers)
	return domain.Snapshot{
		Version:                domain.SchemaVersion,
		SessionID:              s.params.SessionID,
		CategoryID:             s.params.CategoryID,
		CategoryName:           s.params.CategoryName,
		Username:               s.params.Username,
		TimePerQuestionSeconds: s.timePerQuestion,
		QuestionIDs:            ids,
		Answers:                answers,
		CurrentIndex:           s.currentIndex,
		MarkedForReview:        s.markedSortedLocked(),
	}
}

// persistLocked writes the resumable snapshot. A failed write is logged
// and does not roll back the in-memory mutation; the live session is the
// source of truth and only resumability is at risk.
func (s *Session) persistLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		log.Printf("session %s: save snapshot: %v", s.params.SessionID, err)
	}
}
