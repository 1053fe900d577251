package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// QuestionBank loads category content (from cache/backing store).
type QuestionBank interface {
	LoadCategory(ctx context.Context, categoryID string) (domain.Category, error)
}

// Defaults apply when a start request leaves a knob unset.
type Defaults struct {
	TimePerQuestionSeconds int
	Shuffle                bool
}

// StartOptions configure one session run. Shuffling happens here, before
// the state machine sees the list; the session itself never reorders.
type StartOptions struct {
	Username               string
	TimePerQuestionSeconds int // 0 means the configured default
	Shuffle                bool
	ShuffleOptions         bool
}

// Service owns the single live session of this installation and wires it
// to the question bank, the snapshot slot, and the result recorder.
type Service struct {
	bank     QuestionBank
	store    SnapshotStore
	recorder ResultRecorder
	defaults Defaults

	mu      sync.Mutex
	current *Session
	rnd     *rand.Rand
}

// NewService builds the session owner.
func NewService(bank QuestionBank, store SnapshotStore, recorder ResultRecorder, defaults Defaults) *Service {
	if defaults.TimePerQuestionSeconds <= 0 {
		defaults.TimePerQuestionSeconds = 30
	}
	return &Service{
		bank:     bank,
		store:    store,
		recorder: recorder,
		defaults: defaults,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StartSession loads a category and starts a fresh session over it,
// replacing any previous live session.
func (s *Service) StartSession(ctx context.Context, categoryID string, opts StartOptions) (*Session, error) {
	category, err := s.bank.LoadCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category %s: %w", categoryID, err)
	}
	if len(category.Questions) == 0 {
		return nil, domain.ErrEmptyQuestionSet
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	questions := make([]domain.Question, len(category.Questions))
	copy(questions, category.Questions)
	if opts.Shuffle || s.defaults.Shuffle {
		s.rnd.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if opts.ShuffleOptions {
		// Correct answers are stored as option values, so reordering the
		// options never invalidates them.
		for i := range questions {
			opts := questions[i].Options
			s.rnd.Shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
		}
	}

	timePerQuestion := opts.TimePerQuestionSeconds
	if timePerQuestion <= 0 {
		timePerQuestion = s.defaults.TimePerQuestionSeconds
	}

	if s.current != nil {
		s.current.clock.Stop()
	}
	session := NewSession(SessionParams{
		SessionID:    uuid.NewString(),
		CategoryID:   category.ID,
		CategoryName: category.Name,
		Username:     opts.Username,
	}, s.store, s.recorder)
	if err := session.Start(ctx, questions, timePerQuestion); err != nil {
		return nil, err
	}
	s.current = session
	return session, nil
}

// Resume rebuilds a session from the snapshot slot. It returns
// domain.ErrNoSnapshot when the slot is empty, domain.ErrSnapshotStale
// when the category no longer matches the stored question IDs.
func (s *Service) Resume(ctx context.Context) (*Session, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	category, err := s.bank.LoadCategory(ctx, snap.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load category %s: %w", snap.CategoryID, err)
	}
	byID := make(map[string]domain.Question, len(category.Questions))
	for _, q := range category.Questions {
		byID[q.ID] = q
	}
	// Rebuild in snapshot order so a shuffled run resumes in the same order.
	questions := make([]domain.Question, 0, len(snap.QuestionIDs))
	for _, id := range snap.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question %s missing from category %s: %w", id, snap.CategoryID, domain.ErrSnapshotStale)
		}
		questions = append(questions, q)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.current.clock.Stop()
	}
	session := NewSession(SessionParams{
		SessionID:    snap.SessionID,
		CategoryID:   snap.CategoryID,
		CategoryName: snap.CategoryName,
		Username:     snap.Username,
	}, s.store, s.recorder)
	if err := session.Restore(ctx, questions, snap); err != nil {
		return nil, err
	}
	s.current = session
	return session, nil
}

// Current returns the live session, if any.
func (s *Service) Current() (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// Reset discards the live session and clears the snapshot slot, even
// when no session is live in this process.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	current := s.current
	s.current = nil
	s.mu.Unlock()

	if current != nil {
		return current.Reset(ctx)
	}
	return s.store.Delete(ctx)
}
