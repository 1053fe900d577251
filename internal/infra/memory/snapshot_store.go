package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// SnapshotStore keeps the single resumable slot in process memory.
// Useful for tests and for running without any durable backend.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap *domain.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
	return nil
}

func (s *SnapshotStore) Load(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrNoSnapshot
	}
	if s.snap.Version != domain.SchemaVersion {
		return domain.Snapshot{}, domain.ErrSnapshotVersion
	}
	return *s.snap, nil
}

func (s *SnapshotStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}
