package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"
)

// SnapshotStore keeps the resumable snapshot in the single-row
// session_snapshot table, serialized as JSON.
type SnapshotStore struct {
	store *Store
}

func NewSnapshotStore(store *Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.store.db.ExecContext(ctx,
		`INSERT INTO session_snapshot (slot, data, updated_at_unix) VALUES (1, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET data = excluded.data, updated_at_unix = excluded.updated_at_unix`,
		string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context) (domain.Snapshot, error) {
	var raw string
	err := s.store.db.QueryRowContext(ctx, `SELECT data FROM session_snapshot WHERE slot = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Version != domain.SchemaVersion {
		return domain.Snapshot{}, domain.ErrSnapshotVersion
	}
	return snap, nil
}

func (s *SnapshotStore) Delete(ctx context.Context) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM session_snapshot WHERE slot = 1`); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
