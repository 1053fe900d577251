package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-session-service/internal/domain"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSnapshotStore(newClient(mr), time.Minute)

	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	snap := domain.Snapshot{
		Version:      domain.SchemaVersion,
		SessionID:    "s1",
		CategoryID:   "general",
		QuestionIDs:  []string{"q1", "q2"},
		Answers:      []domain.Answer{domain.MultiAnswer("X", "Y"), domain.NoAnswer()},
		CurrentIndex: 1,
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("quiz:session:snapshot") {
		t.Fatalf("expected snapshot key in redis")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SessionID != "s1" || got.CurrentIndex != 1 || len(got.Answers[0].Values) != 2 {
		t.Fatalf("unexpected snapshot %+v", got)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:session:snapshot") {
		t.Fatalf("expected snapshot key removed")
	}
}

func TestSnapshotStoreRejectsVersionMismatch(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewSnapshotStore(newClient(mr), time.Minute)

	if err := store.Save(ctx, domain.Snapshot{Version: domain.SchemaVersion + 1}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, domain.ErrSnapshotVersion) {
		t.Fatalf("expected ErrSnapshotVersion, got %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
