package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

// ResultRecorder keeps a ranked in-memory history of finalized sessions.
type ResultRecorder struct {
	mu      sync.RWMutex
	results []domain.FinalResult
}

func NewResultRecorder() *ResultRecorder {
	return &ResultRecorder{}
}

func (r *ResultRecorder) Record(_ context.Context, result domain.FinalResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

// Top returns the best results: percentage desc, then whoever got there
// earlier, then username.
func (r *ResultRecorder) Top(_ context.Context, limit int) ([]domain.FinalResult, error) {
	r.mu.RLock()
	out := make([]domain.FinalResult, len(r.results))
	copy(out, r.results)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score.Percentage != out[j].Score.Percentage {
			return out[i].Score.Percentage > out[j].Score.Percentage
		}
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].Username < out[j].Username
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
