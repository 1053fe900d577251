package sqlite

import (
	"context"
	"fmt"
	"time"

	"quiz-session-service/internal/domain"
)

// ResultRecorder appends finalized sessions to the results table and
// serves the ranked history the leaderboard is built from.
type ResultRecorder struct {
	store *Store
}

func NewResultRecorder(store *Store) *ResultRecorder {
	return &ResultRecorder{store: store}
}

func (r *ResultRecorder) Record(ctx context.Context, result domain.FinalResult) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO results
			(session_id, category_id, category_name, username, total_questions, correct_count, percentage, completed_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		result.SessionID, result.CategoryID, result.CategoryName, result.Username,
		result.Score.TotalQuestions, result.Score.CorrectCount, result.Score.Percentage,
		result.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// Top returns the ranked history: percentage desc, earlier completion
// first, then username.
func (r *ResultRecorder) Top(ctx context.Context, limit int) ([]domain.FinalResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT session_id, category_id, category_name, username, total_questions, correct_count, percentage, completed_at_unix
		 FROM results
		 ORDER BY percentage DESC, completed_at_unix ASC, username ASC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []domain.FinalResult
	for rows.Next() {
		var result domain.FinalResult
		var completedAt int64
		if err := rows.Scan(
			&result.SessionID, &result.CategoryID, &result.CategoryName, &result.Username,
			&result.Score.TotalQuestions, &result.Score.CorrectCount, &result.Score.Percentage,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.CompletedAt = time.Unix(completedAt, 0).UTC()
		out = append(out, result)
	}
	return out, rows.Err()
}
