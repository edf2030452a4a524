package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.QuestionStore = (*QuestionRepo)(nil)

// QuestionRepo is the SQLite implementation of the QuestionStore port interface.
type QuestionRepo struct {
	db *DB
}

// NewQuestionRepo creates a new QuestionRepo backed by the given DB.
func NewQuestionRepo(db *DB) *QuestionRepo {
	return &QuestionRepo{db: db}
}

// Seen reports whether hash was recorded by any earlier run.
func (r *QuestionRepo) Seen(ctx context.Context, hash string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM question_hashes WHERE hash = ?)`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check question hash: %w", err)
	}
	return exists != 0, nil
}

// Record stores hash for runID. The first run to record a hash keeps it.
func (r *QuestionRepo) Record(ctx context.Context, hash string, runID int64) error {
	const query = `INSERT INTO question_hashes (hash, first_run_id, recorded_at) VALUES (?, ?, ?) ON CONFLICT(hash) DO NOTHING`

	if _, err := r.db.Writer.ExecContext(ctx, query, hash, runID, timeText(time.Now())); err != nil {
		return fmt.Errorf("record question hash for run %d: %w", runID, err)
	}
	return nil
}
