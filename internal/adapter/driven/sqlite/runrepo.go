package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RunStore = (*RunRepo)(nil)

// RunRepo is the SQLite implementation of the RunStore port interface.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new RunRepo backed by the given DB.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

const runColumns = `id, kind, source, output, quota, cap, allocated, generated, errors, duplicates, started_at, finished_at`

// Start inserts a run record and returns its ID. A zero StartedAt is set to now.
func (r *RunRepo) Start(ctx context.Context, run model.Run) (int64, error) {
	const query = `
		INSERT INTO runs (kind, source, output, quota, cap, allocated, generated, errors, duplicates, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	startedAt := run.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(run.Kind), run.Source, run.Output, run.Quota, run.Cap,
		run.Allocated, run.Generated, run.Errors, run.Duplicates, timeText(startedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("start %s run for %s: %w", run.Kind, run.Source, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}
	return id, nil
}

// Finish stores the final counters of a run. A zero FinishedAt is set to now.
// Returns driven.ErrRunNotFound if no run has the given ID.
func (r *RunRepo) Finish(ctx context.Context, run model.Run) error {
	const query = `
		UPDATE runs SET allocated = ?, generated = ?, errors = ?, duplicates = ?, finished_at = ?
		WHERE id = ?
	`

	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		run.Allocated, run.Generated, run.Errors, run.Duplicates, timeText(finishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", run.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("finish run %d: %w", run.ID, driven.ErrRunNotFound)
	}

	return nil
}

// GetByID retrieves a run. Returns nil, nil if the run does not exist.
func (r *RunRepo) GetByID(ctx context.Context, id int64) (*model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", id, err)
	}

	return run, nil
}

// ListRecent returns up to limit runs, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []model.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// SaveAllocations writes the allocation ledger for a run in one transaction,
// replacing any existing rows with the same item keys.
func (r *RunRepo) SaveAllocations(ctx context.Context, runID int64, entries []model.AllocationEntry) error {
	const query = `
		INSERT INTO allocations (run_id, item_key, score, allocated, generated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, item_key) DO UPDATE SET
			score = excluded.score,
			allocated = excluded.allocated,
			generated = excluded.generated
	`

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin allocation tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare allocation insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, e.ItemKey, e.Score, e.Allocated, e.Generated); err != nil {
			return fmt.Errorf("save allocation %s for run %d: %w", e.ItemKey, runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocations for run %d: %w", runID, err)
	}

	return nil
}

// MarkGenerated records how many pairs were produced for one ledger item.
func (r *RunRepo) MarkGenerated(ctx context.Context, runID int64, itemKey string, generated int) error {
	const query = `UPDATE allocations SET generated = ? WHERE run_id = ? AND item_key = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, generated, runID, itemKey)
	if err != nil {
		return fmt.Errorf("mark generated %s for run %d: %w", itemKey, runID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark generated %s for run %d: %w", itemKey, runID, driven.ErrRunNotFound)
	}

	return nil
}

// ListAllocations returns a run's ledger ordered by allocation descending,
// then item key.
func (r *RunRepo) ListAllocations(ctx context.Context, runID int64) ([]model.AllocationEntry, error) {
	const query = `
		SELECT run_id, item_key, score, allocated, generated
		FROM allocations WHERE run_id = ?
		ORDER BY allocated DESC, item_key
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list allocations for run %d: %w", runID, err)
	}
	defer rows.Close()

	entries := []model.AllocationEntry{}
	for rows.Next() {
		var e model.AllocationEntry
		if err := rows.Scan(&e.RunID, &e.ItemKey, &e.Score, &e.Allocated, &e.Generated); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}

	return entries, nil
}

func scanRun(s scanner) (*model.Run, error) {
	var run model.Run
	var kind, startedAt string
	var finishedAt sql.NullString

	err := s.Scan(
		&run.ID, &kind, &run.Source, &run.Output, &run.Quota, &run.Cap,
		&run.Allocated, &run.Generated, &run.Errors, &run.Duplicates, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Kind = model.RunKind(kind)

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	run.FinishedAt, err = parseNullTime(finishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}

	return &run, nil
}
