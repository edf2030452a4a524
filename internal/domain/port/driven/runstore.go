package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// ErrRunNotFound indicates the requested generation run does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStore defines the driven port for generation run records and their
// allocation ledgers.
type RunStore interface {
	// Start records a new run and returns its ID.
	Start(ctx context.Context, run model.Run) (int64, error)
	// Finish updates the final counters and finish time of a run.
	// Returns ErrRunNotFound if the run does not exist.
	Finish(ctx context.Context, run model.Run) error
	// GetByID returns nil, nil if the run does not exist.
	GetByID(ctx context.Context, id int64) (*model.Run, error)
	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]model.Run, error)

	SaveAllocations(ctx context.Context, runID int64, entries []model.AllocationEntry) error
	// MarkGenerated sets the number of pairs actually produced for an item.
	MarkGenerated(ctx context.Context, runID int64, itemKey string, generated int) error
	ListAllocations(ctx context.Context, runID int64) ([]model.AllocationEntry, error)
}
