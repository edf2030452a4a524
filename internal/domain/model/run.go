package model

import "time"

// Run records one dataset generation invocation.
type Run struct {
	ID         int64
	Kind       RunKind
	Source     string // Repository root or owner/repo.
	Output     string
	Quota      int
	Cap        int // Zero when uncapped.
	Allocated  int
	Generated  int
	Errors     int
	Duplicates int
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the run is in progress.
}

// AllocationEntry is the ledger row for one item in a run.
type AllocationEntry struct {
	RunID     int64
	ItemKey   string
	Score     float64
	Allocated int
	Generated int
}
