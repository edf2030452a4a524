package driven

import "context"

// QuestionStore remembers question hashes across runs so later runs can
// skip questions already present in an earlier dataset.
type QuestionStore interface {
	Seen(ctx context.Context, hash string) (bool, error)
	// Record stores hash for runID. Recording a known hash is a no-op.
	Record(ctx context.Context, hash string, runID int64) error
}
