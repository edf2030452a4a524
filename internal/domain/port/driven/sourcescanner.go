package driven

import (
	"context"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// SourceScanner discovers and reads source files in a repository checkout.
type SourceScanner interface {
	Scan(ctx context.Context, root string) ([]model.SourceFile, error)
	// ReadSource returns the file contents, truncated for prompt use.
	ReadSource(file model.SourceFile) (string, error)
}
