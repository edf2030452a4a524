package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// ErrIssueNotFound indicates the requested issue does not exist.
var ErrIssueNotFound = errors.New("issue not found")

// IssueStore defines the driven port for mined issue persistence.
// Upsert inserts or replaces an issue keyed by repository and number.
type IssueStore interface {
	Upsert(ctx context.Context, issue model.Issue) error
	// GetByNumber returns nil, nil if the issue has not been stored.
	GetByNumber(ctx context.Context, repoFullName string, number int) (*model.Issue, error)
	// ListByScore returns the repository's issues ordered by score descending,
	// number ascending. A limit of zero or less returns all issues.
	ListByScore(ctx context.Context, repoFullName string, limit int) ([]model.Issue, error)
	Count(ctx context.Context, repoFullName string) (int, error)
}
