package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// GitHubClient defines the driven port for reading issues from the GitHub API.
type GitHubClient interface {
	// FetchIssues returns up to max issues updated at or after since, most
	// recently updated first. Pull requests are excluded. A zero since fetches
	// without a lower bound.
	FetchIssues(ctx context.Context, repoFullName string, since time.Time, max int) ([]model.Issue, error)
	// FetchIssue returns a single issue. Returns ErrIssueNotFound if it does not exist.
	FetchIssue(ctx context.Context, repoFullName string, number int) (*model.Issue, error)
	FetchIssueComments(ctx context.Context, repoFullName string, number int) ([]model.IssueComment, error)
}
