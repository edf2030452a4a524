// Package github implements the GitHubClient port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GitHubClient = (*Client)(nil)

// Client implements the driven.GitHubClient port using the go-github library.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client, PAT auth when token is set)
//
// An empty token falls back to unauthenticated access with its lower rate limit.
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchIssues retrieves issues in any state for the repository, most recently
// updated first, stopping once max issues have been collected (max <= 0 means
// no limit). Pull requests returned by the Issues API are skipped.
func (c *Client) FetchIssues(ctx context.Context, repoFullName string, since time.Time, max int) ([]model.Issue, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListByRepoOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		Since:     since,
		ListOptions: gh.ListOptions{
			PerPage: 100,
		},
	}

	allIssues := []model.Issue{}

	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s (page %d): %w", repoFullName, opts.ListOptions.Page, err)
		}

		logRateLimit(resp, repoFullName+"/issues", opts.ListOptions.Page, len(issues))

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			allIssues = append(allIssues, mapIssue(issue, repoFullName))
			if max > 0 && len(allIssues) >= max {
				return allIssues, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return allIssues, nil
}

// FetchIssue retrieves a single issue. Returns driven.ErrIssueNotFound when
// GitHub responds 404 or the number refers to a pull request.
func (c *Client) FetchIssue(ctx context.Context, repoFullName string, number int) (*model.Issue, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	issue, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("fetching issue %s#%d: %w", repoFullName, number, driven.ErrIssueNotFound)
		}
		return nil, fmt.Errorf("fetching issue %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/issue", 0, 1)

	if issue.IsPullRequest() {
		return nil, fmt.Errorf("fetching issue %s#%d: pull request: %w", repoFullName, number, driven.ErrIssueNotFound)
	}

	mapped := mapIssue(issue, repoFullName)
	return &mapped, nil
}

// FetchIssueComments retrieves all discussion comments on an issue in creation order.
// It handles pagination automatically and maps go-github types to domain model types.
func (c *Client) FetchIssueComments(ctx context.Context, repoFullName string, number int) ([]model.IssueComment, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListCommentsOptions{
		Sort:        gh.Ptr("created"),
		Direction:   gh.Ptr("asc"),
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	allComments := []model.IssueComment{}

	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("listing comments for %s#%d: %w", repoFullName, number, driven.ErrIssueNotFound)
			}
			return nil, fmt.Errorf("listing comments for %s#%d (page %d): %w", repoFullName, number, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/comments", opts.Page, len(comments))

		for _, comment := range comments {
			allComments = append(allComments, mapIssueComment(comment, number))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// mapIssue converts a go-github Issue to a domain model Issue.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssue(issue *gh.Issue, repoFullName string) model.Issue {
	state := model.IssueStateOpen
	if issue.GetState() == "closed" {
		state = model.IssueStateClosed
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	var closedAt time.Time
	if issue.ClosedAt != nil {
		closedAt = issue.GetClosedAt().Time
	}

	return model.Issue{
		ID:            issue.GetID(),
		Number:        issue.GetNumber(),
		RepoFullName:  repoFullName,
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		State:         state,
		Labels:        labels,
		Author:        issue.GetUser().GetLogin(),
		Assignees:     assignees,
		URL:           issue.GetHTMLURL(),
		CommentsCount: issue.GetComments(),
		Kind:          "", // Classified by the mining service from labels.
		CreatedAt:     issue.GetCreatedAt().Time,
		UpdatedAt:     issue.GetUpdatedAt().Time,
		ClosedAt:      closedAt,
		IsPullRequest: issue.IsPullRequest(),
	}
}

// mapIssueComment converts a go-github IssueComment to a domain model IssueComment.
func mapIssueComment(c *gh.IssueComment, number int) model.IssueComment {
	return model.IssueComment{
		ID:          c.GetID(),
		IssueNumber: number,
		Author:      c.GetUser().GetLogin(),
		Body:        c.GetBody(),
		CreatedAt:   c.GetCreatedAt().Time,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
