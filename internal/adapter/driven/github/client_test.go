package github_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ghAdapter "github.com/ericfisherdev/qamint/internal/adapter/driven/github"
	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) (*ghAdapter.Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(
		server.Client(),
		server.URL+"/",
		"test-token",
	)
	require.NoError(t, err)

	return client, server
}

// issueJSON is a helper struct for building GitHub API issue responses.
type issueJSON struct {
	ID          int64      `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	HTMLURL     string     `json:"html_url"`
	User        userJSON   `json:"user"`
	Assignees   []userJSON `json:"assignees"`
	Labels      []lblJSON  `json:"labels"`
	Comments    int        `json:"comments"`
	Created     string     `json:"created_at"`
	Updated     string     `json:"updated_at"`
	ClosedAt    *string    `json:"closed_at,omitempty"`
	PullRequest *prLink    `json:"pull_request,omitempty"`
}

type userJSON struct {
	Login string `json:"login"`
}

type lblJSON struct {
	Name string `json:"name"`
}

type prLink struct {
	URL string `json:"url"`
}

type commentJSON struct {
	ID      int64    `json:"id"`
	Body    string   `json:"body"`
	User    userJSON `json:"user"`
	Created string   `json:"created_at"`
}

func TestFetchIssues_SinglePage(t *testing.T) {
	closed := "2026-02-01T08:00:00Z"
	issues := []issueJSON{
		{
			ID:        1001,
			Number:    42,
			Title:     "Container fails to start",
			Body:      "Steps to reproduce...",
			State:     "closed",
			HTMLURL:   "https://github.com/owner/repo/issues/42",
			User:      userJSON{Login: "alice"},
			Assignees: []userJSON{{Login: "maint"}},
			Labels:    []lblJSON{{Name: "kind/bug"}, {Name: "area/runtime"}},
			Comments:  3,
			Created:   "2026-01-01T00:00:00Z",
			Updated:   "2026-01-02T12:00:00Z",
			ClosedAt:  &closed,
		},
		{
			ID:      1002,
			Number:  43,
			Title:   "How do I configure snapshotters?",
			State:   "open",
			User:    userJSON{Login: "bob"},
			Labels:  []lblJSON{},
			Created: "2026-01-03T00:00:00Z",
			Updated: "2026-01-04T00:00:00Z",
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issues)
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchIssues(context.Background(), "owner/repo", time.Time{}, 0)

	require.NoError(t, err)
	require.Len(t, result, 2)

	// Verify first issue mapping
	assert.Equal(t, int64(1001), result[0].ID)
	assert.Equal(t, 42, result[0].Number)
	assert.Equal(t, "owner/repo", result[0].RepoFullName)
	assert.Equal(t, "Container fails to start", result[0].Title)
	assert.Equal(t, "Steps to reproduce...", result[0].Body)
	assert.Equal(t, model.IssueStateClosed, result[0].State)
	assert.Equal(t, "alice", result[0].Author)
	assert.Equal(t, []string{"maint"}, result[0].Assignees)
	assert.Equal(t, []string{"kind/bug", "area/runtime"}, result[0].Labels)
	assert.Equal(t, 3, result[0].CommentsCount)
	assert.Equal(t, "https://github.com/owner/repo/issues/42", result[0].URL)
	assert.Equal(t, time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), result[0].ClosedAt.UTC())

	// Verify second issue mapping
	assert.Equal(t, 43, result[1].Number)
	assert.Equal(t, model.IssueStateOpen, result[1].State)
	assert.True(t, result[1].ClosedAt.IsZero())
	assert.Equal(t, []string{}, result[1].Labels)
}

func TestFetchIssues_QueryParameters(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "all", q.Get("state"))
		assert.Equal(t, "updated", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("direction"))
		assert.Equal(t, "100", q.Get("per_page"))
		assert.Equal(t, "2026-01-01T00:00:00Z", q.Get("since"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchIssues(context.Background(), "owner/repo", since, 0)

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestFetchIssues_SkipsPullRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]issueJSON{
			{Number: 1, Title: "Real issue", State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
			{Number: 2, Title: "A PR", State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z",
				PullRequest: &prLink{URL: "https://api.github.com/repos/owner/repo/pulls/2"}},
		})
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchIssues(context.Background(), "owner/repo", time.Time{}, 0)

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].Number)
}

func TestFetchIssues_Pagination(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		w.Header().Set("Content-Type", "application/json")

		if page == "" || page == "1" {
			// Page 1: include Link header pointing to page 2
			w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
			json.NewEncoder(w).Encode([]issueJSON{
				{Number: 1, Title: "One", State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
			})
			return
		}

		json.NewEncoder(w).Encode([]issueJSON{
			{Number: 2, Title: "Two", State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
		})
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchIssues(context.Background(), "owner/repo", time.Time{}, 0)

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].Number)
	assert.Equal(t, 2, result[1].Number)
}

func TestFetchIssues_StopsAtMax(t *testing.T) {
	requests := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
		json.NewEncoder(w).Encode([]issueJSON{
			{Number: 1, State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
			{Number: 2, State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
			{Number: 3, State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z"},
		})
	})

	client, _ := newTestClient(t, handler)
	result, err := client.FetchIssues(context.Background(), "owner/repo", time.Time{}, 2)

	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, 1, requests, "should not request the next page once max is reached")
}

func TestFetchIssues_InvalidRepoName(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	for _, name := range []string{"", "noslash", "/repo", "owner/"} {
		_, err := client.FetchIssues(context.Background(), name, time.Time{}, 0)
		assert.Error(t, err, "expected error for %q", name)
	}
}

func TestFetchIssue(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues/7", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issueJSON{
			ID: 7007, Number: 7, Title: "Lease expiry", Body: "details", State: "open",
			Labels: []lblJSON{{Name: "question"}}, Comments: 4,
			Created: "2026-01-01T00:00:00Z", Updated: "2026-01-05T00:00:00Z",
		})
	})

	client, _ := newTestClient(t, handler)
	issue, err := client.FetchIssue(context.Background(), "owner/repo", 7)

	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, "Lease expiry", issue.Title)
	assert.Equal(t, "details", issue.Body)
	assert.Equal(t, []string{"question"}, issue.Labels)
	assert.Equal(t, 4, issue.CommentsCount)
}

func TestFetchIssue_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchIssue(context.Background(), "owner/repo", 999)

	require.Error(t, err)
	assert.True(t, errors.Is(err, driven.ErrIssueNotFound))
}

func TestFetchIssue_PullRequestIsNotAnIssue(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issueJSON{
			Number: 8, State: "open", Created: "2026-01-01T00:00:00Z", Updated: "2026-01-01T00:00:00Z",
			PullRequest: &prLink{URL: "https://api.github.com/repos/owner/repo/pulls/8"},
		})
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchIssue(context.Background(), "owner/repo", 8)

	assert.ErrorIs(t, err, driven.ErrIssueNotFound)
}

func TestFetchIssueComments(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/issues/42/comments", r.URL.Path)
		assert.Equal(t, "created", r.URL.Query().Get("sort"))
		assert.Equal(t, "asc", r.URL.Query().Get("direction"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]commentJSON{
			{ID: 1, Body: "Can you share logs?", User: userJSON{Login: "maint"}, Created: "2026-01-02T00:00:00Z"},
			{ID: 2, Body: "Here they are", User: userJSON{Login: "alice"}, Created: "2026-01-03T00:00:00Z"},
		})
	})

	client, _ := newTestClient(t, handler)
	comments, err := client.FetchIssueComments(context.Background(), "owner/repo", 42)

	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, int64(1), comments[0].ID)
	assert.Equal(t, 42, comments[0].IssueNumber)
	assert.Equal(t, "maint", comments[0].Author)
	assert.Equal(t, "Can you share logs?", comments[0].Body)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), comments[0].CreatedAt.UTC())
	assert.Equal(t, "alice", comments[1].Author)
}

func TestFetchIssueComments_NotFound(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchIssueComments(context.Background(), "owner/repo", 1)

	assert.ErrorIs(t, err, driven.ErrIssueNotFound)
}

func TestFetchIssues_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	})

	client, _ := newTestClient(t, handler)
	_, err := client.FetchIssues(context.Background(), "owner/repo", time.Time{}, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing issues for owner/repo")
}
