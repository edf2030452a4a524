package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

func makeIssue(number int, score float64) model.Issue {
	return model.Issue{
		ID:            int64(1000 + number),
		Number:        number,
		RepoFullName:  "containerd/containerd",
		Title:         "Issue title",
		Body:          "Issue body",
		State:         model.IssueStateOpen,
		Labels:        []string{"kind/bug"},
		Author:        "alice",
		Assignees:     []string{},
		URL:           "https://github.com/containerd/containerd/issues/1",
		CommentsCount: 2,
		Kind:          model.IssueKindBug,
		Score:         score,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		FetchedAt:     time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	}
}

func TestIssueRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	issue := makeIssue(42, 7.5)
	issue.State = model.IssueStateClosed
	issue.ClosedAt = time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)
	issue.HasMaintainerResponse = true
	issue.Assignees = []string{"maint"}

	require.NoError(t, repo.Upsert(ctx, issue))

	got, err := repo.GetByNumber(ctx, "containerd/containerd", 42)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, issue.ID, got.ID)
	assert.Equal(t, "Issue title", got.Title)
	assert.Equal(t, "Issue body", got.Body)
	assert.Equal(t, model.IssueStateClosed, got.State)
	assert.Equal(t, []string{"kind/bug"}, got.Labels)
	assert.Equal(t, []string{"maint"}, got.Assignees)
	assert.Equal(t, 2, got.CommentsCount)
	assert.True(t, got.HasMaintainerResponse)
	assert.Equal(t, model.IssueKindBug, got.Kind)
	assert.InDelta(t, 7.5, got.Score, 1e-9)
	assert.True(t, issue.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, issue.UpdatedAt.Equal(got.UpdatedAt))
	assert.True(t, issue.ClosedAt.Equal(got.ClosedAt))
	assert.True(t, issue.FetchedAt.Equal(got.FetchedAt))
}

func TestIssueRepo_GetByNumber_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIssueRepo(db)

	got, err := repo.GetByNumber(context.Background(), "containerd/containerd", 1)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIssueRepo_Upsert_UpdatesExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	issue := makeIssue(7, 1.0)
	require.NoError(t, repo.Upsert(ctx, issue))

	issue.Title = "Updated title"
	issue.Score = 9.0
	issue.Labels = nil
	require.NoError(t, repo.Upsert(ctx, issue))

	got, err := repo.GetByNumber(ctx, "containerd/containerd", 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Updated title", got.Title)
	assert.InDelta(t, 9.0, got.Score, 1e-9)
	assert.Equal(t, []string{}, got.Labels)
	assert.True(t, got.ClosedAt.IsZero())

	n, err := repo.Count(ctx, "containerd/containerd")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIssueRepo_Upsert_DefaultsKind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	issue := makeIssue(3, 1.0)
	issue.Kind = ""
	require.NoError(t, repo.Upsert(ctx, issue))

	got, err := repo.GetByNumber(ctx, "containerd/containerd", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.IssueKindOther, got.Kind)
}

func TestIssueRepo_ListByScore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIssueRepo(db)
	ctx := context.Background()

	for _, issue := range []model.Issue{makeIssue(1, 2.0), makeIssue(2, 8.5), makeIssue(3, 2.0), makeIssue(4, 5.0)} {
		require.NoError(t, repo.Upsert(ctx, issue))
	}
	other := makeIssue(5, 100)
	other.RepoFullName = "moby/moby"
	require.NoError(t, repo.Upsert(ctx, other))

	all, err := repo.ListByScore(ctx, "containerd/containerd", 0)
	require.NoError(t, err)
	numbers := make([]int, 0, len(all))
	for _, i := range all {
		numbers = append(numbers, i.Number)
	}
	assert.Equal(t, []int{2, 4, 1, 3}, numbers)

	top, err := repo.ListByScore(ctx, "containerd/containerd", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 2, top[0].Number)
	assert.Equal(t, 4, top[1].Number)

	n, err := repo.Count(ctx, "moby/moby")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
