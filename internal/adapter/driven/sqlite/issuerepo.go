package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IssueStore = (*IssueRepo)(nil)

// IssueRepo is the SQLite implementation of the IssueStore port interface.
type IssueRepo struct {
	db *DB
}

// NewIssueRepo creates a new IssueRepo backed by the given DB.
func NewIssueRepo(db *DB) *IssueRepo {
	return &IssueRepo{db: db}
}

const issueColumns = `
	id, repo_full_name, number, title, body, state, labels, author, assignees, url,
	comments_count, has_maintainer_response, kind, score, created_at, updated_at, closed_at, fetched_at
`

// Upsert inserts or replaces an issue. Labels and assignees are serialized as
// JSON arrays in TEXT columns. A zero FetchedAt is set to now.
func (r *IssueRepo) Upsert(ctx context.Context, issue model.Issue) error {
	const query = `
		INSERT INTO issues (
			id, repo_full_name, number, title, body, state, labels, author, assignees, url,
			comments_count, has_maintainer_response, kind, score, created_at, updated_at, closed_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_full_name, number) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			body = excluded.body,
			state = excluded.state,
			labels = excluded.labels,
			author = excluded.author,
			assignees = excluded.assignees,
			url = excluded.url,
			comments_count = excluded.comments_count,
			has_maintainer_response = excluded.has_maintainer_response,
			kind = excluded.kind,
			score = excluded.score,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at,
			fetched_at = excluded.fetched_at
	`

	labelsJSON, err := marshalStrings(issue.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	assigneesJSON, err := marshalStrings(issue.Assignees)
	if err != nil {
		return fmt.Errorf("marshal assignees: %w", err)
	}

	kind := issue.Kind
	if kind == "" {
		kind = model.IssueKindOther
	}
	fetchedAt := issue.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		issue.ID, issue.RepoFullName, issue.Number, issue.Title, issue.Body, string(issue.State),
		labelsJSON, issue.Author, assigneesJSON, issue.URL,
		issue.CommentsCount, boolToInt(issue.HasMaintainerResponse), string(kind), issue.Score,
		timeText(issue.CreatedAt), timeText(issue.UpdatedAt), nullTimeText(issue.ClosedAt), timeText(fetchedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert issue %s#%d: %w", issue.RepoFullName, issue.Number, err)
	}

	return nil
}

// GetByNumber retrieves an issue by repository and number. Returns nil, nil if
// the issue has not been stored.
func (r *IssueRepo) GetByNumber(ctx context.Context, repoFullName string, number int) (*model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE repo_full_name = ? AND number = ?`

	issue, err := scanIssue(r.db.Reader.QueryRowContext(ctx, query, repoFullName, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get issue %s#%d: %w", repoFullName, number, err)
	}

	return issue, nil
}

// ListByScore returns the repository's issues by score descending, number
// ascending. A limit of zero or less returns every issue.
func (r *IssueRepo) ListByScore(ctx context.Context, repoFullName string, limit int) ([]model.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE repo_full_name = ? ORDER BY score DESC, number ASC LIMIT ?`
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded.
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, repoFullName, limit)
	if err != nil {
		return nil, fmt.Errorf("list issues for %s: %w", repoFullName, err)
	}
	defer rows.Close()

	issues := []model.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, *issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate issues: %w", err)
	}

	return issues, nil
}

// Count returns the number of stored issues for a repository.
func (r *IssueRepo) Count(ctx context.Context, repoFullName string) (int, error) {
	const query = `SELECT COUNT(*) FROM issues WHERE repo_full_name = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, repoFullName).Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues for %s: %w", repoFullName, err)
	}
	return n, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanIssue(s scanner) (*model.Issue, error) {
	var issue model.Issue
	var state, labelsJSON, assigneesJSON, kind string
	var hasMaintainer int
	var createdAt, updatedAt, fetchedAt string
	var closedAt sql.NullString

	err := s.Scan(
		&issue.ID, &issue.RepoFullName, &issue.Number, &issue.Title, &issue.Body, &state,
		&labelsJSON, &issue.Author, &assigneesJSON, &issue.URL,
		&issue.CommentsCount, &hasMaintainer, &kind, &issue.Score,
		&createdAt, &updatedAt, &closedAt, &fetchedAt,
	)
	if err != nil {
		return nil, err
	}

	issue.State = model.IssueState(state)
	issue.Kind = model.IssueKind(kind)
	issue.HasMaintainerResponse = hasMaintainer != 0

	if err := json.Unmarshal([]byte(labelsJSON), &issue.Labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}
	if err := json.Unmarshal([]byte(assigneesJSON), &issue.Assignees); err != nil {
		return nil, fmt.Errorf("unmarshal assignees: %w", err)
	}

	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if issue.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	if issue.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}

	return &issue, nil
}
