package model

import "time"

// Issue represents a tracker issue mined as training material.
type Issue struct {
	ID                    int64
	Number                int
	RepoFullName          string
	Title                 string
	Body                  string
	State                 IssueState
	Labels                []string
	Author                string
	Assignees             []string
	URL                   string
	CommentsCount         int
	HasMaintainerResponse bool
	Kind                  IssueKind
	Score                 float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ClosedAt              time.Time // Zero while the issue is open.
	FetchedAt             time.Time

	// Transient field populated during GitHub fetch, not persisted.
	IsPullRequest bool
}

// BodyLength returns the length of the issue body in bytes.
func (i Issue) BodyLength() int {
	return len(i.Body)
}

// IsClosed reports whether the issue has been closed.
func (i Issue) IsClosed() bool {
	return i.State == IssueStateClosed
}
