package model

import "time"

// IssueComment represents a discussion comment on a tracker issue.
type IssueComment struct {
	ID          int64
	IssueNumber int
	Author      string
	Body        string
	CreatedAt   time.Time
}
