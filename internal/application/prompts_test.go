package application

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

func TestNewPrompts_DefaultDomain(t *testing.T) {
	assert.Equal(t, DefaultDomain, NewPrompts("  ").Domain)
	assert.Equal(t, "containerd", NewPrompts("containerd").Domain)
	assert.Contains(t, Prompts{}.ExpertSystem(), DefaultDomain)
}

func TestPrompts_Code(t *testing.T) {
	p := NewPrompts("containerd")
	file := model.SourceFile{Path: "client/client.go", Package: "client", FunctionCount: 12, HasStructs: true}

	got := p.Code(file, "package client", 4)

	assert.Contains(t, got, "File: client/client.go")
	assert.Contains(t, got, "Package: client")
	assert.Contains(t, got, "Functions: 12")
	assert.Contains(t, got, "Has Structs: true")
	assert.Contains(t, got, "Has Interfaces: false")
	assert.Contains(t, got, "```go\npackage client\n```")
	assert.Contains(t, got, "Generate exactly 4 diverse question-answer pairs")
	assert.Contains(t, got, "containerd architecture")
}

func TestPrompts_Issue(t *testing.T) {
	p := NewPrompts("containerd")
	issue := model.Issue{
		Number:    42,
		Title:     "Snapshot leak",
		Body:      "Leaks **snapshots** after `ctr run`.",
		State:     model.IssueStateClosed,
		Labels:    []string{"kind/bug", "area/snapshots"},
		Author:    "alice",
		CreatedAt: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
	}
	comments := make([]model.IssueComment, 25)
	for i := range comments {
		comments[i] = model.IssueComment{Author: fmt.Sprintf("user%d", i), Body: fmt.Sprintf("comment %d", i)}
	}

	got := p.Issue(issue, comments, 3)

	assert.Contains(t, got, "ISSUE #42: Snapshot leak")
	assert.Contains(t, got, "Status: closed")
	assert.Contains(t, got, "Labels: kind/bug, area/snapshots")
	assert.Contains(t, got, "Created: 2025-03-04T05:06:07Z")
	assert.Contains(t, got, "Leaks snapshots after ctr run.")
	assert.Contains(t, got, "Comment #20 by user19")
	assert.NotContains(t, got, "Comment #21")
	assert.Equal(t, 2, strings.Count(got, "exactly 3"))
}

func TestPrompts_IssueWithoutBody(t *testing.T) {
	got := NewPrompts("").Issue(model.Issue{Number: 1, Title: "t"}, nil, 1)

	assert.Contains(t, got, "No description provided")
	assert.Contains(t, got, "Created: unknown")
}

func TestPrompts_IssueRetry(t *testing.T) {
	got := NewPrompts("containerd").IssueRetry(model.Issue{Title: "Snapshot leak"}, 2)

	assert.True(t, strings.HasPrefix(got, "Generate 2 Q&A pairs about containerd"))
	assert.Contains(t, got, "Issue: Snapshot leak")
}
