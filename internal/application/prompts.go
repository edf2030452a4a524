package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
)

// DefaultDomain names the subject of generated questions when none is
// configured.
const DefaultDomain = "the project"

// retrySystemPrompt accompanies the simplified prompt used after a response
// could not be parsed.
const retrySystemPrompt = "Generate only valid JSON. No markdown, no explanations."

const (
	maxPromptComments = 20
	issueBodyRunes    = 6000
	commentRunes      = 2000
)

// Prompts builds the prompts and system messages sent to the models. Domain
// is the subject the assistant is trained on, for example "containerd".
type Prompts struct {
	Domain string
}

// NewPrompts creates Prompts for domain, falling back to DefaultDomain.
func NewPrompts(domain string) Prompts {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultDomain
	}
	return Prompts{Domain: domain}
}

func (p Prompts) domain() string {
	if p.Domain == "" {
		return DefaultDomain
	}
	return p.Domain
}

// CodeSystem is the system message for code analysis calls.
func (p Prompts) CodeSystem() string {
	return fmt.Sprintf("You are an expert in %s and Go programming. Generate high-quality training data for fine-tuning a %s expert assistant.",
		p.domain(), p.domain())
}

// ExpertSystem is the system message stored in code examples and used for
// the fine-tuned model during evaluation.
func (p Prompts) ExpertSystem() string {
	return fmt.Sprintf("You are an expert in %s. Provide accurate, detailed, and practical information about %s's architecture, APIs, and implementation.",
		p.domain(), p.domain())
}

// BaselineSystem is the system message given to the baseline model during
// evaluation.
func (p Prompts) BaselineSystem() string {
	return "You are a helpful assistant with expertise in software engineering and system administration."
}

// IssueSystem is the system message for issue analysis calls.
func (p Prompts) IssueSystem() string {
	return fmt.Sprintf("You are an expert in %s. Generate high-quality training data from GitHub issues.", p.domain())
}

// Code asks for exactly count pairs about one source file.
func (p Prompts) Code(file model.SourceFile, source string, count int) string {
	d := p.domain()

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following Go source file from %s and generate training data for a %s expert assistant.\n\n", d, d)
	fmt.Fprintf(&b, "File: %s\n", file.Path)
	fmt.Fprintf(&b, "Package: %s\n", file.Package)
	fmt.Fprintf(&b, "Functions: %d\n", file.FunctionCount)
	fmt.Fprintf(&b, "Has Structs: %t\n", file.HasStructs)
	fmt.Fprintf(&b, "Has Interfaces: %t\n\n", file.HasInterfaces)
	b.WriteString("SOURCE CODE:\n```go\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("```\n\n")

	fmt.Fprintf(&b, "Generate exactly %d diverse question-answer pairs. Focus on:\n\n", count)
	fmt.Fprintf(&b, "1. File purpose: what this file does in the %s architecture\n", d)
	b.WriteString("2. Key functions: the most important exported functions and what they do\n")
	b.WriteString("3. Data structures: the main structs and interfaces and their purpose\n")
	fmt.Fprintf(&b, "4. Integration: how this component works with other parts of %s\n", d)
	b.WriteString("5. Usage patterns: how developers typically use this code\n")
	b.WriteString("6. Technical details: notable implementation details, algorithms or design patterns\n")
	b.WriteString("7. Error handling: how the code handles errors and edge cases\n\n")
	fmt.Fprintf(&b, "Questions should be specific, technical and practical for someone working with %s. ", d)
	b.WriteString("Answers should be comprehensive and accurate.\n\n")
	b.WriteString(pairFormat)
	fmt.Fprintf(&b, "IMPORTANT: Generate exactly %d question-answer pairs, no more, no less.\n", count)
	return b.String()
}

// Issue asks for exactly count pairs about one issue and its discussion.
func (p Prompts) Issue(issue model.Issue, comments []model.IssueComment, count int) string {
	d := p.domain()

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following GitHub issue discussion, generate exactly %d high-quality training Q&A pairs that would help someone learn about %s.\n\n", count, d)
	b.WriteString("Focus on technical problem-solving patterns, best practices, common issues and their solutions, architecture and design concepts, and troubleshooting approaches.\n")
	fmt.Fprintf(&b, "Questions should be specific, actionable and relevant to %s. Answers should be technically correct, include context and reasoning, and mention relevant %s concepts.\n\n", d, d)

	fmt.Fprintf(&b, "ISSUE #%d: %s\n\n", issue.Number, issue.Title)
	fmt.Fprintf(&b, "Status: %s\n", issue.State)
	fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	fmt.Fprintf(&b, "Created: %s\n", formatPromptTime(issue.CreatedAt))
	fmt.Fprintf(&b, "Author: %s\n\n", issue.Author)

	body := IssueText(issue.Body, issueBodyRunes)
	if body == "" {
		body = "No description provided"
	}
	b.WriteString("DESCRIPTION:\n")
	b.WriteString(body)
	b.WriteString("\n\nDISCUSSION:\n")

	for i, c := range comments[:min(len(comments), maxPromptComments)] {
		fmt.Fprintf(&b, "\nComment #%d by %s (%s):\n", i+1, c.Author, formatPromptTime(c.CreatedAt))
		b.WriteString(IssueText(c.Body, commentRunes))
		b.WriteString("\n\n---\n")
	}

	b.WriteString("\n")
	b.WriteString(pairFormat)
	fmt.Fprintf(&b, "IMPORTANT: Generate exactly %d question-answer pairs. Return only the JSON array with no markdown blocks and no explanations.\n", count)
	return b.String()
}

// IssueRetry is the shorter prompt used once after an unparseable response.
func (p Prompts) IssueRetry(issue model.Issue, count int) string {
	return fmt.Sprintf("Generate %d Q&A pairs about %s from this GitHub issue. Return only a valid JSON array.\n\nIssue: %s\n\nFormat:\n[{\"question\": \"...\", \"answer\": \"...\"}, {\"question\": \"...\", \"answer\": \"...\"}]",
		count, p.domain(), issue.Title)
}

const pairFormat = `Return the response as a JSON array of objects, each with:
- "question": a specific, technical question
- "answer": a comprehensive, expert-level answer

Use proper JSON escaping for quotes and newlines. Example format:
[
  {
    "question": "What is the purpose of the X function?",
    "answer": "The X function serves as..."
  }
]

`

func formatPromptTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}
