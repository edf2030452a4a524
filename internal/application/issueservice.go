package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
	"github.com/ericfisherdev/qamint/internal/domain/quota"
)

// Defaults for issue mining and generation.
const (
	DefaultMineWindow    = 730 * 24 * time.Hour
	DefaultIssueMaxQA    = 3000
	checkpointEvery      = 50
	mineSummaryTopIssues = 10
)

// ErrNoStoredIssues indicates generation was requested before any issues
// were mined for the repository.
var ErrNoStoredIssues = errors.New("no stored issues")

// MineRequest configures an issue mining pass.
type MineRequest struct {
	Repo string

	// Since bounds issues by last update. Zero uses DefaultMineWindow.
	Since time.Time

	// MaxIssues limits how many issues are fetched. Zero fetches all.
	MaxIssues int

	// MetadataPath optionally receives a JSON export of the mined issues.
	MetadataPath string
}

// MineSummary describes the issues stored by a mining pass.
type MineSummary struct {
	Repo   string                  `json:"repository"`
	Total  int                     `json:"total_issues"`
	Open   int                     `json:"open_issues"`
	Closed int                     `json:"closed_issues"`
	ByKind map[model.IssueKind]int `json:"issue_types"`
	Top    []model.Issue           `json:"-"`
	Errors int                     `json:"errors"`
}

// minedIssue is the exported JSON form of a scored issue.
type minedIssue struct {
	Number                int              `json:"number"`
	Title                 string           `json:"title"`
	State                 model.IssueState `json:"state"`
	Labels                []string         `json:"labels"`
	Author                string           `json:"author"`
	URL                   string           `json:"url"`
	Comments              int              `json:"comments"`
	HasMaintainerResponse bool             `json:"has_maintainer_response"`
	Kind                  model.IssueKind  `json:"issue_type"`
	Score                 float64          `json:"priority_score"`
	BodyLength            int              `json:"body_length"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

type mineExport struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Since     time.Time    `json:"since"`
	Summary   *MineSummary `json:"summary"`
	Issues    []minedIssue `json:"issues"`
}

// IssueRequest configures one issue dataset generation run.
type IssueRequest struct {
	Repo   string
	Output string

	// MaxIssues keeps only the highest scored stored issues. Zero keeps all.
	MaxIssues int
	MaxQA     int
}

// IssueReport summarises an issue dataset generation run.
type IssueReport struct {
	RunID         int64         `json:"run_id"`
	Repo          string        `json:"repository"`
	Model         string        `json:"model"`
	StartedAt     time.Time     `json:"generation_timestamp"`
	Processed     int           `json:"total_issues_processed"`
	Successful    int           `json:"successful_generations"`
	Failed        int           `json:"failed_generations"`
	Retried       int           `json:"retried_generations"`
	Examples      int           `json:"total_training_examples"`
	Pairs         int           `json:"total_qa_pairs"`
	Duplicates    int           `json:"duplicates_skipped"`
	TokensUsed    int64         `json:"total_tokens_used"`
	Usage         model.Usage   `json:"usage"`
	EstimatedCost float64       `json:"estimated_cost"`
	Allocation    quota.Summary `json:"allocation"`
	Interrupted   bool          `json:"interrupted"`
	Output        string        `json:"-"`
	MetadataPath  string        `json:"-"`
	Checkpoints   []string      `json:"checkpoints,omitempty"`
}

// IssueService mines GitHub issues and turns the discussions into a
// chat-format fine-tuning dataset.
type IssueService struct {
	gh          driven.GitHubClient
	issues      driven.IssueStore
	runs        driven.RunStore
	questions   driven.QuestionStore
	llm         driven.LLMClient
	writer      driven.DatasetWriter
	pacer       *Pacer
	prompts     Prompts
	model       string
	maintainers map[string]bool
}

// NewIssueService creates a new IssueService with all required dependencies.
// Comments by any of maintainers count as a maintainer response. A nil pacer
// uses the default request rate.
func NewIssueService(
	gh driven.GitHubClient,
	issues driven.IssueStore,
	runs driven.RunStore,
	questions driven.QuestionStore,
	llm driven.LLMClient,
	writer driven.DatasetWriter,
	pacer *Pacer,
	prompts Prompts,
	model string,
	maintainers []string,
) *IssueService {
	if pacer == nil {
		pacer = NewPacer(DefaultRequestsPerMinute)
	}
	set := make(map[string]bool, len(maintainers))
	for _, m := range maintainers {
		if m = strings.TrimSpace(m); m != "" {
			set[m] = true
		}
	}
	return &IssueService{
		gh:          gh,
		issues:      issues,
		runs:        runs,
		questions:   questions,
		llm:         llm,
		writer:      writer,
		pacer:       pacer,
		prompts:     prompts,
		model:       model,
		maintainers: set,
	}
}

// Mine fetches the repository's issues, scores them and stores them for later
// generation. A failed comment fetch is logged and the issue is scored from
// its listing alone.
func (s *IssueService) Mine(ctx context.Context, req MineRequest) (*MineSummary, error) {
	if req.Repo == "" {
		return nil, errors.New("repository is required")
	}
	if len(s.maintainers) == 0 {
		slog.Warn("no maintainers configured, maintainer response bonus disabled", "repo", req.Repo)
	}

	now := time.Now()
	since := req.Since
	if since.IsZero() {
		since = now.Add(-DefaultMineWindow)
	}

	fetched, err := s.gh.FetchIssues(ctx, req.Repo, since, req.MaxIssues)
	if err != nil {
		return nil, fmt.Errorf("fetch issues: %w", err)
	}

	slog.Info("issues fetched", "repo", req.Repo, "count", len(fetched), "since", since.Format(time.DateOnly))

	summary := &MineSummary{Repo: req.Repo, ByKind: make(map[model.IssueKind]int)}
	scored := make([]model.Issue, 0, len(fetched))

	for _, issue := range fetched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		comments, err := s.gh.FetchIssueComments(ctx, req.Repo, issue.Number)
		if err != nil {
			slog.Warn("failed to fetch issue comments", "repo", req.Repo, "issue", issue.Number, "error", err)
			summary.Errors++
		} else {
			issue.CommentsCount = len(comments)
			issue.HasMaintainerResponse = hasMaintainerResponse(comments, s.maintainers)
		}

		issue.RepoFullName = req.Repo
		issue.Kind = ClassifyIssue(issue.Labels)
		issue.Score = IssueScore(issue, now)
		issue.FetchedAt = now

		if err := s.issues.Upsert(ctx, issue); err != nil {
			return nil, fmt.Errorf("store issue #%d: %w", issue.Number, err)
		}

		summary.Total++
		if issue.IsClosed() {
			summary.Closed++
		} else {
			summary.Open++
		}
		summary.ByKind[issue.Kind]++
		scored = append(scored, issue)
	}

	slices.SortFunc(scored, compareIssues)
	summary.Top = scored[:min(len(scored), mineSummaryTopIssues)]

	if req.MetadataPath != "" {
		export := mineExport{FetchedAt: now.UTC(), Since: since.UTC(), Summary: summary, Issues: make([]minedIssue, len(scored))}
		for i, issue := range scored {
			export.Issues[i] = toMinedIssue(issue)
		}
		if err := s.writer.WriteJSON(req.MetadataPath, export); err != nil {
			return summary, fmt.Errorf("write issue metadata: %w", err)
		}
	}

	slog.Info("issues mined",
		"repo", req.Repo,
		"total", summary.Total,
		"open", summary.Open,
		"closed", summary.Closed,
		"errors", summary.Errors,
	)

	return summary, nil
}

// Generate distributes req.MaxQA pairs across the stored issues by score and
// asks the model for each issue's share. An unparseable response is retried
// once with a simpler prompt. Progress is checkpointed every 50 issues. When
// ctx is cancelled the examples generated so far are still written.
func (s *IssueService) Generate(ctx context.Context, req IssueRequest) (*IssueReport, error) {
	if req.Repo == "" {
		return nil, errors.New("repository is required")
	}
	if req.Output == "" {
		return nil, errors.New("output path is required")
	}

	stored, err := s.issues.ListByScore(ctx, req.Repo, req.MaxIssues)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("generate for %s: %w", req.Repo, ErrNoStoredIssues)
	}

	items := make([]quota.Item[int], len(stored))
	for i, issue := range stored {
		items[i] = quota.Item[int]{ID: issue.Number, Score: issue.Score}
	}
	alloc, err := quota.Allocate(items, quota.Options{Quota: req.MaxQA, Cap: quota.Uncapped(), MinimumOne: true})
	if err != nil {
		return nil, fmt.Errorf("allocate pairs: %w", err)
	}

	run := model.Run{
		Kind:      model.RunKindIssues,
		Source:    req.Repo,
		Output:    req.Output,
		Quota:     req.MaxQA,
		Allocated: alloc.Summary.TotalAllocated,
		StartedAt: time.Now(),
	}
	run.ID, err = s.runs.Start(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	entries := make([]model.AllocationEntry, len(stored))
	for i, issue := range stored {
		entries[i] = model.AllocationEntry{
			RunID:     run.ID,
			ItemKey:   strconv.Itoa(issue.Number),
			Score:     issue.Score,
			Allocated: alloc.Counts[issue.Number],
		}
	}
	if err := s.runs.SaveAllocations(ctx, run.ID, entries); err != nil {
		return nil, fmt.Errorf("save allocations: %w", err)
	}

	report := &IssueReport{
		RunID:        run.ID,
		Repo:         req.Repo,
		Model:        s.model,
		StartedAt:    run.StartedAt.UTC(),
		Allocation:   alloc.Summary,
		Output:       req.Output,
		MetadataPath: issueSidecarPath(req.Output, "_metadata.json"),
	}

	slog.Info("pairs allocated",
		"run_id", run.ID,
		"issues", len(stored),
		"quota", req.MaxQA,
		"allocated", alloc.Summary.TotalAllocated,
		"at_zero", alloc.Summary.ItemsAtZero,
	)

	dedup := newDedupFilter(s.questions, run.ID)
	examples, loopErr := s.generateAll(ctx, dedup, stored, alloc.Counts, run.ID, report)

	run.Generated = report.Pairs
	run.Errors = report.Failed
	run.Duplicates = report.Duplicates
	finishRun(ctx, s.runs, run)

	report.Examples = len(examples)
	if err := s.writer.WriteExamples(req.Output, examples); err != nil {
		return report, fmt.Errorf("write dataset: %w", err)
	}
	dedup.commit(ctx)
	if err := s.writer.WriteJSON(report.MetadataPath, report); err != nil {
		return report, fmt.Errorf("write metadata: %w", err)
	}

	slog.Info("issue dataset written",
		"run_id", run.ID,
		"output", req.Output,
		"examples", report.Examples,
		"failed", report.Failed,
		"tokens", report.TokensUsed,
		"estimated_cost", fmt.Sprintf("%.2f", report.EstimatedCost),
	)

	return report, loopErr
}

func (s *IssueService) generateAll(
	ctx context.Context,
	dedup *dedupFilter,
	stored []model.Issue,
	counts map[int]int,
	runID int64,
	report *IssueReport,
) ([]model.TrainingExample, error) {
	examples := make([]model.TrainingExample, 0, len(stored))

	for i, issue := range stored {
		if n := i + 1; n%checkpointEvery == 0 {
			s.checkpoint(report, examples, n)
		}

		count := counts[issue.Number]
		if count == 0 {
			slog.Debug("skipping issue with no allocation", "issue", issue.Number)
			continue
		}

		if err := s.pacer.Wait(ctx, count); err != nil {
			report.Interrupted = true
			return examples, interrupted(err)
		}

		slog.Info("processing issue",
			"index", i+1,
			"of", len(stored),
			"issue", issue.Number,
			"kind", issue.Kind,
			"score", issue.Score,
			"pairs", count,
		)

		report.Processed++
		pairs, err := s.generateIssue(ctx, issue, count, report)
		if err != nil {
			if ctx.Err() != nil {
				report.Interrupted = true
				return examples, interrupted(ctx.Err())
			}
			slog.Warn("issue generation failed", "issue", issue.Number, "error", err)
			report.Failed++
			continue
		}

		meta := &model.ExampleMetadata{
			Source:      "github_issue",
			IssueNumber: issue.Number,
			IssueTitle:  issue.Title,
			IssueKind:   issue.Kind,
			Score:       issue.Score,
		}
		generated := 0
		for _, pair := range pairs {
			if !dedup.keep(ctx, pair.Question) {
				report.Duplicates++
				continue
			}
			examples = append(examples, chatExample("", pair, meta))
			generated++
		}

		report.Successful++
		report.Pairs += generated
		markGenerated(ctx, s.runs, runID, strconv.Itoa(issue.Number), generated)
	}

	return examples, nil
}

// generateIssue refreshes the issue from GitHub, falling back to the stored
// copy, and asks the model for count pairs.
func (s *IssueService) generateIssue(ctx context.Context, stored model.Issue, count int, report *IssueReport) ([]model.QAPair, error) {
	issue := stored
	fresh, err := s.gh.FetchIssue(ctx, report.Repo, stored.Number)
	switch {
	case errors.Is(err, driven.ErrIssueNotFound):
		return nil, err
	case err != nil:
		slog.Warn("failed to refresh issue, using stored copy", "issue", stored.Number, "error", err)
	case fresh != nil:
		issue = *fresh
	}

	comments, err := s.gh.FetchIssueComments(ctx, report.Repo, stored.Number)
	if err != nil {
		if errors.Is(err, driven.ErrIssueNotFound) {
			return nil, err
		}
		slog.Warn("failed to fetch issue comments", "issue", stored.Number, "error", err)
	}

	completion, err := s.llm.Complete(ctx, model.CompletionRequest{
		Model:        s.model,
		SystemPrompt: s.prompts.IssueSystem(),
		UserPrompt:   s.prompts.Issue(issue, comments, count),
		Temperature:  generationTemperature,
		MaxTokens:    issueMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	s.addUsage(report, completion.Usage)

	pairs, err := ParseQAPairs(completion.Text)
	if err == nil && len(pairs) > 0 {
		return pairs[:min(len(pairs), count)], nil
	}

	slog.Info("response unparseable, retrying with simpler prompt", "issue", issue.Number)
	report.Retried++

	retry, err := s.llm.Complete(ctx, model.CompletionRequest{
		Model:        s.model,
		SystemPrompt: retrySystemPrompt,
		UserPrompt:   s.prompts.IssueRetry(issue, count),
		Temperature:  retryTemperature,
		MaxTokens:    retryMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("retry complete: %w", err)
	}
	s.addUsage(report, retry.Usage)

	pairs, err = ParseQAPairs(retry.Text)
	if err != nil {
		return nil, fmt.Errorf("parse retry response: %w", err)
	}
	if len(pairs) == 0 {
		return nil, ErrUnparseableResponse
	}
	return pairs[:min(len(pairs), count)], nil
}

func (s *IssueService) addUsage(report *IssueReport, u model.Usage) {
	report.Usage.Add(u)
	report.TokensUsed = report.Usage.TotalTokens()
	report.EstimatedCost = estimateCost(report.Usage)
}

// checkpoint writes the examples gathered before the n-th issue. Failures
// are logged and generation continues.
func (s *IssueService) checkpoint(report *IssueReport, examples []model.TrainingExample, n int) {
	path := issueSidecarPath(report.Output, fmt.Sprintf("_intermediate_%d.jsonl", n))
	if err := s.writer.WriteExamples(path, examples); err != nil {
		slog.Warn("failed to write checkpoint", "path", path, "error", err)
		return
	}
	report.Checkpoints = append(report.Checkpoints, path)
	slog.Info("checkpoint written", "path", path, "examples", len(examples))
}

// issueSidecarPath replaces a ".jsonl" extension on output with suffix.
func issueSidecarPath(output, suffix string) string {
	if filepath.Ext(output) == ".jsonl" {
		output = strings.TrimSuffix(output, ".jsonl")
	}
	return output + suffix
}

func compareIssues(a, b model.Issue) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Number, b.Number)
}

func toMinedIssue(issue model.Issue) minedIssue {
	return minedIssue{
		Number:                issue.Number,
		Title:                 issue.Title,
		State:                 issue.State,
		Labels:                issue.Labels,
		Author:                issue.Author,
		URL:                   issue.URL,
		Comments:              issue.CommentsCount,
		HasMaintainerResponse: issue.HasMaintainerResponse,
		Kind:                  issue.Kind,
		Score:                 issue.Score,
		BodyLength:            issue.BodyLength(),
		CreatedAt:             issue.CreatedAt.UTC(),
		UpdatedAt:             issue.UpdatedAt.UTC(),
	}
}
