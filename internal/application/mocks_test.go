package application_test

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/qamint/internal/application"
	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockScanner struct {
	files   []model.SourceFile
	scanErr error
	readErr map[string]error
}

func (m *mockScanner) Scan(_ context.Context, _ string) ([]model.SourceFile, error) {
	return m.files, m.scanErr
}

func (m *mockScanner) ReadSource(file model.SourceFile) (string, error) {
	if err := m.readErr[file.Path]; err != nil {
		return "", err
	}
	return "package " + file.Package + "\n", nil
}

type mockLLM struct {
	mu       sync.Mutex
	complete func(ctx context.Context, req model.CompletionRequest) (*model.Completion, error)
	calls    []model.CompletionRequest
}

func (m *mockLLM) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	return m.complete(ctx, req)
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var (
	exactCount = regexp.MustCompile(`(?i)generate (?:exactly )?(\d+)`)
	fileLine   = regexp.MustCompile(`File: (\S+)`)
	issueLine  = regexp.MustCompile(`(?:ISSUE #(\d+)|Issue: (.+))`)
)

// pairsReply answers with exactly as many distinct pairs as the prompt asks
// for, tagging each question with the file or issue it came from.
func pairsReply(_ context.Context, req model.CompletionRequest) (*model.Completion, error) {
	return &model.Completion{
		Text:  pairsJSON(subjectOf(req.UserPrompt), requestedCount(req.UserPrompt)),
		Usage: model.Usage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func requestedCount(prompt string) int {
	m := exactCount.FindStringSubmatch(prompt)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func subjectOf(prompt string) string {
	if m := fileLine.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	if m := issueLine.FindStringSubmatch(prompt); m != nil {
		return strings.TrimSpace(m[1] + m[2])
	}
	return "unknown"
}

func pairsJSON(subject string, n int) string {
	pairs := make([]model.QAPair, n)
	for i := range pairs {
		pairs[i] = model.QAPair{
			Question: fmt.Sprintf("Question %d about %s?", i+1, subject),
			Answer:   fmt.Sprintf("Answer %d about %s.", i+1, subject),
		}
	}
	b, _ := json.Marshal(pairs)
	return string(b)
}

type mockRunStore struct {
	mu          sync.Mutex
	nextID      int64
	runs        map[int64]model.Run
	allocations map[int64]map[string]model.AllocationEntry
}

func newMockRunStore() *mockRunStore {
	return &mockRunStore{
		runs:        make(map[int64]model.Run),
		allocations: make(map[int64]map[string]model.AllocationEntry),
	}
}

func (m *mockRunStore) Start(_ context.Context, run model.Run) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.runs[run.ID] = run
	return run.ID, nil
}

func (m *mockRunStore) Finish(_ context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return driven.ErrRunNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *mockRunStore) GetByID(_ context.Context, id int64) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *mockRunStore) ListRecent(_ context.Context, _ int) ([]model.Run, error) {
	return nil, nil
}

func (m *mockRunStore) SaveAllocations(_ context.Context, runID int64, entries []model.AllocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ledger := make(map[string]model.AllocationEntry, len(entries))
	for _, e := range entries {
		ledger[e.ItemKey] = e
	}
	m.allocations[runID] = ledger
	return nil
}

func (m *mockRunStore) MarkGenerated(_ context.Context, runID int64, itemKey string, generated int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.allocations[runID][itemKey]
	if !ok {
		return driven.ErrRunNotFound
	}
	e.Generated = generated
	m.allocations[runID][itemKey] = e
	return nil
}

func (m *mockRunStore) ListAllocations(_ context.Context, runID int64) ([]model.AllocationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AllocationEntry, 0, len(m.allocations[runID]))
	for _, e := range m.allocations[runID] {
		out = append(out, e)
	}
	return out, nil
}

type mockQuestionStore struct {
	mu     sync.Mutex
	hashes map[string]int64
}

func newMockQuestionStore() *mockQuestionStore {
	return &mockQuestionStore{hashes: make(map[string]int64)}
}

func (m *mockQuestionStore) Seen(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[hash]
	return ok, nil
}

func (m *mockQuestionStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hashes)
}

func (m *mockQuestionStore) Record(_ context.Context, hash string, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[hash]; !ok {
		m.hashes[hash] = runID
	}
	return nil
}

type mockWriter struct {
	mu       sync.Mutex
	examples map[string][]model.TrainingExample
	docs     map[string]any

	// failPath makes WriteExamples to that path return examplesErr.
	failPath    string
	examplesErr error
}

func newMockWriter() *mockWriter {
	return &mockWriter{
		examples: make(map[string][]model.TrainingExample),
		docs:     make(map[string]any),
	}
}

func (m *mockWriter) WriteExamples(path string, examples []model.TrainingExample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.examplesErr != nil && path == m.failPath {
		return m.examplesErr
	}
	m.examples[path] = append([]model.TrainingExample(nil), examples...)
	return nil
}

func (m *mockWriter) WriteJSON(path string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = v
	return nil
}

// docJSON round-trips a written document into a generic map for assertions.
func (m *mockWriter) docJSON(path string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[path]
	if !ok {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

type mockGitHubClient struct {
	issues     []model.Issue
	fetchErr   error
	comments   map[int][]model.IssueComment
	commentErr map[int]error
	fetchIssue func(ctx context.Context, repo string, number int) (*model.Issue, error)
	since      time.Time
}

func (m *mockGitHubClient) FetchIssues(_ context.Context, _ string, since time.Time, limit int) ([]model.Issue, error) {
	m.since = since
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if limit > 0 && len(m.issues) > limit {
		return m.issues[:limit], nil
	}
	return m.issues, nil
}

func (m *mockGitHubClient) FetchIssue(ctx context.Context, repo string, number int) (*model.Issue, error) {
	if m.fetchIssue != nil {
		return m.fetchIssue(ctx, repo, number)
	}
	for _, issue := range m.issues {
		if issue.Number == number {
			return &issue, nil
		}
	}
	return nil, fmt.Errorf("fetch issue #%d: %w", number, driven.ErrIssueNotFound)
}

func (m *mockGitHubClient) FetchIssueComments(_ context.Context, _ string, number int) ([]model.IssueComment, error) {
	if err := m.commentErr[number]; err != nil {
		return nil, err
	}
	return m.comments[number], nil
}

type mockIssueStore struct {
	mu     sync.Mutex
	issues map[int]model.Issue
}

func newMockIssueStore(issues ...model.Issue) *mockIssueStore {
	m := &mockIssueStore{issues: make(map[int]model.Issue)}
	for _, issue := range issues {
		m.issues[issue.Number] = issue
	}
	return m
}

func (m *mockIssueStore) Upsert(_ context.Context, issue model.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.Number] = issue
	return nil
}

func (m *mockIssueStore) GetByNumber(_ context.Context, _ string, number int) (*model.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[number]
	if !ok {
		return nil, nil
	}
	return &issue, nil
}

func (m *mockIssueStore) ListByScore(_ context.Context, _ string, limit int) ([]model.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Issue, 0, len(m.issues))
	for _, issue := range m.issues {
		out = append(out, issue)
	}
	sortIssues(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockIssueStore) Count(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issues), nil
}

func sortIssues(issues []model.Issue) {
	slices.SortFunc(issues, func(a, b model.Issue) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Number, b.Number)
	})
}

// fastPacer spaces calls by microseconds so services can be tested without
// real delays.
func fastPacer() *application.Pacer {
	return application.NewPacer(60_000_000)
}
