package application_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/qamint/internal/application"
	"github.com/ericfisherdev/qamint/internal/domain/model"
)

const questionsYAML = `
questions:
  - id: arch-1
    category: architecture
    question: What is a containerd shim?
    expected_topics: [shim, runtime]
  - category: troubleshooting
    question: "  Why does ctr pull hang?  "
  - category: architecture
    question: ""
  - question: How are snapshots garbage collected?
    system_prompt: Answer in one sentence.
`

const questionsJSON = `[
  {"id": "j1", "category": "api", "question": "What does the Tasks service expose?"},
  {"category": "api", "question": "How do leases work?"}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadQuestions(t *testing.T) {
	questions, err := application.LoadQuestions(writeFile(t, "questions.yaml", questionsYAML))
	require.NoError(t, err)

	require.Len(t, questions, 3)
	assert.Equal(t, "arch-1", questions[0].ID)
	assert.Equal(t, []string{"shim", "runtime"}, questions[0].ExpectedTopics)
	assert.Equal(t, "q002", questions[1].ID)
	assert.Equal(t, "Why does ctr pull hang?", questions[1].Question)
	assert.Equal(t, "general", questions[2].Category)
	assert.Equal(t, "Answer in one sentence.", questions[2].SystemPrompt)
}

func TestLoadQuestions_JSONList(t *testing.T) {
	questions, err := application.LoadQuestions(writeFile(t, "questions.json", questionsJSON))
	require.NoError(t, err)

	require.Len(t, questions, 2)
	assert.Equal(t, "j1", questions[0].ID)
	assert.Equal(t, "q002", questions[1].ID)
	assert.Equal(t, "api", questions[1].Category)
}

func TestLoadQuestions_Errors(t *testing.T) {
	_, err := application.LoadQuestions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = application.LoadQuestions(writeFile(t, "empty.yaml", "questions: []\n"))
	assert.ErrorIs(t, err, application.ErrNoQuestions)

	_, err = application.LoadQuestions(writeFile(t, "bad.yaml", "questions: [unclosed\n"))
	require.Error(t, err)
}

func answerWith(text string, latency time.Duration) *mockLLM {
	return &mockLLM{complete: func(_ context.Context, _ model.CompletionRequest) (*model.Completion, error) {
		return &model.Completion{
			Text:    text,
			Usage:   model.Usage{InputTokens: 20, OutputTokens: 80},
			Latency: latency,
		}, nil
	}}
}

func TestEvalService_Run(t *testing.T) {
	tuned := answerWith("tuned answer", 2*time.Second)
	base := answerWith("base answer", time.Second)
	writer := newMockWriter()

	svc := application.NewEvalService([]application.EvalTarget{
		{Name: "fine_tuned", Client: tuned, Model: "ft-model", SystemPrompt: "expert"},
		{Name: "baseline", Client: base, Model: "base-model", SystemPrompt: "helpful"},
	}, writer, fastPacer())

	summary, err := svc.Run(context.Background(), application.EvalRequest{
		QuestionsPath: writeFile(t, "q.yaml", questionsYAML),
		Output:        "out/eval.json",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalQuestions)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "tuned answer", summary.Results[0].Responses["fine_tuned"].Response)
	assert.Equal(t, "base answer", summary.Results[0].Responses["baseline"].Response)

	stats := summary.Models["fine_tuned"]
	assert.Equal(t, 3, stats.Successful)
	assert.InDelta(t, 2.0, stats.AvgLatencySec, 1e-9)
	assert.InDelta(t, 100.0, stats.AvgTotalTokens, 1e-9)
	assert.Equal(t, int64(60), stats.TotalInputTokens)

	require.Len(t, tuned.calls, 3)
	assert.Equal(t, "ft-model", tuned.calls[0].Model)
	assert.Equal(t, "expert", tuned.calls[0].SystemPrompt)
	assert.Equal(t, "Answer in one sentence.", tuned.calls[2].SystemPrompt)
	assert.Equal(t, "Answer in one sentence.", base.calls[2].SystemPrompt)
	assert.Equal(t, 1000, base.calls[0].MaxTokens)

	doc := writer.docJSON("out/eval.json")
	require.NotNil(t, doc)
	assert.Len(t, doc["questions"], 3)
	models := doc["models"].(map[string]any)
	assert.InDelta(t, 1.0, models["baseline"].(map[string]any)["average_response_time"], 1e-9)
}

func TestEvalService_RunRecordsFailures(t *testing.T) {
	failing := &mockLLM{complete: func(_ context.Context, _ model.CompletionRequest) (*model.Completion, error) {
		return nil, errors.New("deployment not found")
	}}
	svc := application.NewEvalService([]application.EvalTarget{
		{Name: "fine_tuned", Client: failing},
		{Name: "baseline", Client: answerWith("ok", time.Second)},
	}, newMockWriter(), fastPacer())

	summary, err := svc.Run(context.Background(), application.EvalRequest{
		QuestionsPath: writeFile(t, "q.json", questionsJSON),
	})
	require.NoError(t, err)

	resp := summary.Results[0].Responses["fine_tuned"]
	assert.False(t, resp.Success)
	assert.Equal(t, "deployment not found", resp.Error)
	assert.Zero(t, summary.Models["fine_tuned"].Successful)
	assert.Zero(t, summary.Models["fine_tuned"].AvgLatencySec)
	assert.Equal(t, 2, summary.Models["baseline"].Successful)
}

func TestEvalService_RunFiltersQuestions(t *testing.T) {
	llm := answerWith("ok", time.Second)
	svc := application.NewEvalService([]application.EvalTarget{{Name: "m", Client: llm}}, newMockWriter(), fastPacer())
	path := writeFile(t, "q.yaml", questionsYAML)

	summary, err := svc.Run(context.Background(), application.EvalRequest{QuestionsPath: path, Categories: []string{"Architecture"}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalQuestions)
	assert.Equal(t, "arch-1", summary.Results[0].Question.ID)

	summary, err = svc.Run(context.Background(), application.EvalRequest{QuestionsPath: path, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalQuestions)

	_, err = svc.Run(context.Background(), application.EvalRequest{QuestionsPath: path, Categories: []string{"security"}})
	assert.ErrorIs(t, err, application.ErrNoQuestions)
}

func TestEvalService_RunRequiresTargets(t *testing.T) {
	svc := application.NewEvalService(nil, newMockWriter(), fastPacer())

	_, err := svc.Run(context.Background(), application.EvalRequest{QuestionsPath: writeFile(t, "q.json", questionsJSON)})

	require.Error(t, err)
}

func TestEvalService_CompareStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	llm := answerWith("ok", time.Second)
	svc := application.NewEvalService([]application.EvalTarget{{Name: "m", Client: llm}}, newMockWriter(), fastPacer())

	_, err := svc.Compare(ctx, model.EvalQuestion{ID: "x", Question: "q"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, llm.callCount())
}
