package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Completion parameters for evaluation queries.
const (
	evalTemperature = 0.7
	evalMaxTokens   = 1000
)

// ErrNoQuestions indicates a question set with no usable questions.
var ErrNoQuestions = errors.New("no evaluation questions")

// EvalTarget is one model under evaluation.
type EvalTarget struct {
	Name         string
	Client       driven.LLMClient
	Model        string
	SystemPrompt string
}

// EvalRequest configures an evaluation run.
type EvalRequest struct {
	QuestionsPath string

	// Output receives the results JSON. Empty skips writing.
	Output string

	// Limit caps the number of questions asked. Zero asks every question.
	Limit int

	// Categories restricts the run to questions in these categories.
	Categories []string
}

// EvalService asks the same questions of several models and records their
// answers side by side.
type EvalService struct {
	targets []EvalTarget
	writer  driven.DatasetWriter
	pacer   *Pacer
}

// NewEvalService creates a new EvalService. A nil pacer uses the default
// request rate.
func NewEvalService(targets []EvalTarget, writer driven.DatasetWriter, pacer *Pacer) *EvalService {
	if pacer == nil {
		pacer = NewPacer(DefaultRequestsPerMinute)
	}
	return &EvalService{targets: targets, writer: writer, pacer: pacer}
}

// LoadQuestions reads a YAML or JSON question set. The file may hold a list
// of questions or a document with a "questions" list. Entries without a
// question are dropped and missing IDs are numbered.
func LoadQuestions(path string) ([]model.EvalQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	var questions []model.EvalQuestion
	if err := yaml.Unmarshal(data, &questions); err != nil {
		var doc struct {
			Questions []model.EvalQuestion `yaml:"questions"`
		}
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, fmt.Errorf("parse questions %s: %w", path, docErr)
		}
		questions = doc.Questions
	}

	out := make([]model.EvalQuestion, 0, len(questions))
	for _, q := range questions {
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			continue
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%03d", len(out)+1)
		}
		if q.Category == "" {
			q.Category = "general"
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load %s: %w", path, ErrNoQuestions)
	}
	return out, nil
}

// Run asks every selected question of every target and aggregates per-model
// statistics. Individual model failures are recorded in the results rather
// than returned.
func (s *EvalService) Run(ctx context.Context, req EvalRequest) (*model.EvalSummary, error) {
	if len(s.targets) == 0 {
		return nil, errors.New("no models to evaluate")
	}

	questions, err := LoadQuestions(req.QuestionsPath)
	if err != nil {
		return nil, err
	}
	questions = filterQuestions(questions, req.Categories, req.Limit)
	if len(questions) == 0 {
		return nil, fmt.Errorf("filter questions: %w", ErrNoQuestions)
	}

	summary := &model.EvalSummary{
		StartedAt:      time.Now().UTC(),
		TotalQuestions: len(questions),
		Models:         make(map[string]model.ModelStats, len(s.targets)),
		Results:        make([]model.EvalResult, 0, len(questions)),
	}

	var runErr error
	for i, q := range questions {
		slog.Info("evaluating question", "index", i+1, "of", len(questions), "id", q.ID, "category", q.Category)

		result, err := s.Compare(ctx, q)
		if err != nil {
			runErr = interrupted(err)
			break
		}
		summary.Results = append(summary.Results, result)
	}

	for _, target := range s.targets {
		summary.Models[target.Name] = modelStats(summary.Results, target.Name)
	}

	if req.Output != "" {
		if err := s.writer.WriteJSON(req.Output, summary); err != nil {
			return summary, fmt.Errorf("write results: %w", err)
		}
	}

	for name, stats := range summary.Models {
		slog.Info("model evaluated",
			"model", name,
			"successful", stats.Successful,
			"questions", len(summary.Results),
			"avg_latency_s", fmt.Sprintf("%.2f", stats.AvgLatencySec),
			"avg_tokens", fmt.Sprintf("%.0f", stats.AvgTotalTokens),
		)
	}

	return summary, runErr
}

// Compare asks one question of every target in turn. It returns an error
// only when ctx ends; model failures are recorded on the response.
func (s *EvalService) Compare(ctx context.Context, q model.EvalQuestion) (model.EvalResult, error) {
	result := model.EvalResult{Question: q, Responses: make(map[string]model.EvalResponse, len(s.targets))}

	for _, target := range s.targets {
		if err := s.pacer.Wait(ctx, 0); err != nil {
			return result, err
		}

		system := target.SystemPrompt
		if q.SystemPrompt != "" {
			system = q.SystemPrompt
		}

		start := time.Now()
		completion, err := target.Client.Complete(ctx, model.CompletionRequest{
			Model:        target.Model,
			SystemPrompt: system,
			UserPrompt:   q.Question,
			Temperature:  evalTemperature,
			MaxTokens:    evalMaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			slog.Warn("model query failed", "model", target.Name, "question", q.ID, "error", err)
			result.Responses[target.Name] = model.EvalResponse{Success: false, Error: err.Error()}
			continue
		}

		latency := completion.Latency
		if latency == 0 {
			latency = time.Since(start)
		}
		result.Responses[target.Name] = model.EvalResponse{
			Response:   completion.Text,
			Latency:    latency,
			LatencySec: latency.Seconds(),
			Usage:      completion.Usage,
			Success:    true,
		}
	}

	return result, nil
}

func filterQuestions(questions []model.EvalQuestion, categories []string, limit int) []model.EvalQuestion {
	if len(categories) > 0 {
		questions = slices.DeleteFunc(slices.Clone(questions), func(q model.EvalQuestion) bool {
			return !slices.ContainsFunc(categories, func(c string) bool {
				return strings.EqualFold(strings.TrimSpace(c), q.Category)
			})
		})
	}
	if limit > 0 && len(questions) > limit {
		questions = questions[:limit]
	}
	return questions
}

// modelStats averages latency and tokens over a model's successful responses.
func modelStats(results []model.EvalResult, name string) model.ModelStats {
	var stats model.ModelStats
	var latency float64
	var tokens int64
	for _, r := range results {
		resp, ok := r.Responses[name]
		if !ok || !resp.Success {
			continue
		}
		stats.Successful++
		latency += resp.LatencySec
		tokens += resp.Usage.TotalTokens()
		stats.TotalInputTokens += resp.Usage.InputTokens
		stats.TotalOutTokens += resp.Usage.OutputTokens
	}
	if stats.Successful > 0 {
		stats.AvgLatencySec = latency / float64(stats.Successful)
		stats.AvgTotalTokens = float64(tokens) / float64(stats.Successful)
	}
	return stats
}
