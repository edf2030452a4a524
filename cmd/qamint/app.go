package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/qamint/internal/adapter/driven/dataset"
	githubadapter "github.com/ericfisherdev/qamint/internal/adapter/driven/github"
	"github.com/ericfisherdev/qamint/internal/adapter/driven/llm"
	"github.com/ericfisherdev/qamint/internal/adapter/driven/repofs"
	sqliteadapter "github.com/ericfisherdev/qamint/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/qamint/internal/application"
	"github.com/ericfisherdev/qamint/internal/config"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// app holds configuration and lazily opened resources shared by commands.
type app struct {
	envFile string
	dbPath  string
	rpm     int

	cfg *config.Config
	db  *sqliteadapter.DB
}

// setup loads configuration and installs the logger. It runs before every
// command.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = a.dbPath
	}
	if a.rpm > 0 {
		cfg.RequestsPerMinute = a.rpm
	}
	a.cfg = cfg

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Debug("config loaded",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"db_path", cfg.DBPath,
		"requests_per_minute", cfg.RequestsPerMinute,
		"domain", cfg.Domain,
	)
	return nil
}

// database opens the SQLite database and applies migrations on first use.
func (a *app) database() (*sqliteadapter.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := sqliteadapter.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	slog.Debug("database opened", "path", a.cfg.DBPath)
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
	a.db = nil
}

// llmClient builds a completion client for model, or the configured model
// when model is empty.
func (a *app) llmClient(model string) (driven.LLMClient, error) {
	if model == "" {
		model = a.cfg.Model
	}
	client, err := llm.New(llm.ProviderConfig{
		Provider:   a.cfg.Provider,
		Model:      model,
		APIKey:     a.cfg.APIKey(),
		BaseURL:    a.cfg.LLMBaseURL(),
		APIVersion: a.cfg.AzureAPIVersion,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("llm client created", "provider", a.cfg.Provider, "model", model)
	return client, nil
}

func (a *app) githubClient() *githubadapter.Client {
	if a.cfg.GitHubToken == "" {
		slog.Warn("no github token configured, using unauthenticated requests with a low rate limit")
	}
	return githubadapter.NewClient(a.cfg.GitHubToken)
}

func (a *app) pacer(pairsPerMinute int) *application.Pacer {
	return application.NewPacer(a.cfg.RequestsPerMinute).WithPairBudget(pairsPerMinute)
}

func (a *app) prompts() application.Prompts {
	return application.NewPrompts(a.cfg.Domain)
}

func (a *app) codeService(pairsPerMinute, maxSourceBytes int) (*application.CodeService, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	client, err := a.llmClient("")
	if err != nil {
		return nil, err
	}
	return application.NewCodeService(
		repofs.NewScanner(maxSourceBytes),
		client,
		sqliteadapter.NewRunRepo(db),
		sqliteadapter.NewQuestionRepo(db),
		dataset.NewWriter(),
		a.pacer(pairsPerMinute),
		a.prompts(),
		application.NewFileScorer(a.cfg.PriorityDirs),
		a.cfg.Model,
	), nil
}

// issueService wires the issue pipeline. withLLM is false for mining, which
// never calls a model.
func (a *app) issueService(withLLM bool, pairsPerMinute int) (*application.IssueService, error) {
	db, err := a.database()
	if err != nil {
		return nil, err
	}
	var client driven.LLMClient
	if withLLM {
		if client, err = a.llmClient(""); err != nil {
			return nil, err
		}
	}
	return application.NewIssueService(
		a.githubClient(),
		sqliteadapter.NewIssueRepo(db),
		sqliteadapter.NewRunRepo(db),
		sqliteadapter.NewQuestionRepo(db),
		client,
		dataset.NewWriter(),
		a.pacer(pairsPerMinute),
		a.prompts(),
		a.cfg.Model,
		a.cfg.Maintainers,
	), nil
}

// evalService builds one target per model. An empty fine-tuned model is an
// error; an empty baseline skips the baseline.
func (a *app) evalService(fineTuned, baseline string) (*application.EvalService, error) {
	if fineTuned == "" {
		return nil, errors.New("--model is required")
	}

	p := a.prompts()
	tuned, err := a.llmClient(fineTuned)
	if err != nil {
		return nil, err
	}
	targets := []application.EvalTarget{
		{Name: "fine_tuned", Client: tuned, Model: fineTuned, SystemPrompt: p.ExpertSystem()},
	}
	if baseline != "" {
		base, err := a.llmClient(baseline)
		if err != nil {
			return nil, err
		}
		targets = append(targets, application.EvalTarget{Name: "baseline", Client: base, Model: baseline, SystemPrompt: p.BaselineSystem()})
	}
	return application.NewEvalService(targets, dataset.NewWriter(), a.pacer(0)), nil
}
