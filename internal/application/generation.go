package application

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Completion parameters for dataset generation.
const (
	generationTemperature = 0.7
	retryTemperature      = 0.3
	codeMaxTokens         = 4000
	issueMaxTokens        = 2000
	retryMaxTokens        = 1500
)

// Estimated cost in dollars per thousand tokens.
const (
	inputCostPer1K  = 0.005
	outputCostPer1K = 0.015
)

// estimateCost prices usage at the configured per-thousand-token rates.
func estimateCost(u model.Usage) float64 {
	return float64(u.InputTokens)/1000*inputCostPer1K + float64(u.OutputTokens)/1000*outputCostPer1K
}

// questionHash fingerprints a question. Case and whitespace differences do
// not produce distinct hashes.
func questionHash(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := md5.Sum([]byte(normalized)) //nolint:gosec // fingerprint only
	return hex.EncodeToString(sum[:])
}

// dedupFilter drops questions already generated in this run or recorded by
// an earlier one. New hashes are held back until commit, so a dataset that
// never reaches disk does not mark its questions as seen.
type dedupFilter struct {
	store   driven.QuestionStore
	runID   int64
	seen    map[string]bool
	pending []string
}

func newDedupFilter(store driven.QuestionStore, runID int64) *dedupFilter {
	return &dedupFilter{store: store, runID: runID, seen: make(map[string]bool)}
}

// keep reports whether question is new. Store lookup failures are logged and
// fall back to the in-run set.
func (d *dedupFilter) keep(ctx context.Context, question string) bool {
	hash := questionHash(question)
	if d.seen[hash] {
		return false
	}
	d.seen[hash] = true

	if d.store != nil {
		seen, err := d.store.Seen(ctx, hash)
		if err != nil {
			slog.Warn("question store lookup failed", "error", err)
		} else if seen {
			return false
		}
	}
	d.pending = append(d.pending, hash)
	return true
}

// commit records every hash kept since the last commit. Call it only after
// the examples holding those questions have been written.
func (d *dedupFilter) commit(ctx context.Context) {
	if d.store == nil {
		d.pending = nil
		return
	}

	ctx = context.WithoutCancel(ctx)
	failed := 0
	for _, hash := range d.pending {
		if err := d.store.Record(ctx, hash, d.runID); err != nil {
			failed++
			slog.Warn("failed to record question hash", "error", err)
		}
	}
	slog.Debug("question hashes recorded", "run_id", d.runID, "hashes", len(d.pending)-failed, "failed", failed)
	d.pending = nil
}

// finishRun closes the run record. It runs detached from ctx so an
// interrupted run is still closed.
func finishRun(ctx context.Context, runs driven.RunStore, run model.Run) {
	run.FinishedAt = time.Now()
	if err := runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("failed to finish run", "run_id", run.ID, "error", err)
	}
}

// markGenerated updates the allocation ledger for an item, logging failures.
func markGenerated(ctx context.Context, runs driven.RunStore, runID int64, itemKey string, generated int) {
	if err := runs.MarkGenerated(context.WithoutCancel(ctx), runID, itemKey, generated); err != nil {
		slog.Warn("failed to update allocation ledger", "run_id", runID, "item", itemKey, "error", err)
	}
}

// chatExample wraps a pair in chat format. A non-empty system message is
// placed first.
func chatExample(system string, pair model.QAPair, meta *model.ExampleMetadata) model.TrainingExample {
	messages := make([]model.ChatMessage, 0, 3)
	if system != "" {
		messages = append(messages, model.ChatMessage{Role: model.RoleSystem, Content: system})
	}
	messages = append(messages,
		model.ChatMessage{Role: model.RoleUser, Content: pair.Question},
		model.ChatMessage{Role: model.RoleAssistant, Content: pair.Answer},
	)
	return model.TrainingExample{Messages: messages, Metadata: meta}
}

// interrupted wraps a context error for a generation loop that stopped early.
func interrupted(err error) error {
	return fmt.Errorf("generation interrupted: %w", err)
}
