// Package llm implements the LLMClient port for Anthropic, OpenAI and Azure
// OpenAI chat completion APIs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// ErrEmptyResponse indicates the provider returned no text content.
var ErrEmptyResponse = errors.New("empty completion response")

const defaultMaxTokens = 4096

// Compile-time interface satisfaction check.
var _ driven.LLMClient = (*AnthropicClient)(nil)

// AnthropicClient implements driven.LLMClient with the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates a client for the given default model. Extra
// request options are appended after the API key, which lets tests point the
// SDK at an httptest server.
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicClient{
		client: anthropic.NewClient(all...),
		model:  model,
	}
}

// Complete sends a single-turn message. The system prompt is marked for
// ephemeral prompt caching since generation loops reuse it on every call.
func (c *AnthropicClient) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		}
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	latency := time.Since(start)

	usage := model.Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			slog.Debug("llm completion",
				"provider", "anthropic",
				"model", modelName,
				"size", len(block.Text),
				"tokens_in", usage.InputTokens,
				"tokens_out", usage.OutputTokens,
				"cache_read", message.Usage.CacheReadInputTokens,
			)
			return &model.Completion{Text: block.Text, Usage: usage, Latency: latency}, nil
		}
	}
	return nil, fmt.Errorf("anthropic messages: %w", ErrEmptyResponse)
}
