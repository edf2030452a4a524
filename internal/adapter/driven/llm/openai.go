package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/qamint/internal/domain/model"
	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

const externalHTTPTimeout = 120 * time.Second

// Compile-time interface satisfaction check.
var _ driven.LLMClient = (*OpenAIClient)(nil)

// OpenAIClient implements driven.LLMClient against the OpenAI chat completions
// wire format. The same client serves Azure OpenAI deployments, which differ
// only in URL layout and auth header.
type OpenAIClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
	provider   string
	setAuth    func(*http.Request)
}

// NewOpenAIClient creates a client for OpenAI or any compatible server rooted
// at baseURL. A nil httpClient uses a client with a generous timeout.
func NewOpenAIClient(httpClient *http.Client, baseURL, apiKey, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAIClient{
		httpClient: orDefaultHTTPClient(httpClient),
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:      model,
		provider:   "openai",
		setAuth: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		},
	}
}

// NewAzureClient creates a client for an Azure OpenAI deployment. The
// deployment name doubles as the model reported in logs.
func NewAzureClient(httpClient *http.Client, endpoint, apiKey, deployment, apiVersion string) *OpenAIClient {
	u := strings.TrimRight(endpoint, "/") + "/openai/deployments/" + url.PathEscape(deployment) +
		"/chat/completions?api-version=" + url.QueryEscape(apiVersion)
	return &OpenAIClient{
		httpClient: orDefaultHTTPClient(httpClient),
		endpoint:   u,
		model:      deployment,
		provider:   "azure",
		setAuth: func(r *http.Request) {
			r.Header.Set("api-key", apiKey)
		},
	}
}

func orDefaultHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: externalHTTPTimeout}
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete posts a chat completion request with an optional system message
// followed by the user prompt.
func (c *OpenAIClient) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	body := chatRequest{
		Model:       modelName,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
	if c.provider == "azure" {
		body.Model = "" // The deployment in the URL selects the model.
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: string(model.RoleSystem), Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: string(model.RoleUser), Content: req.UserPrompt})

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", c.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", c.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", c.provider, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s chat completion: status %d", c.provider, resp.StatusCode)
		}
		return nil, fmt.Errorf("parsing %s response: %w", c.provider, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s chat completion: status %d: %s", c.provider, resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s chat completion: status %d", c.provider, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%s chat completion: %w", c.provider, ErrEmptyResponse)
	}

	var usage model.Usage
	if parsed.Usage != nil {
		usage.InputTokens = parsed.Usage.PromptTokens
		usage.OutputTokens = parsed.Usage.CompletionTokens
	}

	text := parsed.Choices[0].Message.Content
	slog.Debug("llm completion",
		"provider", c.provider,
		"model", modelName,
		"size", len(text),
		"tokens_in", usage.InputTokens,
		"tokens_out", usage.OutputTokens,
	)

	return &model.Completion{Text: text, Usage: usage, Latency: latency}, nil
}
