package llm

import (
	"fmt"

	"github.com/ericfisherdev/qamint/internal/domain/port/driven"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
)

// ProviderConfig selects and configures a completion provider.
type ProviderConfig struct {
	Provider   string
	Model      string // Deployment name for Azure.
	APIKey     string
	BaseURL    string // OpenAI-compatible root URL or Azure resource endpoint.
	APIVersion string // Azure only.
}

// New builds the LLMClient for cfg.Provider.
func New(cfg ProviderConfig) (driven.LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("creating %s client: missing API key", cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case ProviderOpenAI:
		return NewOpenAIClient(nil, cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case ProviderAzure:
		if cfg.BaseURL == "" || cfg.APIVersion == "" {
			return nil, fmt.Errorf("creating azure client: endpoint and api version are required")
		}
		return NewAzureClient(nil, cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.APIVersion), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
