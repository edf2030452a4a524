// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/subosito/gotenv"
)

// Supported LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
)

// Default model per provider. For Azure this is the deployment name.
var defaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-5-20250929",
	ProviderOpenAI:    "gpt-4o",
	ProviderAzure:     "gpt-4o",
}

const defaultAzureAPIVersion = "2024-10-21"

// DefaultListenAddr is where `qamint serve` listens unless configured.
const DefaultListenAddr = "127.0.0.1:8080"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AzureEndpoint   string
	AzureAPIVersion string

	GitHubToken string
	DBPath      string
	ListenAddr  string

	RequestsPerMinute int
	LogLevel          slog.Level
	Maintainers       []string
	Domain            string

	// PriorityDirs overrides the directory scores used to rank source files.
	// Nil keeps the built-in table.
	PriorityDirs map[string]float64
}

// APIKey returns the key for the selected provider. Azure uses the OpenAI key.
func (c *Config) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// LLMBaseURL returns the endpoint for the selected provider, if any.
func (c *Config) LLMBaseURL() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIBaseURL
	case ProviderAzure:
		return c.AzureEndpoint
	default:
		return ""
	}
}

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Optional variables with defaults: QAMINT_LLM_PROVIDER (anthropic), QAMINT_LLM_MODEL
// (provider default), QAMINT_DB_PATH (qamint.db), QAMINT_REQUESTS_PER_MINUTE (6),
// QAMINT_LOG_LEVEL (info), QAMINT_DOMAIN (the project). API keys and the GitHub token
// fall back to their conventional unprefixed names. Keys are not required here; the
// commands that call a provider check for them.
func Load() (*Config, error) {
	provider := strings.ToLower(envOr("QAMINT_LLM_PROVIDER", ProviderAnthropic))
	if _, ok := defaultModels[provider]; !ok {
		return nil, fmt.Errorf("QAMINT_LLM_PROVIDER has unsupported value %q (want anthropic, openai or azure)", provider)
	}

	model := envOr("QAMINT_LLM_MODEL", defaultModels[provider])

	rpm := 6
	if v, ok := os.LookupEnv("QAMINT_REQUESTS_PER_MINUTE"); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("QAMINT_REQUESTS_PER_MINUTE has invalid value %q: %w", v, err)
		}
		if parsed < 1 {
			return nil, fmt.Errorf("QAMINT_REQUESTS_PER_MINUTE must be at least 1, got %d", parsed)
		}
		rpm = parsed
	}

	level := slog.LevelInfo
	if v, ok := os.LookupEnv("QAMINT_LOG_LEVEL"); ok {
		if err := level.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
			return nil, fmt.Errorf("QAMINT_LOG_LEVEL has invalid value %q: %w", v, err)
		}
	}

	priorityDirs, err := parsePriorityDirs(os.Getenv("QAMINT_PRIORITY_DIRS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Provider:          provider,
		Model:             model,
		AnthropicAPIKey:   firstEnv("QAMINT_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
		OpenAIAPIKey:      firstEnv("QAMINT_OPENAI_API_KEY", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("QAMINT_OPENAI_BASE_URL"),
		AzureEndpoint:     firstEnv("QAMINT_AZURE_ENDPOINT", "AZURE_OPENAI_ENDPOINT"),
		AzureAPIVersion:   envOr("QAMINT_AZURE_API_VERSION", defaultAzureAPIVersion),
		GitHubToken:       firstEnv("QAMINT_GITHUB_TOKEN", "GITHUB_TOKEN"),
		DBPath:            envOr("QAMINT_DB_PATH", "qamint.db"),
		ListenAddr:        envOr("QAMINT_LISTEN_ADDR", DefaultListenAddr),
		RequestsPerMinute: rpm,
		LogLevel:          level,
		Maintainers:       splitList(os.Getenv("QAMINT_MAINTAINERS")),
		Domain:            envOr("QAMINT_DOMAIN", "the project"),
		PriorityDirs:      priorityDirs,
	}

	if cfg.Provider == ProviderAzure && cfg.AzureEndpoint == "" {
		return nil, errors.New("QAMINT_AZURE_ENDPOINT is required when QAMINT_LLM_PROVIDER is azure")
	}

	return cfg, nil
}

// envOr returns the trimmed value of key, or fallback when unset or blank.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-blank value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parsePriorityDirs parses "dir=score" pairs separated by commas.
func parsePriorityDirs(v string) (map[string]float64, error) {
	items := splitList(v)
	if len(items) == 0 {
		return nil, nil
	}

	dirs := make(map[string]float64, len(items))
	for _, item := range items {
		name, raw, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("QAMINT_PRIORITY_DIRS entry %q is not dir=score", item)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("QAMINT_PRIORITY_DIRS entry %q has invalid score: %w", item, err)
		}
		dirs[name] = score
	}
	return dirs, nil
}
