// Package llm wraps the chat completion APIs the assistant can talk to.
// A Provider is chosen once at startup; callers never branch on vendor.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrProviderNotConfigured is returned by every call on the unavailable provider.
var ErrProviderNotConfigured = errors.New("AI provider not configured: set OPENAI_API_KEY, ANTHROPIC_API_KEY or the AZURE_OPENAI_* variables")

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// CompletionRequest is a single-turn completion with an optional system prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the completion capability the assistant depends on.
type Provider interface {
	Name() string
	Available() bool
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config 各プロバイダーの接続設定
type Config struct {
	Provider string // explicit choice; empty selects by available keys

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	AzureEndpoint       string
	AzureAPIKey         string
	AzureAPIVersion     string
	AzureDeploymentName string

	Timeout time.Duration
}

// NewProvider selects a provider once. An explicit Provider wins; otherwise
// an OpenAI key with the sk- prefix, then an Anthropic key with the sk-ant-
// prefix, then a complete Azure configuration. With nothing usable the
// unavailable provider is returned.
func NewProvider(cfg Config, logger zerolog.Logger) Provider {
	logger = logger.With().Str("component", "llm").Logger()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var p Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		p = newOpenAI(cfg)
	case ProviderAnthropic:
		p = newAnthropic(cfg)
	case ProviderAzure:
		p = newAzure(cfg)
	case ProviderNone:
		p = Unavailable()
	case "":
		switch {
		case strings.HasPrefix(cfg.OpenAIAPIKey, "sk-"):
			p = newOpenAI(cfg)
		case strings.HasPrefix(cfg.AnthropicAPIKey, "sk-ant-"):
			p = newAnthropic(cfg)
		case cfg.AzureEndpoint != "" && cfg.AzureAPIKey != "":
			p = newAzure(cfg)
		default:
			p = Unavailable()
		}
	default:
		logger.Warn().Str("provider", cfg.Provider).Msg("unknown AI provider, assistant will run without one")
		p = Unavailable()
	}

	if p.Available() {
		logger.Info().Str("provider", p.Name()).Msg("AI provider initialized")
	} else {
		logger.Warn().Msg("no AI provider configured, falling back to keyword intents and FAQ answers")
	}
	return p
}

type unavailable struct{}

// Unavailable returns the provider used when nothing is configured.
func Unavailable() Provider { return unavailable{} }

func (unavailable) Name() string    { return ProviderNone }
func (unavailable) Available() bool { return false }
func (unavailable) Complete(context.Context, CompletionRequest) (string, error) {
	return "", ErrProviderNotConfigured
}
