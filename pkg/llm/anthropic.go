package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-haiku-20240307"
	anthropicVersion        = "2023-06-01"
	defaultAnthropicSystem  = "You are a helpful assistant."
)

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// anthropicClient calls the Messages API.
type anthropicClient struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

func newAnthropic(cfg Config) *anthropicClient {
	base := cfg.AnthropicBaseURL
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	model := cfg.AnthropicModel
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicClient{
		url:        strings.TrimSuffix(base, "/") + "/v1/messages",
		apiKey:     cfg.AnthropicAPIKey,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *anthropicClient) Name() string    { return ProviderAnthropic }
func (c *anthropicClient) Available() bool { return c.apiKey != "" }

func (c *anthropicClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Available() {
		return "", ErrProviderNotConfigured
	}
	system := req.System
	if system == "" {
		system = defaultAnthropicSystem
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	body := anthropicRequest{
		Model:       c.model,
		System:      system,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
	var resp anthropicResponse
	if err := doJSON(ctx, c.httpClient, c.url, headers, body, &resp); err != nil {
		return "", fmt.Errorf("anthropic API 呼び出しに失敗: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic からの応答が空です")
}
