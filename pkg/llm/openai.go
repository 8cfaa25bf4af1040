package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-3.5-turbo"
	defaultAzureVersion  = "2023-12-01-preview"
)

// chatMessage チャットメッセージ
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is shared by OpenAI and Azure OpenAI. Azure ignores Model.
type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// apiErrorResponse エラーレスポンス
type apiErrorResponse struct {
	Error struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
		Type    string      `json:"type"`
	} `json:"error"`
}

// chatCompletionsClient talks to an OpenAI-compatible /chat/completions API.
// The two variants differ only in URL layout and auth header.
type chatCompletionsClient struct {
	name       string
	url        string
	model      string
	authHeader string
	authValue  string
	httpClient *http.Client
}

func newOpenAI(cfg Config) *chatCompletionsClient {
	base := cfg.OpenAIBaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = defaultOpenAIModel
	}
	return &chatCompletionsClient{
		name:       ProviderOpenAI,
		url:        strings.TrimSuffix(base, "/") + "/v1/chat/completions",
		model:      model,
		authHeader: "Authorization",
		authValue:  "Bearer " + cfg.OpenAIAPIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func newAzure(cfg Config) *chatCompletionsClient {
	version := cfg.AzureAPIVersion
	if version == "" {
		version = defaultAzureVersion
	}
	// リクエストURLをエンドポイントとデプロイ名から組み立てる
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(cfg.AzureEndpoint, "/"), cfg.AzureDeploymentName, version)
	return &chatCompletionsClient{
		name:       ProviderAzure,
		url:        url,
		authHeader: "api-key",
		authValue:  cfg.AzureAPIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *chatCompletionsClient) Name() string { return c.name }

func (c *chatCompletionsClient) Available() bool {
	return c.authValue != "" && c.authValue != "Bearer "
}

// Complete チャット補完を実行
func (c *chatCompletionsClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Available() {
		return "", ErrProviderNotConfigured
	}
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	var resp chatCompletionResponse
	if err := doJSON(ctx, c.httpClient, c.url, map[string]string{c.authHeader: c.authValue}, body, &resp); err != nil {
		return "", fmt.Errorf("%s API 呼び出しに失敗: %w", c.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s からの応答が空です", c.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// doJSON はHTTPリクエストの実行と基本的なレスポンス処理を行う共通関数です。
func doJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, requestData, responseData interface{}) error {
	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp apiErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errorResp.Error.Message}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.Unmarshal(body, responseData); err != nil {
		return fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}
	return nil
}

// APIError is a non-200 answer from a provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API エラー (status: %d): %s", e.StatusCode, e.Message)
}

// Unauthorized reports an invalid or expired key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// RateLimited reports an exhausted quota.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
