package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/evoo/evoo/pkg/evoo/errs"
)

// OpenAIProvider speaks the OpenAI-compatible chat-completions wire
// format directly over HTTP, so any OpenAI-compatible endpoint
// (including local model servers) can be used by pointing BaseURL at
// it (§6 OPENAI_BASE_URL).
type OpenAIProvider struct {
	APIKey  string
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewOpenAIProvider builds a provider; baseURL defaults to the public
// OpenAI endpoint when empty.
func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &errs.OperationError{Operation: "construct openai provider", Component: "llm.openai", Cause: fmt.Errorf("OPENAI_API_KEY not set")}
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
		HTTP:    &http.Client{Timeout: 0}, // per-call deadline comes from ctx
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete issues one chat-completion request. A single attempt; retry
// and timeout policy live in Client.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatCompletionRequest{
		Model:       p.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &errs.OperationError{Operation: "encode chat completion request", Component: "llm.openai", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &errs.OperationError{Operation: "build chat completion request", Component: "llm.openai", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.HTTP.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http_error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("http_error: reading response: %w", err)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("http_error: decoding response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if parsed.Error != nil {
			return "", fmt.Errorf("http_error: status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("http_error: status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("http_error: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
