package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/evoo/evoo/pkg/evoo/errs"
)

// LangchainProvider backs Complete with a langchaingo llms.Model. It
// targets self-hosted OpenAI-compatible endpoints (a local model
// server) that the hand-rolled OpenAIProvider isn't pointed at by
// default, giving the Client a drop-in third backend (§6
// LLM_PROVIDER=langchain) without touching the retry/breaker wrapper.
type LangchainProvider struct {
	model llms.Model
}

// NewLangchainProvider builds a provider around langchaingo's OpenAI-
// compatible client, pointed at baseURL.
func NewLangchainProvider(apiKey, baseURL, model string) (*LangchainProvider, error) {
	if baseURL == "" {
		return nil, &errs.OperationError{Operation: "construct langchain provider", Component: "llm.langchain", Cause: fmt.Errorf("base URL required")}
	}
	m, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, &errs.OperationError{Operation: "construct langchain provider", Component: "llm.langchain", Cause: err}
	}
	return &LangchainProvider{model: m}, nil
}

// Complete issues one GenerateContent call. A single attempt; retry and
// timeout policy live in Client.
func (p *LangchainProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt),
	}
	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("http_error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("http_error: empty choices in response")
	}
	return resp.Choices[0].Content, nil
}
