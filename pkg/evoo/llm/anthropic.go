package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/evoo/evoo/pkg/evoo/errs"
)

// AnthropicProvider translates the Client's system+user prompt contract
// to Anthropic's Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider builds a provider for the given model name (e.g.
// "claude-3-5-sonnet-latest").
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, &errs.OperationError{Operation: "construct anthropic provider", Component: "llm.anthropic", Cause: fmt.Errorf("ANTHROPIC_API_KEY not set")}
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}, nil
}

// Complete issues one Messages.New call. json_mode is approximated by
// instructing the model via the system prompt, since the Messages API
// has no dedicated response-format field; parse_json (§4.5) tolerates
// the resulting prose-wrapped JSON either way.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	system := req.SystemPrompt
	if req.JSONMode {
		system += "\n\nRespond with a single valid JSON object and nothing else."
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 800
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("http_error: %w", err)
	}

	var out string
	for _, block := range message.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
