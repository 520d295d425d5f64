package diagnose

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Engine is the external reasoning capability. Stateless per call; a call
// either returns the raw response text within the caller's deadline or an
// error.
type Engine interface {
	Complete(ctx context.Context, system string, prompt string) (string, error)
}

// AnthropicEngine calls the Anthropic Messages API.
type AnthropicEngine struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// DefaultMaxTokens bounds the engine response size.
const DefaultMaxTokens = 8192

// NewAnthropicEngine creates an engine using the given API key and model.
func NewAnthropicEngine(apiKey, model string, maxTokens int64) *AnthropicEngine {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicEngine{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete sends one user prompt and returns the concatenated text blocks
// of the response.
func (e *AnthropicEngine) Complete(ctx context.Context, system string, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(prompt),
			},
		}},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages API: %w", err)
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	return text.String(), nil
}
