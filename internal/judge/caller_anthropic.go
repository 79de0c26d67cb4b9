package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var _ ModelCaller = (*AnthropicCaller)(nil)

// AnthropicCaller talks to the Anthropic messages API.
type AnthropicCaller struct {
	client anthropic.Client
	model  string
	apiKey string
}

// NewAnthropicCaller creates a caller for the given model.
func NewAnthropicCaller(model, apiKey string) *AnthropicCaller {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicCaller{
		client: anthropic.NewClient(opts...),
		model:  model,
		apiKey: apiKey,
	}
}

func (c *AnthropicCaller) Name() string { return c.model }

func (c *AnthropicCaller) Call(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text.String(), nil
}
