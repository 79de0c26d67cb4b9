package judge

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var _ ModelCaller = (*OpenAICaller)(nil)

// OpenAICaller talks to the OpenAI chat completions API, or any compatible
// endpoint when a base URL is set.
type OpenAICaller struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAICaller creates a caller for the given model. An empty baseURL uses
// the public API.
func NewOpenAICaller(model, apiKey, baseURL string) *OpenAICaller {
	var client *openai.Client
	if baseURL != "" {
		cfg := openai.DefaultConfig(apiKey)
		cfg.BaseURL = baseURL
		client = openai.NewClientWithConfig(cfg)
	} else {
		client = openai.NewClient(apiKey)
	}
	return &OpenAICaller{client: client, model: model, apiKey: apiKey}
}

func (c *OpenAICaller) Name() string { return c.model }

func (c *OpenAICaller) Call(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
