package judge

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

var _ ModelCaller = (*GeminiCaller)(nil)

// GeminiCaller talks to the Google Gemini API. The client is created lazily
// so a missing key surfaces as a per-call synthetic vote instead of a
// construction failure.
type GeminiCaller struct {
	model  string
	apiKey string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiCaller creates a caller for the given model.
func NewGeminiCaller(model, apiKey string) *GeminiCaller {
	return &GeminiCaller{model: model, apiKey: apiKey}
}

func (c *GeminiCaller) Name() string { return c.model }

func (c *GeminiCaller) Call(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}

	c.once.Do(func() {
		c.client, c.initErr = genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	})
	if c.initErr != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", c.initErr)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return text, nil
}
