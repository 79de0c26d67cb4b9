package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var _ ModelCaller = (*HTTPCaller)(nil)

// HTTPCaller talks to any OpenAI-compatible chat completions endpoint over
// plain HTTP. Used for self-hosted and aggregator providers (Z.AI,
// OpenRouter, Ollama).
type HTTPCaller struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type httpMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpChatRequest struct {
	Model       string        `json:"model"`
	Messages    []httpMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type httpChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewHTTPCaller creates a caller for an OpenAI-compatible endpoint.
func NewHTTPCaller(model, apiKey, baseURL string) *HTTPCaller {
	return &HTTPCaller{
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *HTTPCaller) Name() string { return c.model }

// rateLimitRetries bounds retries on 429 responses before giving up.
const rateLimitRetries = 2

func (c *HTTPCaller) Call(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingKey
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("no base URL configured for model %s", c.model)
	}

	body, err := json.Marshal(httpChatRequest{
		Model:       c.model,
		Messages:    []httpMessage{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var raw []byte
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("request failed: %w", err)
		}
		raw, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < rateLimitRetries {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
		}
		break
	}

	var parsed httpChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
