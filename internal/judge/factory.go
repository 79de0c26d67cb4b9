package judge

import (
	"fmt"
	"os"

	"mendgate/internal/config"
)

// NewCallerFromConfig builds the provider-specific caller for one configured
// judge model. A missing API key is not an error here; it surfaces as a
// synthetic missing_key vote when the model is queried.
func NewCallerFromConfig(m config.JudgeModel) (ModelCaller, error) {
	apiKey := ""
	if m.APIKeyEnv != "" {
		apiKey = os.Getenv(m.APIKeyEnv)
	}

	switch m.Provider {
	case "openai":
		return NewOpenAICaller(m.Name, apiKey, m.BaseURL), nil
	case "anthropic":
		return NewAnthropicCaller(m.Name, apiKey), nil
	case "gemini":
		return NewGeminiCaller(m.Name, apiKey), nil
	case "zai", "openrouter", "http":
		return NewHTTPCaller(m.Name, apiKey, m.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown judge provider %q for model %s", m.Provider, m.Name)
	}
}

// CallersFromConfig builds callers for every configured model in
// weight-descending order.
func CallersFromConfig(cfg *config.Config) ([]ModelCaller, error) {
	models := cfg.SortedModels()
	callers := make([]ModelCaller, 0, len(models))
	for _, m := range models {
		caller, err := NewCallerFromConfig(m)
		if err != nil {
			return nil, err
		}
		callers = append(callers, caller)
	}
	return callers, nil
}
