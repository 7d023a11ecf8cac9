package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogleAI  = "google_genai"
)

// NewModel builds the langchaingo model for the configured provider.
func NewModel(config ChatConfig) (llms.Model, error) {
	switch config.Provider {
	case ProviderOllama, "":
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama LLM: %w", err)
		}
		return model, nil

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai LLM: %w", err)
		}
		return model, nil

	case ProviderAnthropic:
		opts := []anthropic.Option{anthropic.WithModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, anthropic.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize anthropic LLM: %w", err)
		}
		return model, nil

	case ProviderGoogleAI:
		model, err := newGoogleAI(config.APIKey, googleai.WithDefaultModel(config.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize google genai LLM: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", config.Provider)
	}
}

// newGoogleAI builds a Gemini client. The Google AI endpoint is fixed, so
// there is no base URL option.
func newGoogleAI(apiKey string, opts ...googleai.Option) (*googleai.GoogleAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("an API key is required for %s", ProviderGoogleAI)
	}
	opts = append([]googleai.Option{googleai.WithAPIKey(apiKey)}, opts...)
	return googleai.New(context.Background(), opts...)
}
