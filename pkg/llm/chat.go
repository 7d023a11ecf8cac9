package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"golang.org/x/time/rate"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider          string // ollama, openai, anthropic or google_genai
	Model             string
	Temperature       float64
	MaxTokens         int
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64 // 0 disables rate limiting
	Logger            *slog.Logger
}

// ChatEngine generates completions through a langchaingo model.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
}

var _ types.Generator = (*ChatEngine)(nil)

// NewWithConfig creates a new ChatEngine backed by the configured provider.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}

	model, err := NewModel(config)
	if err != nil {
		return nil, err
	}
	return newEngine(config, model), nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}
	return newEngine(config, model), nil
}

var defaultChatModels = map[string]string{
	ProviderOllama:    "llama3.1",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-latest",
	ProviderGoogleAI:  "gemini-2.5-flash",
}

func applyChatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		config.Model = defaultChatModels[config.Provider]
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.RequestsPerSecond < 0 {
		return config, fmt.Errorf("requests per second cannot be negative")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config, nil
}

func newEngine(config ChatConfig, model llms.Model) *ChatEngine {
	ce := &ChatEngine{config: config, llm: model}
	if config.RequestsPerSecond > 0 {
		ce.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return ce
}

// Model returns the configured model name.
func (ce *ChatEngine) Model() string {
	return ce.config.Model
}

// Complete generates a plain text completion.
func (ce *ChatEngine) Complete(ctx context.Context, req models.GenerationRequest) (models.Completion, error) {
	return ce.generate(ctx, req)
}

// CompleteJSON generates a completion with the provider's JSON output mode enabled.
func (ce *ChatEngine) CompleteJSON(ctx context.Context, req models.GenerationRequest) (models.Completion, error) {
	return ce.generate(ctx, req, llms.WithJSONMode())
}

func (ce *ChatEngine) generate(ctx context.Context, req models.GenerationRequest, extra ...llms.CallOption) (models.Completion, error) {
	if ce.limiter != nil {
		if err := ce.limiter.Wait(ctx); err != nil {
			return models.Completion{}, fmt.Errorf("rate limiter error: %w", err)
		}
	}

	var content []llms.MessageContent
	if req.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	options := []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
	options = append(options, extra...)

	response, err := ce.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		return models.Completion{}, fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return models.Completion{}, fmt.Errorf("chat error: empty response from %s", ce.config.Provider)
	}

	choice := response.Choices[0]
	completion := models.Completion{Text: strings.TrimSpace(choice.Content)}
	completion.PromptTokens, completion.CompletionTokens = usage(choice.GenerationInfo)

	ce.config.Logger.Debug("Completion generated",
		slog.String("model", ce.config.Model),
		slog.Int("prompt_tokens", completion.PromptTokens),
		slog.Int("completion_tokens", completion.CompletionTokens))

	return completion, nil
}

// usage reads token counts from provider generation info. Providers disagree
// on key names and numeric types.
func usage(info map[string]any) (prompt, completion int) {
	prompt = firstInt(info, "PromptTokens", "InputTokens", "prompt_eval_count")
	completion = firstInt(info, "CompletionTokens", "OutputTokens", "eval_count")
	return prompt, completion
}

func firstInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
