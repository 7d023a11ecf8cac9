package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/llm"
)

type fakeModel struct {
	response *llms.ContentResponse
	err      error

	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}
	return m.response, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func reply(text string, info map[string]any) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text, GenerationInfo: info}}}
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ChatConfig
		wantErr bool
	}{
		{"defaults", llm.ChatConfig{}, false},
		{"ollama with url", llm.ChatConfig{Model: "llama3.1", BaseURL: "http://localhost:1234"}, false},
		{"temperature too high", llm.ChatConfig{Temperature: 1.5}, true},
		{"negative max tokens", llm.ChatConfig{MaxTokens: -1}, true},
		{"unknown provider", llm.ChatConfig{Provider: "mystery"}, true},
		{"google genai without key", llm.ChatConfig{Provider: llm.ProviderGoogleAI}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestChatEngine_CompleteJSON(t *testing.T) {
	model := &fakeModel{response: reply(`  {"status":"pass"} `, map[string]any{
		"PromptTokens":     120,
		"CompletionTokens": float64(30),
	})}
	engine, err := llm.NewWithModel(llm.ChatConfig{Model: "test", MaxTokens: 512}, model)
	require.NoError(t, err)

	completion, err := engine.CompleteJSON(context.Background(), models.GenerationRequest{
		System: "You are an analyst.",
		Prompt: "Evaluate.",
	})
	require.NoError(t, err)

	assert.Equal(t, `{"status":"pass"}`, completion.Text)
	assert.Equal(t, 120, completion.PromptTokens)
	assert.Equal(t, 30, completion.CompletionTokens)
	assert.Equal(t, 150, completion.TotalTokens())

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.True(t, model.options.JSONMode)
	assert.Equal(t, 512, model.options.MaxTokens)
}

func TestChatEngine_Complete(t *testing.T) {
	model := &fakeModel{response: reply("Summary.", map[string]any{
		"InputTokens":  int64(7),
		"OutputTokens": int64(3),
	})}
	engine, err := llm.NewWithModel(llm.ChatConfig{}, model)
	require.NoError(t, err)

	completion, err := engine.Complete(context.Background(), models.GenerationRequest{Prompt: "Summarize."})
	require.NoError(t, err)

	assert.Equal(t, "Summary.", completion.Text)
	assert.Equal(t, 7, completion.PromptTokens)
	assert.Equal(t, 3, completion.CompletionTokens)
	assert.Len(t, model.messages, 1)
	assert.False(t, model.options.JSONMode)
}

func TestChatEngine_Errors(t *testing.T) {
	engine, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: errors.New("connection refused")})
	require.NoError(t, err)
	_, err = engine.Complete(context.Background(), models.GenerationRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "connection refused")

	engine, err = llm.NewWithModel(llm.ChatConfig{}, &fakeModel{response: &llms.ContentResponse{}})
	require.NoError(t, err)
	_, err = engine.Complete(context.Background(), models.GenerationRequest{Prompt: "x"})
	assert.ErrorContains(t, err, "empty response")

	_, err = llm.NewWithModel(llm.ChatConfig{}, nil)
	assert.Error(t, err)
}

func TestChatEngine_RateLimitHonorsContext(t *testing.T) {
	engine, err := llm.NewWithModel(llm.ChatConfig{RequestsPerSecond: 0.001}, &fakeModel{response: reply("ok", nil)})
	require.NoError(t, err)

	_, err = engine.Complete(context.Background(), models.GenerationRequest{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Complete(ctx, models.GenerationRequest{Prompt: "second"})
	assert.ErrorContains(t, err, "rate limiter")
}

func TestNewWithModel_DefaultModelPerProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"", "llama3.1"},
		{llm.ProviderAnthropic, "claude-3-5-sonnet-latest"},
		{llm.ProviderGoogleAI, "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		engine, err := llm.NewWithModel(llm.ChatConfig{Provider: tt.provider}, &fakeModel{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, engine.Model())
	}
}
