package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/dqcheck/internal/types"
)

type EmbedderConfig struct {
	Provider  string // ollama, openai or google_genai
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
}

// Embedder turns chunk text into vectors.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = applyEmbedderDefaults(config)

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(config.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client = llm
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client = llm
	case ProviderGoogleAI:
		llm, err := newGoogleAI(config.APIKey, googleai.WithDefaultEmbeddingModel(config.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", config.Provider)
	}

	return NewEmbedderWithClient(config, client)
}

// NewEmbedderWithClient wraps an existing embedding client.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	config = applyEmbedderDefaults(config)

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &Embedder{config: config, embedder: emb}, nil
}

var defaultEmbeddingModels = map[string]string{
	ProviderOllama:   "nomic-embed-text",
	ProviderOpenAI:   "text-embedding-3-small",
	ProviderGoogleAI: "gemini-embedding-001",
}

func applyEmbedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		config.Model = defaultEmbeddingModels[config.Provider]
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	return config
}

func (e *Embedder) Model() string {
	return e.config.Model
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}
