package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/pkg/llm"
)

type fakeEmbeddingClient struct {
	calls int
}

func (c *fakeEmbeddingClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", emb.Model())

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "mystery"})
	assert.Error(t, err)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: llm.ProviderGoogleAI})
	assert.ErrorContains(t, err, "API key is required")
}

func TestEmbedderDefaultModelPerProvider(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"", "nomic-embed-text"},
		{llm.ProviderOpenAI, "text-embedding-3-small"},
		{llm.ProviderGoogleAI, "gemini-embedding-001"},
	}
	for _, tt := range tests {
		emb, err := llm.NewEmbedderWithClient(llm.EmbedderConfig{Provider: tt.provider}, &fakeEmbeddingClient{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, emb.Model())
	}
}

func TestEmbedder_Batches(t *testing.T) {
	client := &fakeEmbeddingClient{}
	emb, err := llm.NewEmbedderWithClient(llm.EmbedderConfig{BatchSize: 2}, client)
	require.NoError(t, err)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[2][0])
	assert.Equal(t, 2, client.calls)

	query, err := emb.EmbedQuery(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Len(t, query, 3)

	empty, err := emb.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
