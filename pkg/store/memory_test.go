package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/testutil"
	"github.com/xhad/dqcheck/pkg/store"
)

func newMemoryStore() *store.MemoryStore {
	return store.NewMemoryStore(testutil.KeywordEmbedder{
		Vocabulary: []string{"safety", "assessment", "objective", "glossary"},
	})
}

func chunk(docID string, index int, text string) models.Chunk {
	return models.Chunk{ID: models.ChunkID(docID, index), DocID: docID, Index: index, Text: text}
}

func TestMemoryStore_QueryScopesAndRanks(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore()

	err := s.Upsert(ctx, []models.Chunk{
		chunk("doc1", 0, "Learning objective: identify safety hazards."),
		chunk("doc1", 1, "The final assessment has ten questions."),
		chunk("doc1", 2, "A glossary of terms."),
		chunk("doc2", 0, "Safety briefing for the assessment."),
	})
	require.NoError(t, err)

	results, err := s.Query(ctx, "assessment", 10, "doc1", 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1_1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	results, err = s.Query(ctx, "safety objective", 1, "", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1_0", results[0].ID)
}

func TestMemoryStore_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{
		chunk("doc1", 0, "safety"),
		chunk("doc2", 0, "safety"),
	}))
	require.NoError(t, s.DeleteByDocument(ctx, "doc1"))
	assert.Equal(t, 1, s.Len())

	results, err := s.Query(ctx, "safety", 10, "doc1", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStore_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore()

	require.NoError(t, s.Upsert(ctx, []models.Chunk{chunk("doc1", 0, "safety")}))
	require.NoError(t, s.Upsert(ctx, []models.Chunk{chunk("doc1", 0, "glossary")}))
	assert.Equal(t, 1, s.Len())

	results, err := s.Query(ctx, "glossary", 10, "doc1", 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "glossary", results[0].Text)

	require.NoError(t, s.DeleteByDocument(ctx, "doc1"))
	assert.Equal(t, 0, s.Len())
}
