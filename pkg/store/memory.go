package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

// MemoryStore is an in-process chunk index used when no database is
// configured and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder types.Embedder
	chunks   map[string]storedChunk // chunk id -> chunk
	docs     map[string][]string    // doc id -> chunk ids
}

type storedChunk struct {
	chunk     models.Chunk
	embedding []float32
}

var _ types.VectorIndex = (*MemoryStore)(nil)

func NewMemoryStore(embedder types.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		chunks:   make(map[string]storedChunk),
		docs:     make(map[string][]string),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, chunk := range chunks {
		if _, exists := s.chunks[chunk.ID]; !exists {
			s.docs[chunk.DocID] = append(s.docs[chunk.DocID], chunk.ID)
		}
		s.chunks[chunk.ID] = storedChunk{chunk: chunk, embedding: embeddings[i]}
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.docs[docID] {
		delete(s.chunks, id)
	}
	delete(s.docs, docID)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, text string, k int, docID string, minScore float64) ([]models.ScoredChunk, error) {
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.ScoredChunk
	for _, stored := range s.chunks {
		if docID != "" && stored.chunk.DocID != docID {
			continue
		}
		score := cosineSimilarity(queryEmbedding, stored.embedding)
		if score < minScore {
			continue
		}
		results = append(results, models.ScoredChunk{Chunk: stored.chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
