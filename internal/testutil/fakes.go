// Package testutil holds in-memory fakes of the external collaborators.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

// KeywordEmbedder embeds text as keyword counts over a fixed vocabulary.
type KeywordEmbedder struct {
	Vocabulary []string
}

var _ types.Embedder = KeywordEmbedder{}

func (e KeywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e KeywordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e KeywordEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(e.Vocabulary))
	lower := strings.ToLower(text)
	for i, word := range e.Vocabulary {
		vec[i] = float32(strings.Count(lower, strings.ToLower(word)))
	}
	return vec
}

// Generator answers requests through Respond and records every call.
type Generator struct {
	mu      sync.Mutex
	Respond func(req models.GenerationRequest, jsonMode bool) (string, error)
	Calls   []GeneratorCall
}

type GeneratorCall struct {
	Request  models.GenerationRequest
	JSONMode bool
}

var _ types.Generator = (*Generator)(nil)

func (g *Generator) Complete(ctx context.Context, req models.GenerationRequest) (models.Completion, error) {
	return g.call(req, false)
}

func (g *Generator) CompleteJSON(ctx context.Context, req models.GenerationRequest) (models.Completion, error) {
	return g.call(req, true)
}

func (g *Generator) call(req models.GenerationRequest, jsonMode bool) (models.Completion, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, GeneratorCall{Request: req, JSONMode: jsonMode})
	respond := g.Respond
	g.mu.Unlock()

	if respond == nil {
		return models.Completion{}, nil
	}
	text, err := respond(req, jsonMode)
	if err != nil {
		return models.Completion{}, err
	}
	return models.Completion{Text: text, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// StaticIndex returns fixed query results and records mutations in order.
type StaticIndex struct {
	mu      sync.Mutex
	Results []models.ScoredChunk
	Err     error
	Ops     []string
	Stored  []models.Chunk
	Queries []string
}

var _ types.VectorIndex = (*StaticIndex)(nil)

func (s *StaticIndex) Upsert(ctx context.Context, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, "upsert")
	s.Stored = append(s.Stored, chunks...)
	return s.Err
}

func (s *StaticIndex) DeleteByDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, "delete:"+docID)
	return s.Err
}

func (s *StaticIndex) Query(ctx context.Context, text string, k int, docID string, minScore float64) ([]models.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries = append(s.Queries, text)
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.ScoredChunk
	for _, r := range s.Results {
		if docID != "" && r.DocID != docID {
			continue
		}
		if r.Score < minScore {
			continue
		}
		out = append(out, r)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out, nil
}
