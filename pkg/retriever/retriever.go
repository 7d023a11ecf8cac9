// Package retriever assembles the evidence context for a checklist query
// from the chunks indexed for one document.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

const chunkSeparator = "\n\n---\n\n"

const (
	DefaultScoreThreshold = 0.5
	// NoScoreFloor disables the minimum similarity.
	NoScoreFloor = -1.0
)

type RetrieverConfig struct {
	TopK int
	// ScoreThreshold is the minimum similarity. Zero selects
	// DefaultScoreThreshold; a negative value keeps every hit.
	ScoreThreshold float64
	Logger         *slog.Logger
}

type Retriever struct {
	config RetrieverConfig
	index  types.VectorIndex
}

// Result is the ordered evidence for one query.
type Result struct {
	Query       string
	Chunks      []models.ScoredChunk
	TotalTokens int
}

// Empty reports whether no evidence was found.
func (r Result) Empty() bool {
	return len(r.Chunks) == 0
}

// Context renders the chunks with section and page headers.
func (r Result) Context() string {
	parts := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		section := c.SectionName
		if section == "" {
			section = "Unknown Section"
		}
		page := "?"
		if c.PageNumber > 0 {
			page = strconv.Itoa(c.PageNumber)
		}
		parts = append(parts, fmt.Sprintf("[Section: %s | Page: %s]\n%s", section, page, c.Text))
	}
	return strings.Join(parts, chunkSeparator)
}

func NewWithConfig(config RetrieverConfig, index types.VectorIndex) *Retriever {
	if config.TopK <= 0 {
		config.TopK = 10
	}
	switch {
	case config.ScoreThreshold == 0:
		config.ScoreThreshold = DefaultScoreThreshold
	case config.ScoreThreshold < 0:
		config.ScoreThreshold = 0
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Retriever{config: config, index: index}
}

// Retrieve fetches the top chunks for query within docID and orders them by
// section (first seen), then page and chunk index.
func (r *Retriever) Retrieve(ctx context.Context, query, docID string) (Result, error) {
	hits, err := r.index.Query(ctx, query, r.config.TopK, docID, r.config.ScoreThreshold)
	if err != nil {
		return Result{}, fmt.Errorf("failed to query index: %w", err)
	}

	result := Result{Query: query, Chunks: groupBySection(hits)}
	for _, c := range result.Chunks {
		if c.TokenCount > 0 {
			result.TotalTokens += c.TokenCount
		} else {
			result.TotalTokens += len(strings.Fields(c.Text))
		}
	}

	r.config.Logger.Debug("Context retrieved",
		slog.String("doc_id", docID),
		slog.Int("chunks", len(result.Chunks)),
		slog.Int("tokens", result.TotalTokens))
	return result, nil
}

func groupBySection(hits []models.ScoredChunk) []models.ScoredChunk {
	rank := make(map[string]int)
	for _, h := range hits {
		if _, ok := rank[h.SectionName]; !ok {
			rank[h.SectionName] = len(rank)
		}
	}

	ordered := make([]models.ScoredChunk, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if rank[a.SectionName] != rank[b.SectionName] {
			return rank[a.SectionName] < rank[b.SectionName]
		}
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		return a.Index < b.Index
	})
	return ordered
}
