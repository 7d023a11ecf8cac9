package models

import (
	"fmt"
	"time"
)

// Chunk is a contiguous span of one document, tagged with the section it
// came from. Index is sequential and unique within a document.
type Chunk struct {
	ID          string            `json:"chunk_id"`
	DocID       string            `json:"doc_id"`
	Text        string            `json:"text"`
	SectionName string            `json:"section_name"`
	PageNumber  int               `json:"page_number"`
	PageEnd     int               `json:"page_end,omitempty"`
	Index       int               `json:"chunk_index"`
	TokenCount  int               `json:"token_count"`
	UploadedAt  time.Time         `json:"upload_timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s_%d", docID, index)
}

// ScoredChunk is a chunk returned from a similarity search.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}
