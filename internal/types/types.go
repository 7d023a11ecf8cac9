package types

import (
	"context"

	"github.com/xhad/dqcheck/internal/models"
)

// Core interfaces

type Extractor interface {
	Extract(ctx context.Context, path string) (*models.ExtractedContent, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	DeleteByDocument(ctx context.Context, docID string) error
	Query(ctx context.Context, text string, k int, docID string, minScore float64) ([]models.ScoredChunk, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is a text-generation service. CompleteJSON asks the model for
// JSON output but does not guarantee it.
type Generator interface {
	Complete(ctx context.Context, req models.GenerationRequest) (models.Completion, error)
	CompleteJSON(ctx context.Context, req models.GenerationRequest) (models.Completion, error)
}

type ReportSink interface {
	Save(ctx context.Context, report *models.ComplianceReport) (string, error)
}

type AuditSink interface {
	Record(ctx context.Context, report *models.ComplianceReport, docID, user string) (string, error)
}

// Observer is notified synchronously on every pipeline state change.
type Observer interface {
	OnStageChanged(state models.PipelineState)
}

type ObserverFunc func(state models.PipelineState)

func (f ObserverFunc) OnStageChanged(state models.PipelineState) { f(state) }

type JobStore interface {
	PutState(state models.PipelineState)
	State(jobID string) (models.PipelineState, bool)
	PutReport(report *models.ComplianceReport)
	Report(reportID string) (*models.ComplianceReport, bool)
}
