// Package pipeline runs a document through extraction, chunking, indexing,
// evaluation and reporting while tracking stage and progress.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/checklist"
)

var (
	ErrInvalidContent = errors.New("invalid content")
	ErrNoChunks       = errors.New("chunking produced no chunks")
)

type Chunker interface {
	Chunk(content *models.ExtractedContent) []models.Chunk
}

type Evaluator interface {
	EvaluateChecklist(ctx context.Context, checklist *models.Checklist, docID string, docInfo models.DocumentInfo) (*models.ComplianceReport, error)
	EvaluateChecklistLongContext(ctx context.Context, checklist *models.Checklist, fullText string, docInfo models.DocumentInfo) (*models.ComplianceReport, error)
}

type PipelineConfig struct {
	Mode                 models.EvaluationMode
	LongContextMaxTokens int
	CharsPerToken        int
	ChecklistPath        string
	Logger               *slog.Logger
}

// Components are the collaborators a pipeline drives. Audit is optional.
type Components struct {
	Extractor types.Extractor
	Chunker   Chunker
	Index     types.VectorIndex
	Evaluator Evaluator
	Sinks     []types.ReportSink
	Audit     types.AuditSink
}

type Pipeline struct {
	config     PipelineConfig
	components Components
}

// Request describes one run. Observer may be nil.
type Request struct {
	JobID         string
	FilePath      string
	ChecklistPath string
	User          string
	Observer      types.Observer
}

func NewWithConfig(config PipelineConfig, components Components) (*Pipeline, error) {
	if config.Mode == "" {
		config.Mode = models.ModeAuto
	}
	if _, err := models.ParseEvaluationMode(string(config.Mode)); err != nil {
		return nil, err
	}
	if config.LongContextMaxTokens <= 0 {
		config.LongContextMaxTokens = 100000
	}
	if config.CharsPerToken <= 0 {
		config.CharsPerToken = 4
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	switch {
	case components.Extractor == nil:
		return nil, fmt.Errorf("pipeline requires an extractor")
	case components.Evaluator == nil:
		return nil, fmt.Errorf("pipeline requires an evaluator")
	case config.Mode != models.ModeLongContext && (components.Chunker == nil || components.Index == nil):
		return nil, fmt.Errorf("pipeline requires a chunker and an index for %s mode", config.Mode)
	}

	return &Pipeline{config: config, components: components}, nil
}

// SelectMode resolves the configured mode for a document. Auto picks the
// long-context path when the estimated token count is under the ceiling.
func SelectMode(mode models.EvaluationMode, text string, maxTokens, charsPerToken int) models.EvaluationMode {
	switch mode {
	case models.ModeRAG, models.ModeLongContext:
		return mode
	case models.ModeAuto:
		if charsPerToken <= 0 {
			charsPerToken = 4
		}
		if utf8.RuneCountInString(text)/charsPerToken < maxTokens {
			return models.ModeLongContext
		}
		return models.ModeRAG
	}
	panic(fmt.Sprintf("unknown evaluation mode %q", string(mode)))
}

// run is the mutable state of a single Run call.
type run struct {
	logger   *slog.Logger
	state    models.PipelineState
	observer types.Observer
}

func (r *run) emit(stage models.Stage, progress float64) {
	r.state.Stage = stage
	r.state.Progress = progress
	r.state.UpdatedAt = time.Now().UTC()
	if r.observer != nil {
		r.observer.OnStageChanged(r.state.Clone())
	}
}

func (r *run) timed(stage models.Stage, start time.Time) {
	r.state.StageTimes[string(stage)] = time.Since(start).Seconds()
}

func (r *run) fail(err error) error {
	r.state.Errors = append(r.state.Errors, err.Error())
	r.logger.Error("Pipeline failed", slog.String("error", err.Error()), slog.String("stage", string(r.state.Stage)))
	r.emit(models.StageFailed, r.state.Progress)
	return err
}

// Run executes one evaluation end to end. Any returned error has already
// moved the run to the failed stage.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.ComplianceReport, error) {
	started := time.Now()
	r := &run{
		logger:   p.config.Logger.With(slog.String("job_id", req.JobID)),
		state:    models.NewPipelineState(req.JobID, filepath.Base(req.FilePath)),
		observer: req.Observer,
	}

	checklistPath := req.ChecklistPath
	if checklistPath == "" {
		checklistPath = p.config.ChecklistPath
	}
	user := req.User
	if user == "" {
		user = "system"
	}

	// Ingestion
	r.emit(models.StageIngestion, 5)
	t0 := time.Now()
	content, err := p.components.Extractor.Extract(ctx, req.FilePath)
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to extract document: %w", err))
	}
	r.state.DocID = content.DocID
	if content.Filename != "" {
		r.state.Filename = content.Filename
	}
	r.timed(models.StageIngestion, t0)

	if !content.IsValid() {
		reason := "no text extracted"
		if len(content.ExtractionErrors) > 0 {
			reason = strings.Join(content.ExtractionErrors, "; ")
		}
		return nil, r.fail(fmt.Errorf("%w: extraction failed: %s", ErrInvalidContent, reason))
	}

	mode := SelectMode(p.config.Mode, content.RawText, p.config.LongContextMaxTokens, p.config.CharsPerToken)
	r.state.Mode = mode
	r.logger.Info("Document extracted",
		slog.String("doc_id", content.DocID),
		slog.Int("pages", len(content.Pages)),
		slog.Int("sections", len(content.Sections)),
		slog.String("mode", string(mode)))
	r.emit(models.StageIngestion, 15)

	if mode == models.ModeRAG {
		if err := p.index(ctx, r, content); err != nil {
			return nil, err
		}
	}

	// Evaluation
	r.emit(models.StageEvaluation, 42)
	t0 = time.Now()
	list, err := checklist.Load(checklistPath)
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to load checklist: %w", err))
	}

	var report *models.ComplianceReport
	if mode == models.ModeLongContext {
		report, err = p.components.Evaluator.EvaluateChecklistLongContext(ctx, list, content.RawText, content.Info())
	} else {
		report, err = p.components.Evaluator.EvaluateChecklist(ctx, list, content.DocID, content.Info())
	}
	if err != nil {
		return nil, r.fail(fmt.Errorf("failed to evaluate checklist: %w", err))
	}
	r.timed(models.StageEvaluation, t0)
	r.emit(models.StageEvaluation, 85)

	// Reporting
	r.emit(models.StageReporting, 90)
	t0 = time.Now()
	report.Audit.ProcessingTimeSeconds = math.Round(time.Since(started).Seconds()*100) / 100
	report.Audit.User = user
	report.Audit.EvaluationMode = mode

	for _, sink := range p.components.Sinks {
		location, err := sink.Save(ctx, report)
		if err != nil {
			return nil, r.fail(fmt.Errorf("failed to save report: %w", err))
		}
		r.logger.Info("Report saved", slog.String("location", location))
	}
	if p.components.Audit != nil {
		if _, err := p.components.Audit.Record(ctx, report, content.DocID, user); err != nil {
			return nil, r.fail(fmt.Errorf("failed to record audit entry: %w", err))
		}
	}
	r.timed(models.StageReporting, t0)

	r.state.ReportID = report.ReportID
	r.emit(models.StageCompleted, 100)

	r.logger.Info("Pipeline complete",
		slog.String("report_id", report.ReportID),
		slog.Float64("score", report.OverallCompliance.Score),
		slog.Float64("total_time", report.Audit.ProcessingTimeSeconds),
		slog.Int("tokens", report.Audit.TotalTokensUsed))
	return report, nil
}

// index chunks the content and replaces the document's entries in the
// vector index. Delete then insert is not atomic.
func (p *Pipeline) index(ctx context.Context, r *run, content *models.ExtractedContent) error {
	r.emit(models.StagePreprocessing, 18)
	t0 := time.Now()
	chunks := p.components.Chunker.Chunk(content)
	r.timed(models.StagePreprocessing, t0)
	if len(chunks) == 0 {
		return r.fail(ErrNoChunks)
	}
	r.logger.Info("Document chunked", slog.Int("chunks", len(chunks)))
	r.emit(models.StagePreprocessing, 25)

	r.emit(models.StageEmbedding, 28)
	t0 = time.Now()
	if err := p.components.Index.DeleteByDocument(ctx, content.DocID); err != nil {
		return r.fail(fmt.Errorf("failed to clear previous chunks: %w", err))
	}
	if err := p.components.Index.Upsert(ctx, chunks); err != nil {
		return r.fail(fmt.Errorf("failed to index chunks: %w", err))
	}
	r.timed(models.StageEmbedding, t0)
	r.emit(models.StageEmbedding, 40)
	return nil
}
