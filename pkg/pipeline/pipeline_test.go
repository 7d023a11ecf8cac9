package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/testutil"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/evaluator"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/processor"
	"github.com/xhad/dqcheck/pkg/retriever"
	"github.com/xhad/dqcheck/pkg/store"
)

var _ pipeline.Chunker = (*processor.Processor)(nil)

type extractorFunc func(ctx context.Context, path string) (*models.ExtractedContent, error)

func (f extractorFunc) Extract(ctx context.Context, path string) (*models.ExtractedContent, error) {
	return f(ctx, path)
}

type recordingSink struct {
	saved []string
	err   error
}

func (s *recordingSink) Save(ctx context.Context, report *models.ComplianceReport) (string, error) {
	s.saved = append(s.saved, report.ReportID)
	return "mem://" + report.ReportID, s.err
}

type recordingAudit struct {
	docID, user string
}

func (a *recordingAudit) Record(ctx context.Context, report *models.ComplianceReport, docID, user string) (string, error) {
	a.docID, a.user = docID, user
	return "audit-1", nil
}

func paragraph(topic string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("The %s discussion number %d covers key points.", topic, i)
	}
	return strings.Join(parts, " ")
}

func twoSectionContent() *models.ExtractedContent {
	intro := paragraph("objective", 5)
	methods := paragraph("method", 5)
	return &models.ExtractedContent{
		DocID:    "doc-123",
		Filename: "course.md",
		Format:   models.FormatMarkdown,
		Version:  1,
		Sections: []models.Section{
			{Title: "Intro", Level: 1, PageStart: 1, Content: intro},
			{Title: "Methods", Level: 1, PageStart: 1, Content: methods},
		},
		RawText: intro + "\n\n" + methods,
	}
}

func writeChecklist(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dqc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "1.0",
		"items": [
			{"item_id": "LO-1", "category": "Objectives", "requirement": "Learning objectives are stated", "criteria": "Each objective is measurable"},
			{"item_id": "ME-1", "category": "Method", "requirement": "The teaching method is described", "criteria": "Method explained"}
		]
	}`), 0o644))
	return path
}

func scriptedGenerator() *testutil.Generator {
	return &testutil.Generator{Respond: func(req models.GenerationRequest, jsonMode bool) (string, error) {
		if !jsonMode {
			return "Overall the course is partly compliant.", nil
		}
		if strings.Contains(req.Prompt, "- ID: LO-1\n") {
			return `{"status": "Pass", "justification": "Objectives listed.", "confidence_score": 0.9}`, nil
		}
		return `{"status": "Fail", "justification": "No method.", "recommendation": "Describe the method.", "confidence_score": 0.6}`, nil
	}}
}

type harness struct {
	pipeline *pipeline.Pipeline
	index    types.VectorIndex
	gen      *testutil.Generator
	sink     *recordingSink
	audit    *recordingAudit
}

func newHarness(t *testing.T, mode models.EvaluationMode, extract extractorFunc, index types.VectorIndex) *harness {
	t.Helper()
	if index == nil {
		index = store.NewMemoryStore(testutil.KeywordEmbedder{Vocabulary: []string{"objective", "method"}})
	}
	h := &harness{
		index: index,
		gen:   scriptedGenerator(),
		sink:  &recordingSink{},
		audit: &recordingAudit{},
	}

	engine := evaluator.NewWithConfig(evaluator.EngineConfig{ModelVersion: "test-model"}, h.gen,
		retriever.NewWithConfig(retriever.RetrieverConfig{}, index))

	chunker := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 1000, ChunkOverlap: 150})
	p, err := pipeline.NewWithConfig(pipeline.PipelineConfig{
		Mode:          mode,
		ChecklistPath: writeChecklist(t),
	}, pipeline.Components{
		Extractor: extract,
		Chunker:   &chunker,
		Index:     index,
		Evaluator: engine,
		Sinks:     []types.ReportSink{h.sink},
		Audit:     h.audit,
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func staticContent(c *models.ExtractedContent) extractorFunc {
	return func(ctx context.Context, path string) (*models.ExtractedContent, error) { return c, nil }
}

type stateLog struct {
	states []models.PipelineState
}

func (l *stateLog) OnStageChanged(s models.PipelineState) { l.states = append(l.states, s) }

func (l *stateLog) last() models.PipelineState { return l.states[len(l.states)-1] }

func TestRun_RAGEndToEnd(t *testing.T) {
	h := newHarness(t, models.ModeRAG, staticContent(twoSectionContent()), nil)
	log := &stateLog{}

	report, err := h.pipeline.Run(context.Background(), pipeline.Request{
		JobID:    "job-1",
		FilePath: "/uploads/course.md",
		User:     "reviewer",
		Observer: log,
	})
	require.NoError(t, err)

	var stages []models.Stage
	for i, s := range log.states {
		stages = append(stages, s.Stage)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Progress, log.states[i-1].Progress)
		}
	}
	assert.Equal(t, []models.Stage{
		models.StageIngestion, models.StageIngestion,
		models.StagePreprocessing, models.StagePreprocessing,
		models.StageEmbedding, models.StageEmbedding,
		models.StageEvaluation, models.StageEvaluation,
		models.StageReporting, models.StageCompleted,
	}, stages)

	final := log.last()
	assert.Equal(t, 100.0, final.Progress)
	assert.Equal(t, "job-1", final.JobID)
	assert.Equal(t, "doc-123", final.DocID)
	assert.Equal(t, report.ReportID, final.ReportID)
	assert.Equal(t, models.ModeRAG, final.Mode)
	assert.Empty(t, final.Errors)
	for _, stage := range []string{"ingestion", "preprocessing", "embedding", "evaluation", "reporting"} {
		assert.Contains(t, final.StageTimes, stage)
	}

	require.Len(t, report.Findings, 2)
	assert.Equal(t, "LO-1", report.Findings[0].ItemID)
	assert.Equal(t, models.StatusPass, report.Findings[0].Status)
	assert.Equal(t, "ME-1", report.Findings[1].ItemID)
	assert.Equal(t, models.RiskHigh, report.Findings[1].RiskLevel)
	assert.Equal(t, 50.0, report.OverallCompliance.Score)

	assert.Equal(t, "reviewer", report.Audit.User)
	assert.Equal(t, models.ModeRAG, report.Audit.EvaluationMode)
	assert.GreaterOrEqual(t, report.Audit.ProcessingTimeSeconds, 0.0)
	assert.Equal(t, []string{report.ReportID}, h.sink.saved)
	assert.Equal(t, "doc-123", h.audit.docID)
	assert.Equal(t, "reviewer", h.audit.user)

	mem := h.index.(*store.MemoryStore)
	assert.Equal(t, 2, mem.Len())
}

func TestRun_ReindexReplacesEntries(t *testing.T) {
	index := &testutil.StaticIndex{Results: []models.ScoredChunk{{
		Chunk: models.Chunk{ID: "doc-123_0", DocID: "doc-123", Text: "objective", SectionName: "Intro"},
		Score: 0.9,
	}}}
	h := newHarness(t, models.ModeRAG, staticContent(twoSectionContent()), index)

	_, err := h.pipeline.Run(context.Background(), pipeline.Request{FilePath: "course.md"})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete:doc-123", "upsert"}, index.Ops)
	assert.Equal(t, "system", h.audit.user)
}

func TestRun_AutoSelectsLongContextForSmallDocuments(t *testing.T) {
	index := &testutil.StaticIndex{}
	h := newHarness(t, models.ModeAuto, staticContent(twoSectionContent()), index)
	h.gen.Respond = func(req models.GenerationRequest, jsonMode bool) (string, error) {
		return `{"evaluations": [{"dqc_item_id": "ME-1", "status": "Pass", "confidence_score": 0.9}], "executive_summary": "Fine."}`, nil
	}
	log := &stateLog{}

	report, err := h.pipeline.Run(context.Background(), pipeline.Request{FilePath: "course.md", Observer: log})
	require.NoError(t, err)

	assert.Empty(t, index.Ops)
	assert.Equal(t, 1, h.gen.CallCount())
	for _, s := range log.states {
		assert.NotEqual(t, models.StagePreprocessing, s.Stage)
		assert.NotEqual(t, models.StageEmbedding, s.Stage)
	}

	require.Len(t, report.Findings, 2)
	assert.Equal(t, "LO-1", report.Findings[0].ItemID)
	assert.Equal(t, models.StatusPartial, report.Findings[0].Status)
	assert.Equal(t, models.StatusPass, report.Findings[1].Status)
	assert.Equal(t, models.ModeLongContext, report.Audit.EvaluationMode)
}

func TestSelectMode(t *testing.T) {
	small := strings.Repeat("a", 1000)
	large := strings.Repeat("a", 400004)

	assert.Equal(t, models.ModeLongContext, pipeline.SelectMode(models.ModeAuto, small, 100000, 4))
	assert.Equal(t, models.ModeRAG, pipeline.SelectMode(models.ModeAuto, large, 100000, 4))
	assert.Equal(t, models.ModeRAG, pipeline.SelectMode(models.ModeAuto, strings.Repeat("a", 400000), 100000, 4))
	assert.Equal(t, models.ModeRAG, pipeline.SelectMode(models.ModeRAG, small, 100000, 4))
	assert.Equal(t, models.ModeLongContext, pipeline.SelectMode(models.ModeLongContext, large, 100000, 4))
}

func TestRun_FatalErrors(t *testing.T) {
	shortContent := &models.ExtractedContent{DocID: "doc-short", RawText: "Too short.", Filename: "short.txt"}
	emptyContent := &models.ExtractedContent{DocID: "doc-empty", ExtractionErrors: []string{"File is empty (0 bytes)"}}

	tests := []struct {
		name         string
		extract      extractorFunc
		index        types.VectorIndex
		sinkErr      error
		checklist    string
		wantErr      error
		wantMsg      string
		wantProgress float64
	}{
		{
			name: "extractor error",
			extract: func(ctx context.Context, path string) (*models.ExtractedContent, error) {
				return nil, os.ErrNotExist
			},
			wantErr:      os.ErrNotExist,
			wantProgress: 5,
		},
		{
			name:         "empty file",
			extract:      staticContent(emptyContent),
			wantErr:      pipeline.ErrInvalidContent,
			wantMsg:      "File is empty (0 bytes)",
			wantProgress: 5,
		},
		{
			name:         "no chunks",
			extract:      staticContent(shortContent),
			wantErr:      pipeline.ErrNoChunks,
			wantProgress: 18,
		},
		{
			name:         "index error",
			extract:      staticContent(twoSectionContent()),
			index:        &testutil.StaticIndex{Err: errors.New("pgvector unavailable")},
			wantMsg:      "pgvector unavailable",
			wantProgress: 28,
		},
		{
			name:         "missing checklist",
			extract:      staticContent(twoSectionContent()),
			checklist:    "/does/not/exist.json",
			wantErr:      os.ErrNotExist,
			wantProgress: 42,
		},
		{
			name:         "sink error",
			extract:      staticContent(twoSectionContent()),
			sinkErr:      errors.New("disk full"),
			wantMsg:      "disk full",
			wantProgress: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, models.ModeRAG, tt.extract, tt.index)
			h.sink.err = tt.sinkErr
			log := &stateLog{}

			_, err := h.pipeline.Run(context.Background(), pipeline.Request{
				FilePath:      "doc.txt",
				ChecklistPath: tt.checklist,
				Observer:      log,
			})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			final := log.last()
			assert.Equal(t, models.StageFailed, final.Stage)
			assert.Equal(t, tt.wantProgress, final.Progress)
			require.Len(t, final.Errors, 1)
			assert.Equal(t, err.Error(), final.Errors[0])
		})
	}
}

func TestNewWithConfig_Validation(t *testing.T) {
	_, err := pipeline.NewWithConfig(pipeline.PipelineConfig{Mode: "turbo"}, pipeline.Components{})
	assert.Error(t, err)

	_, err = pipeline.NewWithConfig(pipeline.PipelineConfig{}, pipeline.Components{
		Extractor: staticContent(twoSectionContent()),
		Evaluator: evaluator.NewWithConfig(evaluator.EngineConfig{}, &testutil.Generator{}, nil),
	})
	assert.ErrorContains(t, err, "chunker")

	_, err = pipeline.NewWithConfig(pipeline.PipelineConfig{Mode: models.ModeLongContext}, pipeline.Components{
		Extractor: staticContent(twoSectionContent()),
		Evaluator: evaluator.NewWithConfig(evaluator.EngineConfig{}, &testutil.Generator{}, nil),
	})
	assert.NoError(t, err)
}
