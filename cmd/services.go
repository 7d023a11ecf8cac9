package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/audit"
	"github.com/xhad/dqcheck/pkg/config"
	"github.com/xhad/dqcheck/pkg/evaluator"
	"github.com/xhad/dqcheck/pkg/extractor"
	"github.com/xhad/dqcheck/pkg/llm"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/processor"
	"github.com/xhad/dqcheck/pkg/report"
	"github.com/xhad/dqcheck/pkg/retriever"
	"github.com/xhad/dqcheck/pkg/scraper"
	"github.com/xhad/dqcheck/pkg/store"
)

// services is the wired pipeline and the stores behind it.
type services struct {
	pipeline *pipeline.Pipeline
	reports  *report.JSONSink
	ledger   *audit.Ledger
	closers  []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var index types.VectorIndex
	if cfg.Database.URL != "" {
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString:  cfg.Database.URL,
			TableName:   cfg.Database.TableName,
			VectorDim:   cfg.Embedding.Dimensions,
			BatchSize:   cfg.Database.BatchSize,
			SearchLimit: cfg.Retrieval.TopK,
			Logger:      logger,
		}, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		svc.closers = append(svc.closers, vs.Close)
		index = vs
	} else {
		logger.Warn("No database URL configured; chunks are indexed in memory for this process only")
		index = store.NewMemoryStore(embedder)
	}

	tokenizer, err := processor.NewTokenizer(cfg.Processor.Tokenizer)
	if err != nil {
		return nil, err
	}
	chunker := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		MinChunkTokens: cfg.Processor.MinChunkTokens,
		Tokenizer:      tokenizer,
		Logger:         logger,
	})

	minScore := cfg.Retrieval.MinScore()
	if minScore == 0 {
		minScore = retriever.NoScoreFloor
	}
	ret := retriever.NewWithConfig(retriever.RetrieverConfig{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: minScore,
		Logger:         logger,
	}, index)

	engine := evaluator.NewWithConfig(evaluator.EngineConfig{
		ModelVersion:      chat.Model(),
		EmbeddingModel:    embedder.Model(),
		RetryContextChars: cfg.Evaluation.RetryContextChars,
		Logger:            logger,
	}, chat, ret)

	ext := extractor.NewWithConfig(extractor.ExtractorConfig{
		Scraper: scraper.ScraperConfig{
			MaxDepth:       cfg.Scraper.MaxDepth,
			RateLimit:      cfg.Scraper.RateLimit,
			IgnorePatterns: cfg.Scraper.IgnorePatterns,
			Timeout:        time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second,
			Logger:         logger,
		},
		Logger: logger,
	})

	if svc.reports, err = report.NewJSONSink(cfg.Paths.ReportDir, logger); err != nil {
		return nil, err
	}
	markdown, err := report.NewMarkdownSink(cfg.Paths.ReportDir, logger)
	if err != nil {
		return nil, err
	}

	if svc.ledger, err = openLedger(cfg, logger); err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, func() { _ = svc.ledger.Close() })

	mode, err := models.ParseEvaluationMode(cfg.Evaluation.Mode)
	if err != nil {
		return nil, err
	}
	svc.pipeline, err = pipeline.NewWithConfig(pipeline.PipelineConfig{
		Mode:                 mode,
		LongContextMaxTokens: cfg.Evaluation.LongContextMaxTokens,
		CharsPerToken:        cfg.Evaluation.CharsPerToken,
		ChecklistPath:        cfg.Evaluation.ChecklistPath,
		Logger:               logger,
	}, pipeline.Components{
		Extractor: ext,
		Chunker:   &chunker,
		Index:     index,
		Evaluator: engine,
		Sinks:     []types.ReportSink{svc.reports, markdown},
		Audit:     svc.ledger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	ok = true
	return svc, nil
}

func openLedger(cfg *config.Config, logger *slog.Logger) (*audit.Ledger, error) {
	ledger, err := audit.NewWithConfig(audit.LedgerConfig{Path: cfg.Paths.AuditDBPath, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return ledger, nil
}
