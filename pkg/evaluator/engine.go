// Package evaluator scores a document against a compliance checklist, either
// item by item over retrieved context or in one long-context call.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/retriever"
)

const (
	noContextJustification = "No relevant content found in the document for this requirement."
	manualReview           = "Manual review required for this item."
)

// ContextRetriever supplies the evidence for one checklist query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, docID string) (retriever.Result, error)
}

type EngineConfig struct {
	ModelVersion      string
	EmbeddingModel    string
	RetryContextChars int
	Logger            *slog.Logger
}

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	config    EngineConfig
	generator types.Generator
	retriever ContextRetriever
}

// NewWithConfig creates an Engine. The retriever may be nil when only the
// long-context strategy is used.
func NewWithConfig(config EngineConfig, generator types.Generator, retriever ContextRetriever) *Engine {
	if config.RetryContextChars <= 0 {
		config.RetryContextChars = 5000
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Engine{
		config:    config,
		generator: generator,
		retriever: retriever,
	}
}

type tokenTally struct {
	prompt     int
	completion int
}

func (t *tokenTally) add(c models.Completion) {
	t.prompt += c.PromptTokens
	t.completion += c.CompletionTokens
}

// EvaluateItem evaluates one checklist item against the retrieved context of
// docID. Model failures degrade into a Partial finding; only index errors are
// returned.
func (e *Engine) EvaluateItem(ctx context.Context, item models.ChecklistItem, docID string) (models.Finding, error) {
	return e.evaluateItem(ctx, item, docID, &tokenTally{})
}

func (e *Engine) evaluateItem(ctx context.Context, item models.ChecklistItem, docID string, tally *tokenTally) (models.Finding, error) {
	if e.retriever == nil {
		return models.Finding{}, fmt.Errorf("engine has no retriever configured")
	}

	query := item.Requirement + ". " + item.Criteria
	retrieval, err := e.retriever.Retrieve(ctx, query, docID)
	if err != nil {
		return models.Finding{}, fmt.Errorf("failed to retrieve context for %s: %w", item.ItemID, err)
	}

	if retrieval.Empty() {
		e.config.Logger.Warn("No chunks retrieved", slog.String("item_id", item.ItemID))
		return newFinding(item.ItemID, models.StatusFail, 0.3,
			noContextJustification,
			"Ensure the document addresses: "+item.Requirement), nil
	}

	contextText := retrieval.Context()
	finding, err := e.generateFinding(ctx, item, contextText, tally)
	if err != nil {
		e.config.Logger.Error("Evaluation failed, retrying with truncated context",
			slog.String("item_id", item.ItemID), slog.String("error", err.Error()))

		finding, err = e.generateFinding(ctx, item, truncateRunes(contextText, e.config.RetryContextChars), tally)
		if err != nil {
			e.config.Logger.Error("Retry also failed",
				slog.String("item_id", item.ItemID), slog.String("error", err.Error()))
			return newFinding(item.ItemID, models.StatusPartial, 0,
				"Evaluation failed: "+err.Error(), manualReview), nil
		}
	}

	e.config.Logger.Info("Item evaluated",
		slog.String("item_id", item.ItemID),
		slog.String("status", string(finding.Status)),
		slog.String("risk", string(finding.RiskLevel)),
		slog.Float64("confidence", finding.Confidence))
	return finding, nil
}

func (e *Engine) generateFinding(ctx context.Context, item models.ChecklistItem, contextText string, tally *tokenTally) (models.Finding, error) {
	completion, err := e.generator.CompleteJSON(ctx, models.GenerationRequest{
		System: systemPrompt,
		Prompt: evaluationPrompt(item, contextText),
	})
	if err != nil {
		return models.Finding{}, err
	}
	tally.add(completion)

	payload, _, err := NewParser("status").Parse(completion.Text)
	if err != nil {
		return models.Finding{}, err
	}

	var resp itemResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return models.Finding{}, fmt.Errorf("failed to decode evaluation: %w", err)
	}
	return resp.finding(item.ItemID)
}

// itemResponse is the model's view of one finding before validation.
type itemResponse struct {
	ItemID           string   `json:"dqc_item_id"`
	Status           string   `json:"status"`
	Justification    string   `json:"justification"`
	EvidenceQuotes   []string `json:"evidence_quotes"`
	Recommendation   *string  `json:"recommendation"`
	Confidence       *float64 `json:"confidence_score"`
	SectionsReviewed []string `json:"sections_reviewed"`
}

var errMissingConfidence = errors.New("missing confidence_score")

// finding validates the response and stamps it with itemID. The model's own
// risk level is discarded in favour of the matrix.
func (r itemResponse) finding(itemID string) (models.Finding, error) {
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return models.Finding{}, err
	}
	if r.Confidence == nil {
		return models.Finding{}, errMissingConfidence
	}
	confidence := *r.Confidence
	if confidence < 0 || confidence > 1 {
		return models.Finding{}, fmt.Errorf("confidence_score %v out of range [0,1]", confidence)
	}

	f := newFinding(itemID, status, confidence, r.Justification, "")
	if r.Recommendation != nil {
		f.Recommendation = strings.TrimSpace(*r.Recommendation)
	}
	if r.EvidenceQuotes != nil {
		f.EvidenceQuotes = r.EvidenceQuotes
	}
	if r.SectionsReviewed != nil {
		f.SectionsReviewed = r.SectionsReviewed
	}
	return f, nil
}

func newFinding(itemID string, status models.Status, confidence float64, justification, recommendation string) models.Finding {
	return models.Finding{
		ItemID:           itemID,
		Status:           status,
		Justification:    justification,
		EvidenceQuotes:   []string{},
		RiskLevel:        RiskFor(status, confidence),
		Recommendation:   recommendation,
		Confidence:       confidence,
		SectionsReviewed: []string{},
	}
}

// EvaluateChecklist evaluates every item in order and assembles the report.
func (e *Engine) EvaluateChecklist(ctx context.Context, checklist *models.Checklist, docID string, docInfo models.DocumentInfo) (*models.ComplianceReport, error) {
	e.config.Logger.Info("Starting full DQC evaluation",
		slog.String("doc_id", docID),
		slog.String("dqc_version", checklist.Version),
		slog.Int("items", len(checklist.Items)))

	tally := &tokenTally{}
	findings := make([]models.Finding, 0, len(checklist.Items))
	for _, item := range checklist.Items {
		finding, err := e.evaluateItem(ctx, item, docID, tally)
		if err != nil {
			return nil, err
		}
		findings = append(findings, finding)
	}

	summary := Summarize(findings)
	executive := e.generateSummary(ctx, docInfo.Filename, summary, findings, tally)

	report := e.assemble(checklist, docInfo, summary, findings, executive, tally)
	report.Audit.EvaluationMode = models.ModeRAG
	return report, nil
}

func (e *Engine) generateSummary(ctx context.Context, filename string, summary models.ComplianceSummary, findings []models.Finding, tally *tokenTally) string {
	completion, err := e.generator.Complete(ctx, models.GenerationRequest{
		System: summarySystemPrompt,
		Prompt: summaryPrompt(filename, summary, findings),
	})
	if err != nil {
		e.config.Logger.Error("Summary generation failed", slog.String("error", err.Error()))
		return FallbackSummary(summary)
	}
	tally.add(completion)

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return FallbackSummary(summary)
	}
	return text
}
