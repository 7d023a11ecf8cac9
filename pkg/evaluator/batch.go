package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/dqcheck/internal/models"
)

const (
	unparsedJustification = "Batch evaluation response could not be parsed."
	missingJustification  = "Item was not included in batch response."
	genericSummary        = "Automated evaluation could not be completed for this document. All checklist items require manual review."
)

type batchResponse struct {
	Evaluations      []json.RawMessage `json:"evaluations"`
	ExecutiveSummary json.RawMessage   `json:"executive_summary"`
}

// summary returns the executive summary when the model sent a string.
func (r batchResponse) summary() string {
	var s string
	if err := json.Unmarshal(r.ExecutiveSummary, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// EvaluateChecklistLongContext evaluates the whole checklist in a single
// request carrying the full document text. Only a failed request is an
// error; malformed output degrades into Partial findings.
func (e *Engine) EvaluateChecklistLongContext(ctx context.Context, checklist *models.Checklist, fullText string, docInfo models.DocumentInfo) (*models.ComplianceReport, error) {
	e.config.Logger.Info("Starting long-context DQC evaluation",
		slog.String("doc_id", docInfo.ID),
		slog.String("dqc_version", checklist.Version),
		slog.Int("items", len(checklist.Items)),
		slog.Int("chars", len(fullText)))

	tally := &tokenTally{}
	completion, err := e.generator.CompleteJSON(ctx, models.GenerationRequest{
		System: systemPrompt,
		Prompt: batchPrompt(checklist, fullText),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run batch evaluation: %w", err)
	}
	tally.add(completion)

	var findings []models.Finding
	var executive string

	resp, strategy, err := parseBatch(completion.Text)
	if err != nil {
		e.config.Logger.Error("Batch response unparseable", slog.String("error", err.Error()))
		findings = make([]models.Finding, len(checklist.Items))
		for i, item := range checklist.Items {
			findings[i] = newFinding(item.ItemID, models.StatusPartial, 0, unparsedJustification, manualReview)
		}
		executive = genericSummary
	} else {
		e.config.Logger.Debug("Batch response parsed", slog.String("strategy", strategy))
		findings = e.matchEvaluations(checklist, resp.Evaluations)
		executive = resp.summary()
	}

	summary := Summarize(findings)
	if executive == "" {
		executive = FallbackSummary(summary)
	}

	report := e.assemble(checklist, docInfo, summary, findings, executive, tally)
	report.Audit.EvaluationMode = models.ModeLongContext
	return report, nil
}

func parseBatch(raw string) (batchResponse, string, error) {
	payload, strategy, err := NewParser("evaluations").Parse(raw)
	if err != nil {
		return batchResponse{}, "", err
	}
	var resp batchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return batchResponse{}, "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return resp, strategy, nil
}

// matchEvaluations pairs parsed entries with checklist items. Unknown ids,
// repeats and invalid entries are dropped; unmatched items get a fallback.
func (e *Engine) matchEvaluations(checklist *models.Checklist, entries []json.RawMessage) []models.Finding {
	known := make(map[string]bool, len(checklist.Items))
	for _, item := range checklist.Items {
		known[item.ItemID] = true
	}

	byID := make(map[string]models.Finding, len(entries))
	for _, raw := range entries {
		var resp itemResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			e.config.Logger.Warn("Skipping malformed batch entry", slog.String("error", err.Error()))
			continue
		}
		id := strings.TrimSpace(resp.ItemID)
		if !known[id] {
			e.config.Logger.Warn("Skipping batch entry for unknown item", slog.String("item_id", id))
			continue
		}
		if _, seen := byID[id]; seen {
			continue
		}
		finding, err := resp.finding(id)
		if err != nil {
			e.config.Logger.Warn("Skipping invalid batch entry",
				slog.String("item_id", id), slog.String("error", err.Error()))
			continue
		}
		byID[id] = finding
	}

	findings := make([]models.Finding, len(checklist.Items))
	for i, item := range checklist.Items {
		if f, ok := byID[item.ItemID]; ok {
			findings[i] = f
			continue
		}
		findings[i] = newFinding(item.ItemID, models.StatusPartial, 0, missingJustification, manualReview)
	}
	return findings
}
