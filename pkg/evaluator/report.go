package evaluator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/dqcheck/internal/models"
)

// Summarize computes the score and counts for a set of findings.
func Summarize(findings []models.Finding) models.ComplianceSummary {
	s := models.ComplianceSummary{TotalItems: len(findings)}
	for _, f := range findings {
		switch f.Status {
		case models.StatusPass:
			s.Passed++
		case models.StatusFail:
			s.Failed++
		case models.StatusPartial:
			s.Partial++
		}
		s.RiskDistribution.Add(f.RiskLevel)
	}
	if s.TotalItems > 0 {
		s.Score = math.RoundToEven(float64(s.Passed)/float64(s.TotalItems)*1000) / 10
	}
	return s
}

// FallbackSummary is used whenever the model cannot provide one.
func FallbackSummary(s models.ComplianceSummary) string {
	return fmt.Sprintf("Compliance score: %.1f%%. %d passed, %d failed, %d partial.",
		s.Score, s.Passed, s.Failed, s.Partial)
}

// BuildRecommendations lists the actionable non-passing findings, most severe
// first, keeping checklist order among equals.
func BuildRecommendations(findings []models.Finding) []models.Recommendation {
	var open []models.Finding
	for _, f := range findings {
		if f.Status != models.StatusPass && f.Recommendation != "" {
			open = append(open, f)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].RiskLevel.Severity() < open[j].RiskLevel.Severity()
	})

	recs := make([]models.Recommendation, len(open))
	for i, f := range open {
		recs[i] = models.Recommendation{
			Priority:   i + 1,
			ItemID:     f.ItemID,
			Action:     f.Recommendation,
			RiskImpact: f.RiskLevel,
		}
	}
	return recs
}

func (e *Engine) assemble(checklist *models.Checklist, docInfo models.DocumentInfo, summary models.ComplianceSummary, findings []models.Finding, executive string, tally *tokenTally) *models.ComplianceReport {
	report := &models.ComplianceReport{
		ReportID:          uuid.NewString(),
		GeneratedAt:       time.Now().UTC(),
		Document:          docInfo,
		DQCVersion:        checklist.Version,
		OverallCompliance: summary,
		ExecutiveSummary:  executive,
		Findings:          findings,
		Recommendations:   BuildRecommendations(findings),
		Audit: models.AuditInfo{
			ModelVersion:     e.config.ModelVersion,
			EmbeddingModel:   e.config.EmbeddingModel,
			PromptVersion:    PromptVersion,
			DQCVersion:       checklist.Version,
			PromptTokens:     tally.prompt,
			CompletionTokens: tally.completion,
			TotalTokensUsed:  tally.prompt + tally.completion,
		},
	}

	e.config.Logger.Info("Evaluation complete",
		slog.Float64("score", summary.Score),
		slog.Int("passed", summary.Passed),
		slog.Int("failed", summary.Failed),
		slog.Int("partial", summary.Partial),
		slog.Int("tokens", report.Audit.TotalTokensUsed))
	return report
}
