package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

type MarkdownSink struct {
	dir    string
	logger *slog.Logger
}

var _ types.ReportSink = (*MarkdownSink)(nil)

func NewMarkdownSink(dir string, logger *slog.Logger) (*MarkdownSink, error) {
	if dir == "" {
		dir = "reports"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &MarkdownSink{dir: dir, logger: logger}, nil
}

// Save writes report_<id>.md and returns its path.
func (s *MarkdownSink) Save(ctx context.Context, report *models.ComplianceReport) (string, error) {
	path := filepath.Join(s.dir, "report_"+report.ReportID+".md")
	if err := os.WriteFile(path, []byte(RenderMarkdown(report)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write markdown report: %w", err)
	}
	s.logger.Info("Markdown report saved", slog.String("path", path))
	return path, nil
}

// RenderMarkdown renders a report as a Markdown document.
func RenderMarkdown(report *models.ComplianceReport) string {
	var b strings.Builder
	oc := report.OverallCompliance

	fmt.Fprintf(&b, "# Compliance Report: %s\n\n", report.Document.Filename)
	fmt.Fprintf(&b, "- Report ID: `%s`\n", report.ReportID)
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Document ID: `%s` (version %d, %d pages)\n", report.Document.ID, report.Document.Version, report.Document.Pages)
	fmt.Fprintf(&b, "- DQC version: %s\n\n", report.DQCVersion)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "**Compliance score: %.1f%%** (%d passed, %d failed, %d partial of %d)\n\n",
		oc.Score, oc.Passed, oc.Failed, oc.Partial, oc.TotalItems)
	b.WriteString(report.ExecutiveSummary)
	b.WriteString("\n\n")

	risk := newTable("Critical", "High", "Medium", "Low")
	risk.AppendRow(table.Row{oc.RiskDistribution.Critical, oc.RiskDistribution.High, oc.RiskDistribution.Medium, oc.RiskDistribution.Low})
	b.WriteString("### Risk distribution\n\n")
	b.WriteString(risk.RenderMarkdown())
	b.WriteString("\n\n")

	b.WriteString("## Findings\n\n")
	findings := newTable("Item", "Status", "Risk", "Confidence", "Justification")
	for _, f := range report.Findings {
		findings.AppendRow(table.Row{f.ItemID, f.Status, f.RiskLevel, fmt.Sprintf("%.2f", f.Confidence), oneLine(f.Justification)})
	}
	b.WriteString(findings.RenderMarkdown())
	b.WriteString("\n\n")

	for _, f := range report.Findings {
		if len(f.EvidenceQuotes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "**Evidence for %s**\n\n", f.ItemID)
		for _, q := range f.EvidenceQuotes {
			fmt.Fprintf(&b, "> %s\n\n", oneLine(q))
		}
	}

	b.WriteString("## Recommendations\n\n")
	if len(report.Recommendations) == 0 {
		b.WriteString("No recommendations.\n\n")
	} else {
		recs := newTable("Priority", "Item", "Risk", "Action")
		for _, r := range report.Recommendations {
			recs.AppendRow(table.Row{r.Priority, r.ItemID, r.RiskImpact, oneLine(r.Action)})
		}
		b.WriteString(recs.RenderMarkdown())
		b.WriteString("\n\n")
	}

	a := report.Audit
	b.WriteString("## Audit\n\n")
	audit := newTable("Field", "Value")
	audit.AppendRows([]table.Row{
		{"Model", a.ModelVersion},
		{"Embedding model", a.EmbeddingModel},
		{"Prompt version", a.PromptVersion},
		{"Evaluation mode", a.EvaluationMode},
		{"Tokens (prompt / completion / total)", fmt.Sprintf("%d / %d / %d", a.PromptTokens, a.CompletionTokens, a.TotalTokensUsed)},
		{"Processing time", fmt.Sprintf("%.2fs", a.ProcessingTimeSeconds)},
		{"User", a.User},
	})
	b.WriteString(audit.RenderMarkdown())
	b.WriteString("\n")

	return b.String()
}

func newTable(headers ...string) table.Writer {
	tw := table.NewWriter()
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	return tw
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
