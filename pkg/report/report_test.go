package report_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/report"
)

func sampleReport(id string, score float64, at time.Time) *models.ComplianceReport {
	return &models.ComplianceReport{
		ReportID:    id,
		GeneratedAt: at,
		Document:    models.DocumentInfo{ID: "doc-1", Filename: "course.pdf", Pages: 12, Version: 1},
		DQCVersion:  "1.0",
		OverallCompliance: models.ComplianceSummary{
			Score: score, TotalItems: 2, Passed: 1, Failed: 1,
			RiskDistribution: models.RiskDistribution{High: 1, Low: 1},
		},
		ExecutiveSummary: "The course covers most requirements.",
		Findings: []models.Finding{
			{ItemID: "DQC-001", Status: models.StatusPass, RiskLevel: models.RiskLow, Confidence: 0.9,
				Justification: "Objectives are stated.", EvidenceQuotes: []string{"Learners will be able to..."}},
			{ItemID: "DQC-002", Status: models.StatusFail, RiskLevel: models.RiskHigh, Confidence: 0.8,
				Justification: "No assessment\nfound.", Recommendation: "Add a final assessment."},
		},
		Recommendations: []models.Recommendation{
			{Priority: 1, ItemID: "DQC-002", Action: "Add a final assessment.", RiskImpact: models.RiskHigh},
		},
		Audit: models.AuditInfo{ModelVersion: "llama3.1", PromptVersion: "v1.0", TotalTokensUsed: 45, User: "alice"},
	}
}

func TestJSONSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := report.NewJSONSink(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	older := sampleReport("r-old", 50, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := sampleReport("r-new", 75, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	path, err := sink.Save(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_r-old.json"), path)
	_, err = sink.Save(ctx, newer)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"report_id\": \"r-old\"")

	loaded, err := sink.Load("r-new")
	require.NoError(t, err)
	assert.Equal(t, newer.Findings, loaded.Findings)
	assert.Equal(t, 75.0, loaded.OverallCompliance.Score)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_broken.json"), []byte("{"), 0o644))

	list, err := sink.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-new", list[0].ReportID)
	assert.Equal(t, "r-old", list[1].ReportID)
	assert.Equal(t, "course.pdf", list[0].Filename)
}

func TestJSONSinkLoadMissing(t *testing.T) {
	sink, err := report.NewJSONSink(t.TempDir(), nil)
	require.NoError(t, err)

	for _, id := range []string{"nope", "../etc/passwd", ""} {
		_, err := sink.Load(id)
		assert.ErrorIs(t, err, report.ErrNotFound, id)
	}
}

func TestMarkdownSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := report.NewMarkdownSink(dir, nil)
	require.NoError(t, err)

	path, err := sink.Save(context.Background(), sampleReport("r-1", 50, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_r-1.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "# Compliance Report: course.pdf")
	assert.Contains(t, md, "**Compliance score: 50.0%**")
	assert.Contains(t, md, "DQC-002")
	assert.Contains(t, md, "No assessment found.")
	assert.Contains(t, md, "> Learners will be able to...")
	assert.Contains(t, md, "Add a final assessment.")
	assert.Contains(t, md, "alice")
}

func TestRenderMarkdownWithoutRecommendations(t *testing.T) {
	r := sampleReport("r-2", 100, time.Now())
	r.Recommendations = nil
	assert.Contains(t, report.RenderMarkdown(r), "No recommendations.")
}
