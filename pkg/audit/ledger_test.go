package audit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewWithConfig(LedgerConfig{Path: filepath.Join(t.TempDir(), "nested", "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return l
}

func testReport(id string) *models.ComplianceReport {
	return &models.ComplianceReport{
		ReportID:   id,
		Document:   models.DocumentInfo{ID: "doc", Filename: "course.pdf"},
		DQCVersion: "1.0",
		OverallCompliance: models.ComplianceSummary{
			Score: 66.7, TotalItems: 3, Passed: 2, Failed: 1,
		},
		Audit: models.AuditInfo{ModelVersion: "llama3.1", EmbeddingModel: "nomic-embed-text", PromptVersion: "v1.0", TotalTokensUsed: 120, ProcessingTimeSeconds: 1.5},
	}
}

func TestLedgerRecordAndQuery(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Record(ctx, testReport("r1"), "doc-a", "alice")
	require.NoError(t, err)
	_, err = l.Record(ctx, testReport("r2"), "doc-b", "bob")
	require.NoError(t, err)
	third, err := l.Record(ctx, testReport("r3"), "doc-a", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	recent, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "r3", recent[0].EvaluationID)
	assert.Equal(t, "r1", recent[2].EvaluationID)

	limited, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, third, limited[0].AuditID)

	byDoc, err := l.ByDocument(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, byDoc, 2)
	assert.Equal(t, []string{"r3", "r1"}, []string{byDoc[0].EvaluationID, byDoc[1].EvaluationID})

	byUser, err := l.ByUser(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	none, err := l.ByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedgerRowContents(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, testReport("r1"), "doc-a", "alice")
	require.NoError(t, err)

	entries, err := l.ByDocument(ctx, "doc-a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]

	assert.Equal(t, "course.pdf", e.Filename)
	assert.Equal(t, "1.0", e.DQCVersion)
	assert.Equal(t, "llama3.1", e.ModelVersion)
	assert.Equal(t, 120, e.TotalTokens)
	assert.InDelta(t, 66.7, e.Score, 1e-9)
	assert.Equal(t, 2, e.Passed)
	assert.Equal(t, 1, e.Failed)
	assert.Equal(t, "alice", e.UserID)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC), e.Timestamp)

	var stored models.ComplianceReport
	require.NoError(t, json.Unmarshal(e.Result, &stored))
	assert.Equal(t, "r1", stored.ReportID)
}
