package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
)

func stateAt(jobID string, stage models.Stage, at time.Time) models.PipelineState {
	s := models.NewPipelineState(jobID, jobID+".pdf")
	s.Stage = stage
	s.UpdatedAt = at
	return s
}

func TestStoreStateIsCopied(t *testing.T) {
	s := New(nil)
	state := stateAt("j1", models.StageIngestion, time.Now())
	s.PutState(state)

	state.Errors = append(state.Errors, "mutated")
	got, ok := s.State("j1")
	require.True(t, ok)
	assert.Empty(t, got.Errors)

	got.StageTimes["x"] = 1
	again, _ := s.State("j1")
	assert.NotContains(t, again.StageTimes, "x")

	_, ok = s.State("missing")
	assert.False(t, ok)
}

func TestStoreList(t *testing.T) {
	s := New(nil)
	base := time.Now()
	s.PutState(stateAt("old", models.StageCompleted, base.Add(-time.Hour)))
	s.PutState(stateAt("new", models.StageEvaluation, base))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].JobID)
}

func TestStoreCleanup(t *testing.T) {
	s := New(nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	done := stateAt("done", models.StageCompleted, now.Add(-48*time.Hour))
	done.ReportID = "r-done"
	s.PutState(done)
	s.PutReport(&models.ComplianceReport{ReportID: "r-done"})
	s.PutState(stateAt("failed-recent", models.StageFailed, now.Add(-time.Hour)))
	s.PutState(stateAt("running-old", models.StageEvaluation, now.Add(-48*time.Hour)))

	assert.Equal(t, 1, s.Cleanup(24*time.Hour))

	_, ok := s.State("done")
	assert.False(t, ok)
	_, ok = s.Report("r-done")
	assert.False(t, ok)
	_, ok = s.State("failed-recent")
	assert.True(t, ok)
	_, ok = s.State("running-old")
	assert.True(t, ok)
}

func TestStoreStartCleanup(t *testing.T) {
	s := New(nil)
	s.PutState(stateAt("done", models.StageCompleted, time.Now().Add(-time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartCleanup(ctx, time.Minute, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := s.State("done")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
