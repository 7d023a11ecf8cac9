// Package jobs holds in-flight and recently finished pipeline runs.
package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

type Store struct {
	mu      sync.RWMutex
	states  map[string]models.PipelineState
	reports map[string]*models.ComplianceReport
	logger  *slog.Logger
	now     func() time.Time
}

var _ types.JobStore = (*Store)(nil)

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		states:  make(map[string]models.PipelineState),
		reports: make(map[string]*models.ComplianceReport),
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) PutState(state models.PipelineState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.JobID] = state.Clone()
}

func (s *Store) State(jobID string) (models.PipelineState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[jobID]
	if !ok {
		return models.PipelineState{}, false
	}
	return state.Clone(), true
}

// List returns all known jobs, most recently updated first.
func (s *Store) List() []models.PipelineState {
	s.mu.RLock()
	out := make([]models.PipelineState, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, state.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *Store) PutReport(report *models.ComplianceReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ReportID] = report
}

func (s *Store) Report(reportID string) (*models.ComplianceReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[reportID]
	return report, ok
}

// StartCleanup evicts terminal jobs older than retention, and their reports,
// every interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Cleanup(retention)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Cleanup runs one eviction pass and returns the number of jobs removed.
func (s *Store) Cleanup(retention time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jobID, state := range s.states {
		if !state.Stage.Terminal() || now.Sub(state.UpdatedAt) <= retention {
			continue
		}
		delete(s.states, jobID)
		if state.ReportID != "" {
			delete(s.reports, state.ReportID)
		}
		removed++
		s.logger.Debug("Evicted job", slog.String("job_id", jobID))
	}
	return removed
}
