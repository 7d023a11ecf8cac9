// Package report persists compliance reports as JSON and Markdown files.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

var ErrNotFound = errors.New("report not found")

// Summary is the listing view of a stored report.
type Summary struct {
	ReportID    string    `json:"report_id"`
	Filename    string    `json:"filename"`
	Score       float64   `json:"score"`
	GeneratedAt time.Time `json:"generated_at"`
	Path        string    `json:"path"`
}

type JSONSink struct {
	dir    string
	logger *slog.Logger
}

var _ types.ReportSink = (*JSONSink)(nil)

func NewJSONSink(dir string, logger *slog.Logger) (*JSONSink, error) {
	if dir == "" {
		dir = "reports"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &JSONSink{dir: dir, logger: logger}, nil
}

func jsonName(reportID string) string {
	return "report_" + reportID + ".json"
}

// Save writes report_<id>.json and returns its path.
func (s *JSONSink) Save(ctx context.Context, report *models.ComplianceReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(s.dir, jsonName(report.ReportID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	s.logger.Info("JSON report saved", slog.String("path", path))
	return path, nil
}

// Load reads a stored report by id.
func (s *JSONSink) Load(reportID string) (*models.ComplianceReport, error) {
	if reportID == "" || strings.ContainsAny(reportID, `/\`) || strings.Contains(reportID, "..") {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, reportID)
	}
	return s.loadPath(filepath.Join(s.dir, jsonName(reportID)))
}

func (s *JSONSink) loadPath(path string) (*models.ComplianceReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report models.ComplianceReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", filepath.Base(path), err)
	}
	return &report, nil
}

// List returns stored reports, newest first. Unreadable files are skipped.
func (s *JSONSink) List() ([]Summary, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "report_*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	summaries := make([]Summary, 0, len(paths))
	for _, path := range paths {
		report, err := s.loadPath(path)
		if err != nil {
			s.logger.Warn("Skipping unreadable report", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		summaries = append(summaries, Summary{
			ReportID:    report.ReportID,
			Filename:    report.Document.Filename,
			Score:       report.OverallCompliance.Score,
			GeneratedAt: report.GeneratedAt,
			Path:        path,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].GeneratedAt.After(summaries[j].GeneratedAt)
	})
	return summaries, nil
}
