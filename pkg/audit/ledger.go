// Package audit keeps an append-only SQLite trail of completed evaluations.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
)

const DefaultRecentLimit = 20

// fixed width keeps lexical order equal to time order
const timestampLayout = "2006-01-02T15:04:05.000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    audit_id        TEXT PRIMARY KEY,
    evaluation_id   TEXT NOT NULL,
    doc_id          TEXT NOT NULL,
    filename        TEXT,
    dqc_version     TEXT,
    model_version   TEXT,
    embedding_model TEXT,
    prompt_version  TEXT,
    total_tokens    INTEGER,
    score           REAL,
    passed          INTEGER,
    failed          INTEGER,
    partial         INTEGER,
    processing_time REAL,
    user_id         TEXT,
    result_json     TEXT,
    timestamp       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_doc ON audit_log(doc_id);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
`

const selectColumns = `audit_id, evaluation_id, doc_id, filename, dqc_version, model_version,
embedding_model, prompt_version, total_tokens, score, passed, failed, partial,
processing_time, user_id, result_json, timestamp`

// Entry is one audit_log row.
type Entry struct {
	AuditID        string          `json:"audit_id"`
	EvaluationID   string          `json:"evaluation_id"`
	DocID          string          `json:"doc_id"`
	Filename       string          `json:"filename"`
	DQCVersion     string          `json:"dqc_version"`
	ModelVersion   string          `json:"model_version"`
	EmbeddingModel string          `json:"embedding_model"`
	PromptVersion  string          `json:"prompt_version"`
	TotalTokens    int             `json:"total_tokens"`
	Score          float64         `json:"score"`
	Passed         int             `json:"passed"`
	Failed         int             `json:"failed"`
	Partial        int             `json:"partial"`
	ProcessingTime float64         `json:"processing_time"`
	UserID         string          `json:"user_id"`
	Result         json.RawMessage `json:"result_json,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

type LedgerConfig struct {
	Path   string
	Logger *slog.Logger
}

type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ types.AuditSink = (*Ledger)(nil)

func NewWithConfig(config LedgerConfig) (*Ledger, error) {
	if config.Path == "" {
		config.Path = "data/audit.db"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}

	config.Logger.Debug("Audit DB initialised", slog.String("path", config.Path))
	return &Ledger{db: db, logger: config.Logger, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one row for a completed evaluation and returns its audit id.
func (l *Ledger) Record(ctx context.Context, report *models.ComplianceReport, docID, user string) (string, error) {
	result, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	auditID := uuid.NewString()
	oc := report.OverallCompliance
	_, err = l.db.ExecContext(ctx, `INSERT INTO audit_log (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		auditID,
		report.ReportID,
		docID,
		report.Document.Filename,
		report.DQCVersion,
		report.Audit.ModelVersion,
		report.Audit.EmbeddingModel,
		report.Audit.PromptVersion,
		report.Audit.TotalTokensUsed,
		oc.Score,
		oc.Passed,
		oc.Failed,
		oc.Partial,
		report.Audit.ProcessingTimeSeconds,
		user,
		string(result),
		l.now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert audit record: %w", err)
	}

	l.logger.Info("Audit record saved", slog.String("audit_id", auditID), slog.String("doc_id", docID))
	return auditID, nil
}

// Recent returns the newest records. A non-positive limit uses DefaultRecentLimit.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return l.query(ctx, `SELECT `+selectColumns+` FROM audit_log
		ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
}

func (l *Ledger) ByDocument(ctx context.Context, docID string) ([]Entry, error) {
	return l.query(ctx, `SELECT `+selectColumns+` FROM audit_log
		WHERE doc_id = ? ORDER BY timestamp DESC, rowid DESC`, docID)
}

func (l *Ledger) ByUser(ctx context.Context, userID string) ([]Entry, error) {
	return l.query(ctx, `SELECT `+selectColumns+` FROM audit_log
		WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC`, userID)
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                                        Entry
			filename, dqc, model, embed, prompt, usr sql.NullString
			result                                   sql.NullString
			ts                                       string
		)
		if err := rows.Scan(&e.AuditID, &e.EvaluationID, &e.DocID, &filename, &dqc, &model,
			&embed, &prompt, &e.TotalTokens, &e.Score, &e.Passed, &e.Failed, &e.Partial,
			&e.ProcessingTime, &usr, &result, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.Filename, e.DQCVersion, e.ModelVersion = filename.String, dqc.String, model.String
		e.EmbeddingModel, e.PromptVersion, e.UserID = embed.String, prompt.String, usr.String
		if result.Valid && result.String != "" {
			e.Result = json.RawMessage(result.String)
		}
		if e.Timestamp, err = time.Parse(timestampLayout, ts); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit rows: %w", err)
	}
	return entries, nil
}
