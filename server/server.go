// Package server exposes the evaluation pipeline over HTTP under /api/v1,
// with WebSocket progress streaming.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/audit"
	"github.com/xhad/dqcheck/pkg/jobs"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/report"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*models.ComplianceReport, error)
}

type ReportStore interface {
	Load(reportID string) (*models.ComplianceReport, error)
	List() ([]report.Summary, error)
}

type AuditLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
	ByDocument(ctx context.Context, docID string) ([]audit.Entry, error)
	ByUser(ctx context.Context, userID string) ([]audit.Entry, error)
}

type Config struct {
	Host          string
	Port          int
	UploadDir     string
	MaxUploadSize int64
	QueueSize     int
	Heartbeat     time.Duration
	JobRetention  time.Duration
	Logger        *slog.Logger
}

// Deps are the services behind the API. Audit may be nil.
type Deps struct {
	Runner  Runner
	Jobs    *jobs.Store
	Reports ReportStore
	Audit   AuditLog
}

type Server struct {
	config  Config
	runner  Runner
	jobs    *jobs.Store
	reports ReportStore
	audit   AuditLog
	hub     *Hub
	wg      sync.WaitGroup
}

func New(config Config, deps Deps) (*Server, error) {
	if config.Host == "" {
		config.Host = "0.0.0.0"
	}
	if config.Port == 0 {
		config.Port = 8000
	}
	if config.UploadDir == "" {
		config.UploadDir = "data/uploads"
	}
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = 100 << 20
	}
	if config.Heartbeat <= 0 {
		config.Heartbeat = 30 * time.Second
	}
	if config.JobRetention <= 0 {
		config.JobRetention = 24 * time.Hour
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if deps.Runner == nil || deps.Reports == nil {
		return nil, fmt.Errorf("server requires a runner and a report store")
	}
	if deps.Jobs == nil {
		deps.Jobs = jobs.New(config.Logger)
	}
	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &Server{
		config:  config,
		runner:  deps.Runner,
		jobs:    deps.Jobs,
		reports: deps.Reports,
		audit:   deps.Audit,
		hub:     NewHub(config.QueueSize),
	}, nil
}

// SetupRoutes registers the API on a new router.
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/documents/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)

	api.HandleFunc("/analysis/start", s.handleStartAnalysis).Methods(http.MethodPost)
	api.HandleFunc("/analysis/{job_id}/status", s.handleAnalysisStatus).Methods(http.MethodGet)
	api.HandleFunc("/analysis/{job_id}/ws", s.handleAnalysisWS).Methods(http.MethodGet)

	api.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	api.HandleFunc("/reports/{report_id}", s.handleGetReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/{report_id}/json", s.handleDownloadJSON).Methods(http.MethodGet)
	api.HandleFunc("/reports/{report_id}/markdown", s.handleDownloadMarkdown).Methods(http.MethodGet)

	api.HandleFunc("/audit/recent", s.handleAuditRecent).Methods(http.MethodGet)
	api.HandleFunc("/audit/document/{doc_id}", s.handleAuditByDocument).Methods(http.MethodGet)
	api.HandleFunc("/audit/user/{user_id}", s.handleAuditByUser).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with recovery and request logging.
func (s *Server) Handler() http.Handler {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.HandlerFunc(s.logRequest))
	n.UseHandler(s.SetupRoutes())
	return n
}

func (s *Server) logRequest(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(rw, r)

	status := 0
	if res, ok := rw.(negroni.ResponseWriter); ok {
		status = res.Status()
	}
	s.config.Logger.Debug("HTTP request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight jobs.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.jobs.StartCleanup(ctx, s.config.JobRetention, time.Hour)

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:           s.Handler(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("Starting API server", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	s.Wait()
	return nil
}

// Wait blocks until background jobs have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
