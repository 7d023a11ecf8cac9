package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/internal/types"
	"github.com/xhad/dqcheck/pkg/audit"
	"github.com/xhad/dqcheck/pkg/extractor"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/report"
)

const defaultAPIUser = "api_user"

type uploadResponse struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

type documentEntry struct {
	DocID      string    `json:"doc_id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type startRequest struct {
	FilePath string `json:"file_path"`
	DQCPath  string `json:"dqc_path"`
	User     string `json:"user"`
}

type jobStatus struct {
	JobID      string             `json:"job_id"`
	Stage      models.Stage       `json:"stage"`
	Progress   float64            `json:"progress"`
	Errors     []string           `json:"errors"`
	ReportID   string             `json:"report_id,omitempty"`
	Filename   string             `json:"filename"`
	StageTimes map[string]float64 `json:"stage_times"`
	Mode       string             `json:"mode,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func newShortID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])[:12]
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func supportedUpload(name string) bool {
	_, err := extractor.DetectFormat(name)
	return err == nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean("/" + header.Filename))
	if name == "" || name == "/" || name == "." {
		respondError(w, http.StatusBadRequest, "No filename provided")
		return
	}
	if !supportedUpload(name) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported format: %s", strings.ToLower(filepath.Ext(name))))
		return
	}

	docID := newShortID()
	path := filepath.Join(s.config.UploadDir, docID+"_"+name)
	out, err := os.Create(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	size, copyErr := io.Copy(out, file)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	s.config.Logger.Info("Document uploaded",
		slog.String("doc_id", docID), slog.String("filename", name), slog.Int64("size", size))
	respondJSON(w, http.StatusOK, uploadResponse{DocID: docID, Filename: name, Path: path, SizeBytes: size})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.UploadDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		respondError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	docs := []documentEntry{}
	for _, entry := range entries {
		if entry.IsDir() || !supportedUpload(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docID := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if prefix, _, ok := strings.Cut(entry.Name(), "_"); ok {
			docID = prefix
		}
		docs = append(docs, documentEntry{
			DocID:      docID,
			Filename:   entry.Name(),
			SizeBytes:  info.Size(),
			Path:       filepath.Join(s.config.UploadDir, entry.Name()),
			UploadedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UploadedAt.After(docs[j].UploadedAt) })

	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.FilePath == "" {
		respondError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if !extractor.IsURL(body.FilePath) {
		if _, err := os.Stat(body.FilePath); err != nil {
			respondError(w, http.StatusNotFound, fmt.Sprintf("File not found: %s", body.FilePath))
			return
		}
	}
	if body.User == "" {
		body.User = defaultAPIUser
	}

	jobID := newShortID()
	s.jobs.PutState(models.NewPipelineState(jobID, filepath.Base(body.FilePath)))
	s.startJob(pipeline.Request{
		JobID:         jobID,
		FilePath:      body.FilePath,
		ChecklistPath: body.DQCPath,
		User:          body.User,
	})

	respondJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "started"})
}

// startJob runs the pipeline in the background. Runs are not cancelled
// when the request that started them ends.
func (s *Server) startJob(req pipeline.Request) {
	req.Observer = types.ObserverFunc(func(state models.PipelineState) {
		s.jobs.PutState(state)
		s.hub.Publish(state)
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger := s.config.Logger.With(slog.String("job_id", req.JobID))

		result, err := s.runner.Run(context.Background(), req)
		if err != nil {
			logger.Error("Pipeline background job failed", slog.String("error", err.Error()))
			return
		}
		s.jobs.PutReport(result)
	}()
}

func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	state, ok := s.jobs.State(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	respondJSON(w, http.StatusOK, jobStatus{
		JobID:      jobID,
		Stage:      state.Stage,
		Progress:   state.Progress,
		Errors:     state.Errors,
		ReportID:   state.ReportID,
		Filename:   state.Filename,
		StageTimes: state.StageTimes,
		Mode:       string(state.Mode),
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.reports.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": summaries})
}

// loadReport prefers the job cache and falls back to the report store.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (*models.ComplianceReport, bool) {
	reportID := mux.Vars(r)["report_id"]
	if cached, ok := s.jobs.Report(reportID); ok {
		return cached, true
	}

	loaded, err := s.reports.Load(reportID)
	switch {
	case errors.Is(err, report.ErrNotFound):
		respondError(w, http.StatusNotFound, "Report not found")
		return nil, false
	case err != nil:
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to read report: %v", err))
		return nil, false
	}
	return loaded, true
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if rep, ok := s.loadReport(w, r); ok {
		respondJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report_"+rep.ReportID+".json"))
	_, _ = w.Write(data)
}

func (s *Server) handleDownloadMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report_"+rep.ReportID+".md"))
	_, _ = io.WriteString(w, report.RenderMarkdown(rep))
}

func (s *Server) respondAudit(w http.ResponseWriter, entries []audit.Entry, err error) {
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query audit log")
		return
	}
	for i := range entries {
		entries[i].Result = nil
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": entries})
}

func (s *Server) auditAvailable(w http.ResponseWriter) bool {
	if s.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log is not configured")
		return false
	}
	return true
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if !s.auditAvailable(w) {
		return
	}
	limit := audit.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.audit.Recent(r.Context(), limit)
	s.respondAudit(w, entries, err)
}

func (s *Server) handleAuditByDocument(w http.ResponseWriter, r *http.Request) {
	if !s.auditAvailable(w) {
		return
	}
	entries, err := s.audit.ByDocument(r.Context(), mux.Vars(r)["doc_id"])
	s.respondAudit(w, entries, err)
}

func (s *Server) handleAuditByUser(w http.ResponseWriter, r *http.Request) {
	if !s.auditAvailable(w) {
		return
	}
	entries, err := s.audit.ByUser(r.Context(), mux.Vars(r)["user_id"])
	s.respondAudit(w, entries, err)
}
