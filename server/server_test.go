package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/audit"
	"github.com/xhad/dqcheck/pkg/jobs"
	"github.com/xhad/dqcheck/pkg/pipeline"
	"github.com/xhad/dqcheck/pkg/report"
)

// fakeRunner emits ingestion, optionally waits for release, then completes
// or fails.
type fakeRunner struct {
	release chan struct{}
	fail    error

	mu       sync.Mutex
	requests []pipeline.Request
}

func (f *fakeRunner) Run(ctx context.Context, req pipeline.Request) (*models.ComplianceReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	state := models.NewPipelineState(req.JobID, filepath.Base(req.FilePath))
	emit := func(stage models.Stage, progress float64) {
		state.Stage = stage
		state.Progress = progress
		state.UpdatedAt = time.Now()
		req.Observer.OnStageChanged(state.Clone())
	}

	emit(models.StageIngestion, 5)
	if f.release != nil {
		<-f.release
	}
	if f.fail != nil {
		state.Errors = append(state.Errors, f.fail.Error())
		emit(models.StageFailed, 5)
		return nil, f.fail
	}

	rep := &models.ComplianceReport{
		ReportID:    "rep-" + req.JobID,
		GeneratedAt: time.Now().UTC(),
		Document:    models.DocumentInfo{ID: "doc", Filename: state.Filename},
		Audit:       models.AuditInfo{User: req.User},
	}
	state.ReportID = rep.ReportID
	emit(models.StageCompleted, 100)
	return rep, nil
}

func (f *fakeRunner) lastRequest() pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	sink   *report.JSONSink
	ledger *audit.Ledger
	dir    string
}

func newTestEnv(t *testing.T, runner Runner, heartbeat time.Duration) *testEnv {
	t.Helper()
	dir := t.TempDir()

	sink, err := report.NewJSONSink(filepath.Join(dir, "reports"), nil)
	require.NoError(t, err)
	ledger, err := audit.NewWithConfig(audit.LedgerConfig{Path: filepath.Join(dir, "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	s, err := New(Config{
		UploadDir: filepath.Join(dir, "uploads"),
		Heartbeat: heartbeat,
	}, Deps{Runner: runner, Jobs: jobs.New(nil), Reports: sink, Audit: ledger})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: s, http: ts, sink: sink, ledger: ledger, dir: dir}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (e *testEnv) startJob(t *testing.T, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(e.http.URL+"/api/v1/analysis/start", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func writeDoc(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "course.md")
	require.NoError(t, os.WriteFile(path, []byte("# Course\n\nContent."), 0o644))
	return path
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{}, 0)
	resp, body := env.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func upload(t *testing.T, env *testEnv, name, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.http.URL+"/api/v1/documents/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadAndListDocuments(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{}, 0)

	resp := upload(t, env, "syllabus.md", "# Syllabus")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	assert.Len(t, up.DocID, 12)
	assert.Equal(t, "syllabus.md", up.Filename)
	assert.Equal(t, int64(len("# Syllabus")), up.SizeBytes)
	assert.Equal(t, up.DocID+"_syllabus.md", filepath.Base(up.Path))
	assert.FileExists(t, up.Path)

	bad := upload(t, env, "tool.exe", "MZ")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	_, body := env.get(t, "/api/v1/documents")
	var list struct {
		Documents []documentEntry `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Documents, 1)
	assert.Equal(t, up.DocID, list.Documents[0].DocID)
}

func TestStartAnalysis(t *testing.T) {
	runner := &fakeRunner{}
	env := newTestEnv(t, runner, 0)

	status, out := env.startJob(t, `{"file_path":"/does/not/exist.pdf"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, out["error"], "File not found")

	status, out = env.startJob(t, `{"file_path":"`+writeDoc(t, env.dir)+`","dqc_path":"custom.json"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "started", out["status"])
	jobID := out["job_id"]
	require.Len(t, jobID, 12)

	env.server.Wait()
	req := runner.lastRequest()
	assert.Equal(t, "custom.json", req.ChecklistPath)
	assert.Equal(t, defaultAPIUser, req.User)

	resp, body := env.get(t, "/api/v1/analysis/"+jobID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var js jobStatus
	require.NoError(t, json.Unmarshal(body, &js))
	assert.Equal(t, models.StageCompleted, js.Stage)
	assert.Equal(t, 100.0, js.Progress)
	assert.Equal(t, "rep-"+jobID, js.ReportID)

	// served from the job cache; nothing was written to disk
	resp, body = env.get(t, "/api/v1/reports/rep-"+jobID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"report_id":"rep-`+jobID+`"`)

	resp, body = env.get(t, "/api/v1/reports/rep-"+jobID+"/markdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "# Compliance Report: course.md")

	resp, _ = env.get(t, "/api/v1/analysis/unknown/status")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartAnalysisFailure(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{fail: errors.New("extraction failed")}, 0)

	_, out := env.startJob(t, `{"file_path":"`+writeDoc(t, env.dir)+`"}`)
	env.server.Wait()

	state, ok := env.server.jobs.State(out["job_id"])
	require.True(t, ok)
	assert.Equal(t, models.StageFailed, state.Stage)
	assert.Equal(t, []string{"extraction failed"}, state.Errors)
}

func TestReportsFromDisk(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{}, 0)
	_, err := env.sink.Save(context.Background(), &models.ComplianceReport{
		ReportID:          "disk-1",
		GeneratedAt:       time.Now().UTC(),
		Document:          models.DocumentInfo{Filename: "a.pdf"},
		OverallCompliance: models.ComplianceSummary{Score: 80},
	})
	require.NoError(t, err)

	_, body := env.get(t, "/api/v1/reports")
	var list struct {
		Reports []report.Summary `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Reports, 1)
	assert.Equal(t, 80.0, list.Reports[0].Score)

	resp, body := env.get(t, "/api/v1/reports/disk-1/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "report_disk-1.json")
	assert.Contains(t, string(body), "\n  \"report_id\": \"disk-1\"")

	resp, _ = env.get(t, "/api/v1/reports/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuditEndpoints(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{}, 0)
	ctx := context.Background()
	for _, user := range []string{"alice", "bob"} {
		_, err := env.ledger.Record(ctx, &models.ComplianceReport{ReportID: "r-" + user}, "doc-1", user)
		require.NoError(t, err)
	}

	type records struct {
		Records []map[string]any `json:"records"`
	}
	decode := func(body []byte) records {
		var r records
		require.NoError(t, json.Unmarshal(body, &r))
		return r
	}

	_, body := env.get(t, "/api/v1/audit/recent?limit=1")
	recent := decode(body)
	require.Len(t, recent.Records, 1)
	assert.NotContains(t, recent.Records[0], "result_json")

	resp, _ := env.get(t, "/api/v1/audit/recent?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = env.get(t, "/api/v1/audit/document/doc-1")
	assert.Len(t, decode(body).Records, 2)

	_, body = env.get(t, "/api/v1/audit/user/bob")
	byUser := decode(body)
	require.Len(t, byUser.Records, 1)
	assert.Equal(t, "r-bob", byUser.Records[0]["evaluation_id"])
}
