package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/xhad/dqcheck/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 10 * time.Second

type progressMessage struct {
	Type     string   `json:"type"`
	JobID    string   `json:"job_id"`
	Stage    string   `json:"stage"`
	Progress float64  `json:"progress"`
	Errors   []string `json:"errors"`
	ReportID string   `json:"report_id,omitempty"`
	Filename string   `json:"filename"`
}

func newProgressMessage(state models.PipelineState) progressMessage {
	errs := state.Errors
	if errs == nil {
		errs = []string{}
	}
	return progressMessage{
		Type:     "progress",
		JobID:    state.JobID,
		Stage:    string(state.Stage),
		Progress: state.Progress,
		Errors:   errs,
		ReportID: state.ReportID,
		Filename: state.Filename,
	}
}

// handleAnalysisWS streams job progress: the current snapshot first, then
// every update, with heartbeats while idle. It closes on a terminal stage.
func (s *Server) handleAnalysisWS(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	logger := s.config.Logger.With(slog.String("job_id", jobID))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.hub.Subscribe(jobID)
	defer unsubscribe()

	snapshot, ok := s.jobs.State(jobID)
	if !ok {
		s.writeJSON(conn, map[string]string{"type": "error", "message": "Job not found"}, logger)
		closeNormal(conn)
		return
	}
	if !s.writeJSON(conn, newProgressMessage(snapshot), logger) {
		return
	}
	if snapshot.Stage.Terminal() {
		closeNormal(conn)
		return
	}

	// The read loop notices client disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	last := snapshot
	for {
		select {
		case state := <-updates:
			if stale(last, state) {
				continue
			}
			if !s.writeJSON(conn, newProgressMessage(state), logger) {
				return
			}
			last = state
			if state.Stage.Terminal() {
				closeNormal(conn)
				return
			}
			heartbeat.Reset(s.config.Heartbeat)
		case <-heartbeat.C:
			if !s.writeJSON(conn, map[string]string{"type": "heartbeat"}, logger) {
				return
			}
		case <-gone:
			logger.Debug("WS client disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

// stale reports whether next was published before the last state sent.
// The job store is written before the hub publishes, so a subscriber can
// receive a queued update older than its snapshot.
func stale(last, next models.PipelineState) bool {
	if next.UpdatedAt.Before(last.UpdatedAt) {
		return true
	}
	return next.UpdatedAt.Equal(last.UpdatedAt) && !next.Stage.Terminal()
}

func (s *Server) writeJSON(conn *websocket.Conn, v any, logger *slog.Logger) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		logger.Debug("Error sending message", slog.String("error", err.Error()))
		return false
	}
	return true
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
