package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/researchgpt/evidence-service/internal/domain"
)

const (
	// sseHeartbeatInterval is the default interval between comment frames
	// keeping an idle stream alive. Config.HeartbeatInterval overrides it.
	sseHeartbeatInterval = 30 * time.Second

	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = 4 * time.Hour
)

// streamEvents handles GET /api/v1/runs/{runID}/stream (SSE).
// The stream carries only events appended after it opens; clients wanting
// full history fetch the events endpoint first, then subscribe.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.runs.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.eventLog.Subscribe(runID)
	defer s.eventLog.Unsubscribe(sub)

	sendSSEFrame(w, flusher, "stream_started", map[string]string{
		"run_id": runID.String(),
		"status": string(run.Status),
	})

	deadlineTimer := time.NewTimer(sseMaxDuration)
	defer deadlineTimer.Stop()
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadlineTimer.C:
			sendSSEFrame(w, flusher, "timeout", map[string]string{
				"run_id":  runID.String(),
				"message": "stream max duration exceeded",
			})
			return

		case event, open := <-sub.Events():
			if !open {
				return
			}
			sendSSEEvent(w, flusher, event)
			if isTerminalEventKind(event.EventKind) {
				return
			}

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// sendSSEEvent writes a single event frame keyed by the event kind.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event *domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventKind, data)
	flusher.Flush()
}

// sendSSEFrame writes a control frame with an arbitrary payload.
func sendSSEFrame(w http.ResponseWriter, flusher http.Flusher, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

// isTerminalEventKind returns true if no further events will follow on
// this run's current job.
func isTerminalEventKind(kind string) bool {
	return kind == domain.EventKindComplete || kind == domain.EventKindError
}
