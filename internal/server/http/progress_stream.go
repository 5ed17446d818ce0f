package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

const (
	// ssePollInterval is how often the engine state is sampled.
	ssePollInterval = time.Second
	// sseMaxDuration is the maximum time an SSE stream may remain open.
	sseMaxDuration = time.Hour
)

// sseEvent represents an event sent via SSE.
type sseEvent struct {
	EventType string            `json:"event_type"`
	State     string            `json:"state"`
	Watermark watermarkResponse `json:"watermark"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// streamState handles GET /api/v1/ingest/stream (SSE). It sends the current
// engine state, then one event per state change and one per corpus update,
// until the client disconnects or sseMaxDuration passes.
func (s *Server) streamState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	state := s.engine.State()
	snap := s.engine.Snapshot()
	sendSSEEvent(w, flusher, sseEvent{
		EventType: "stream_started",
		State:     string(state),
		Watermark: watermarkToResponse(snap),
		Timestamp: time.Now(),
	})

	deadline := time.NewTimer(sseMaxDuration)
	defer deadline.Stop()
	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-deadline.C:
			sendSSEEvent(w, flusher, sseEvent{
				EventType: "timeout",
				State:     string(s.engine.State()),
				Message:   "stream max duration exceeded",
				Timestamp: time.Now(),
			})
			return

		case <-ticker.C:
			current := s.engine.State()
			currentSnap := s.engine.Snapshot()

			if !currentSnap.LastFetchTime.Equal(snap.LastFetchTime) || len(currentSnap.Records) != len(snap.Records) {
				snap = currentSnap
				sendSSEEvent(w, flusher, sseEvent{
					EventType: "corpus_updated",
					State:     string(current),
					Watermark: watermarkToResponse(snap),
					Timestamp: time.Now(),
				})
			}
			if current != state {
				state = current
				sendSSEEvent(w, flusher, sseEvent{
					EventType: stateEventType(current),
					State:     string(current),
					Watermark: watermarkToResponse(snap),
					Timestamp: time.Now(),
				})
			}
		}
	}
}

func stateEventType(state domain.CycleState) string {
	if state == domain.CycleStateIdle {
		return "cycle_finished"
	}
	return "state_changed"
}

// sendSSEEvent writes a single SSE event to the response writer.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event sseEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
	flusher.Flush()
}
