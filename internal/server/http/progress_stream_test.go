package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// readEvent reads the next SSE event from the stream.
func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var eventType string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev sseEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("bad event payload %q: %v", line, err)
			}
			if ev.EventType != eventType {
				t.Fatalf("event line %q does not match payload type %q", eventType, ev.EventType)
			}
			return ev
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return sseEvent{}
}

func TestStreamState(t *testing.T) {
	engine := &mockEngine{state: domain.CycleStateFetching}
	ts := httptest.NewServer(newTestServer(engine).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/ingest/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	first := readEvent(t, sc)
	if first.EventType != "stream_started" || first.State != "fetching" {
		t.Fatalf("unexpected first event: %+v", first)
	}

	newest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	engine.setSnapshot(&domain.Snapshot{
		Records:       []domain.Record{testRecord("x", newest)},
		Watermark:     domain.Watermark{Newest: newest, Oldest: newest},
		LastFetchTime: newest,
	})
	engine.setState(domain.CycleStateIdle)

	updated := readEvent(t, sc)
	if updated.EventType != "corpus_updated" || updated.Watermark.CorpusSize != 1 {
		t.Fatalf("expected corpus_updated with one record, got %+v", updated)
	}
	finished := readEvent(t, sc)
	if finished.EventType != "cycle_finished" || finished.State != "idle" {
		t.Fatalf("expected cycle_finished, got %+v", finished)
	}
}

func TestStateEventType(t *testing.T) {
	if got := stateEventType(domain.CycleStateIdle); got != "cycle_finished" {
		t.Errorf("expected cycle_finished, got %s", got)
	}
	if got := stateEventType(domain.CycleStateMerging); got != "state_changed" {
		t.Errorf("expected state_changed, got %s", got)
	}
}
