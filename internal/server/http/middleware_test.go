package httpserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/observability"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var captured string
	r := chi.NewRouter()
	r.Use(correlationIDMiddleware)
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		captured = observability.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("propagates header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Correlation-ID", "abc-123")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if captured != "abc-123" {
			t.Errorf("expected abc-123 in context, got %q", captured)
		}
		if rr.Header().Get("X-Correlation-ID") != "abc-123" {
			t.Errorf("expected header echoed, got %q", rr.Header().Get("X-Correlation-ID"))
		}
	})

	t.Run("generates when absent", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		if captured == "" {
			t.Fatal("expected a generated correlation id")
		}
		if rr.Header().Get("X-Correlation-ID") != captured {
			t.Errorf("header %q does not match context %q", rr.Header().Get("X-Correlation-ID"), captured)
		}
	})
}

func TestJSONContentTypeMiddleware(t *testing.T) {
	h := jsonContentTypeMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestRequestLogMiddleware_ServerErrorLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(requestLogMiddleware(logger))
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/fail", nil))

	out := buf.String()
	if out == "" {
		t.Fatal("expected a log line")
	}
	for _, want := range []string{`"level":"warn"`, `"status":502`, `"path":"/fail"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %s missing %s", out, want)
		}
	}
}
