// Package httpserver provides the HTTP REST API of the paper ingest service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/database"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
)

// Engine is the part of the ingestion engine the API serves.
// *ingest.Engine implements it.
type Engine interface {
	State() domain.CycleState
	Snapshot() *domain.Snapshot
	GetCorpusSnapshot(f corpus.Filter) (corpus.Page, error)
	RunCycle(ctx context.Context, trigger ingest.Trigger) (ingest.CycleResult, error)
	RunBackfill(ctx context.Context, trigger ingest.Trigger) (ingest.BackfillResult, error)
}

// PaperLookup resolves single papers and their Hub artifacts.
// *huggingface.Client implements it.
type PaperLookup interface {
	LookupPaper(ctx context.Context, arxivID string) (domain.Record, error)
	RelatedArtifacts(ctx context.Context, arxivID string) (huggingface.Artifacts, error)
}

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	engine     Engine
	lookup     PaperLookup
	db         HealthChecker
	logger     zerolog.Logger

	// Runs started with wait=false outlive their request and are bound to
	// baseCtx instead.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithPaperLookup enables the /api/v1/papers endpoints.
func WithPaperLookup(l PaperLookup) Option {
	return func(s *Server) { s.lookup = l }
}

// WithHealthChecker adds a database check to /healthz and /readyz.
// Deployments on the sqlite or file store run without one.
func WithHealthChecker(db HealthChecker) Option {
	return func(s *Server) { s.db = db }
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, engine Engine, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		logger: logger.With().Str("component", "http-server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/records", s.listRecords)
		r.Get("/stats", s.getStats)
		r.Get("/watermark", s.getWatermark)
		r.Get("/ingest/stream", s.streamState)
		r.Post("/ingest/run", s.runIngest)
		r.Post("/backfill/run", s.runBackfill)

		r.Get("/papers/*", s.getPaper)
	})

	return r
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests, cancels background runs and waits for
// them to return.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancelBase()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = fmt.Errorf("waiting for background runs: %w", ctx.Err())
		}
	}
	return err
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler reports readiness along with the engine state.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status":       "ready",
		"engine_state": string(s.engine.State()),
	}
	if s.db != nil {
		health := s.db.Health(r.Context())
		if health.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": health.Status,
				"error":    health.Error,
			})
			return
		}
		resp["database"] = "healthy"
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
