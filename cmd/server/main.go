// Package main provides the entry point for the paper ingest server. It
// serves the HTTP API, runs the in-process scheduler and consumes Kafka
// trigger requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/events"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/scheduler"
	httpserver "github.com/helixir/paper-ingest-service/internal/server/http"
)

const (
	serviceName       = "paper-ingest-service"
	healthServiceName = "paperingest.v1.PaperIngestService"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-ingest-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Store, providers and engine.
	a, err := app.New(ctx, cfg, logger, app.Options{Metrics: metrics, ServiceName: serviceName})
	if err != nil {
		return err
	}
	defer a.Close()

	snap := a.Engine.Snapshot()
	logger.Info().
		Int("corpus_size", len(snap.Records)).
		Time("newest", snap.Watermark.Newest).
		Strs("providers", sourceNames(a)).
		Msg("engine loaded")

	// gRPC health endpoint for orchestrators.
	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(100),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcAddr := cfg.Server.GRPCAddress()
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	// HTTP API.
	httpOpts := []httpserver.Option{httpserver.WithPaperLookup(a.Lookup)}
	if a.DB != nil {
		httpOpts = append(httpOpts, httpserver.WithHealthChecker(a.DB))
	}
	httpCfg := httpserver.Config{
		Address:      cfg.Server.HTTPAddress(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // The progress stream holds connections open.
		IdleTimeout:  2 * time.Minute,
	}
	httpSrv := httpserver.NewServer(httpCfg, a.Engine, logger, httpOpts...)

	// Prometheus metrics on a separate port.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 4)

	go func() {
		logger.Info().Str("address", grpcAddr).Msg("gRPC health server starting")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		logger.Info().Str("address", httpCfg.Address).Msg("HTTP API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Kafka trigger listener.
	var listener *events.TriggerListener
	if cfg.Kafka.Enabled && cfg.Kafka.TriggerTopic != "" {
		listener = events.NewTriggerListener(events.ListenerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.TriggerTopic,
			GroupID: cfg.Kafka.GroupID,
		}, a.Engine, logger)
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close trigger listener")
			}
		}()

		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("trigger listener error: %w", err)
			}
		}()

		logger.Info().
			Str("topic", cfg.Kafka.TriggerTopic).
			Str("group_id", cfg.Kafka.GroupID).
			Msg("trigger listener started")
	}

	// Scheduler.
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(scheduler.Config{
			Spec:       cfg.Scheduler.Spec,
			RunOnStart: cfg.Scheduler.RunOnStart,
		}, a.Engine, logger)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start()
		logger.Info().
			Str("spec", cfg.Scheduler.Spec).
			Time("next_run", sched.Next()).
			Msg("scheduler started")
	}

	readyLog := logger.Info().
		Str("grpc_address", grpcAddr).
		Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-ingest-service is ready")

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-ingest-service")
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop new scheduled cycles and wait for a running one.
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("scheduler did not stop in time")
		}
	}

	// Cancels background cycles started over HTTP and waits for them.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info().Msg("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		grpcServer.Stop()
	}

	logger.Info().Msg("paper-ingest-service shutdown complete")
	return runErr
}

func sourceNames(a *app.App) []string {
	sources := a.Gateway.EnabledSources()
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return names
}
