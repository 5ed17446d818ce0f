// Package main provides the entry point for the paper ingest Temporal worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/temporal"
	"github.com/helixir/paper-ingest-service/internal/temporal/activities"
	"github.com/helixir/paper-ingest-service/internal/temporal/workflows"
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
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("paper-ingest-service worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer := &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown error")
			}
		}()
	}

	// Store, providers and engine.
	a, err := app.New(ctx, cfg, logger, app.Options{Metrics: metrics, ServiceName: "paper-ingest-worker"})
	if err != nil {
		return err
	}
	defer a.Close()

	// Create Temporal client.
	temporalClient, err := temporal.NewClient(temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
		Logger:    observability.NewTemporalLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	ingestionClient := temporal.NewIngestionClient(temporalClient, cfg.Temporal.TaskQueue)
	defer ingestionClient.Close()
	logger.Info().
		Str("host_port", cfg.Temporal.HostPort).
		Str("namespace", cfg.Temporal.Namespace).
		Msg("temporal client connected")

	// Create WorkerManager.
	manager, err := temporal.NewWorkerManager(temporalClient, temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue))
	if err != nil {
		return fmt.Errorf("create worker manager: %w", err)
	}

	manager.RegisterWorkflow(workflows.IngestionWorkflow, temporal.IngestionWorkflowName)
	manager.RegisterActivity(activities.NewCycleActivities(a.Engine))

	// Register the cron workflow if configured.
	if cfg.Temporal.CronSchedule != "" {
		runID, err := ingestionClient.EnsureSchedule(ctx, cfg.Temporal.WorkflowID, cfg.Temporal.CronSchedule,
			temporal.IngestionWorkflowInput{RequestedBy: "schedule"})
		if err != nil {
			return fmt.Errorf("ensure ingestion schedule: %w", err)
		}
		logger.Info().
			Str("workflow_id", cfg.Temporal.WorkflowID).
			Str("run_id", runID).
			Str("cron", cfg.Temporal.CronSchedule).
			Msg("ingestion schedule registered")
	}

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Strs("workflows", manager.Workflows()).
		Msg("starting temporal worker")

	// Start the worker and block until context is cancelled.
	if err := manager.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info().Msg("worker stopped via signal")
			return nil
		}
		return fmt.Errorf("worker error: %w", err)
	}

	return nil
}
