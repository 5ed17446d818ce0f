// Package app assembles the ingestion engine and its collaborators from
// configuration. The server, worker and CLI binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/database"
	"github.com/helixir/paper-ingest-service/internal/enrichment"
	"github.com/helixir/paper-ingest-service/internal/events"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/papersources"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
	"github.com/helixir/paper-ingest-service/internal/repository"
)

// Options tune what New builds.
type Options struct {
	// Metrics is shared by every component. Nil disables metrics.
	Metrics *observability.Metrics

	// ServiceName is stamped on published events.
	ServiceName string

	// SkipEvents disables the Kafka publisher even when configured.
	SkipEvents bool
}

// App holds the assembled components.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	DB        *database.DB
	Store     repository.SnapshotStore
	Gateway   *papersources.Gateway
	Lookup    *huggingface.Client
	Publisher *events.Publisher
	Engine    *ingest.Engine

	closers []func()
}

// New connects to the store, registers providers and loads the engine
// snapshot. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: opts.Metrics,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.UsesPostgres() {
		db, dbErr := database.New(ctx, &cfg.Database, logger)
		if dbErr != nil {
			return nil, fmt.Errorf("connect to database: %w", dbErr)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)

		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				return nil, err
			}
		}
	}

	store, err := repository.Open(ctx, cfg.Store, a.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("closing snapshot store")
		}
	})

	a.Gateway = NewGateway(cfg.Providers, logger, a.Metrics)
	if len(a.Gateway.EnabledSources()) == 0 {
		logger.Warn().Msg("no providers enabled, cycles will report zero yield")
	}
	a.Lookup = NewHuggingFace(cfg.Providers.HuggingFace)

	engineOpts := []ingest.Option{ingest.WithMetrics(a.Metrics)}

	if cfg.Enrichment.Enabled {
		limiter := enrichment.New(enrichment.Config{
			Enabled:     true,
			Quota:       cfg.Enrichment.Quota,
			MinInterval: cfg.Enrichment.MinInterval,
			Providers:   sourceTypes(cfg.Enrichment.Providers),
		}, NewSemanticScholar(cfg.Providers.SemanticScholar), logger, a.Metrics)
		engineOpts = append(engineOpts, ingest.WithEnricher(limiter))
	}

	if cfg.Kafka.Enabled && !opts.SkipEvents {
		a.Publisher = events.NewPublisher(events.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ServiceName:  opts.ServiceName,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger, a.Metrics)
		a.closers = append(a.closers, func() {
			if cerr := a.Publisher.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("closing event publisher")
			}
		})
		engineOpts = append(engineOpts, ingest.WithNotifier(a.Publisher))
	}

	if cfg.Engine.LockKey != 0 {
		engineOpts = append(engineOpts, ingest.WithLock(ingest.AdvisoryLock(a.DB, cfg.Engine.LockKey)))
	}

	a.Engine = ingest.NewEngine(ingest.ConfigFromSettings(cfg), a.Gateway, store, logger, engineOpts...)
	if err := a.Engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if cerr := migrator.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("closing migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
