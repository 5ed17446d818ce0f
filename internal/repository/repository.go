// Package repository persists corpus snapshots for the paper ingest service.
//
// # Overview
//
// A snapshot is the whole committed state of the ingestion engine: the
// ordered records, the watermark, per-category counts and the time of the
// last provider fetch. The engine reads it once at startup and writes it
// after every cycle that changes state.
//
// # Backends
//
//   - PgSnapshotStore: PostgreSQL through pgx. Saves run in one transaction.
//   - SQLiteSnapshotStore: a single-file SQLite database, for one-node
//     deployments and the CLI.
//   - FileSnapshotStore: a YAML document replaced atomically by rename.
//
// Open picks a backend from config.StoreConfig.
//
// # Error Handling
//
// Every store failure is returned as a *domain.PersistenceError, so callers
// can match domain.ErrPersistence with errors.Is and still reach the cause.
//
// # Thread Safety
//
// Stores are safe for concurrent use, but the engine only ever has one save
// in flight.
package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/database"
	"github.com/helixir/paper-ingest-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// SnapshotStore loads and saves the engine snapshot.
type SnapshotStore interface {
	// Load returns the last saved snapshot, or domain.EmptySnapshot when
	// nothing was saved yet.
	Load(ctx context.Context) (*domain.Snapshot, error)

	// Save replaces the stored snapshot. Either the whole snapshot is
	// written or the previous one remains.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Close releases resources held by the store.
	Close() error
}

// Open creates the snapshot store selected by cfg. db is required for the
// postgres backend and ignored otherwise.
func Open(ctx context.Context, cfg config.StoreConfig, db *database.DB, logger zerolog.Logger) (SnapshotStore, error) {
	logger = logger.With().Str("component", "snapshot_store").Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case config.StoreBackendPostgres:
		if db == nil {
			return nil, domain.NewValidationError("store.backend", "postgres backend requires a database connection")
		}
		return NewPgSnapshotStore(db), nil
	case config.StoreBackendSQLite:
		return OpenSQLiteSnapshotStore(ctx, cfg.SQLitePath, logger)
	case config.StoreBackendFile:
		return NewFileSnapshotStore(cfg.FilePath, logger), nil
	default:
		return nil, domain.NewValidationError("store.backend", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}
