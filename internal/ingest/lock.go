package ingest

import (
	"context"
	"errors"

	"github.com/helixir/paper-ingest-service/internal/database"
	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Lock is a cross-process mutual exclusion held for the duration of a cycle.
// Acquire returns domain.ErrCycleInProgress when another process holds it.
type Lock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LockFunc adapts a function to Lock.
type LockFunc func(ctx context.Context) (func(), error)

// Acquire calls f.
func (f LockFunc) Acquire(ctx context.Context) (func(), error) {
	return f(ctx)
}

// AdvisoryLock returns a Lock backed by a Postgres session advisory lock, so
// that several service replicas sharing one database never run cycles
// concurrently.
func AdvisoryLock(db *database.DB, key int64) Lock {
	return LockFunc(func(ctx context.Context) (func(), error) {
		release, err := db.TryAdvisoryLock(ctx, key)
		if errors.Is(err, database.ErrLockNotAcquired) {
			return nil, domain.ErrCycleInProgress
		}
		return release, err
	})
}
