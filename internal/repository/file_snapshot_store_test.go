package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

func TestFileSnapshotStore_RoundTrip(t *testing.T) {
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "state", "corpus.yaml"), zerolog.Nop())
	assertStoreRoundTrip(t, store)
}

func TestFileSnapshotStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSnapshotStore(filepath.Join(dir, "corpus.yaml"), zerolog.Nop())

	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "corpus.yaml", entries[0].Name())
}

func TestFileSnapshotStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("records: [this is: not: valid"), 0o644))

	_, err := NewFileSnapshotStore(path, zerolog.Nop()).Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Op)
}

func TestFileSnapshotStore_FailedSaveKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	store := NewFileSnapshotStore(path, zerolog.Nop())
	require.NoError(t, store.Save(context.Background(), sampleSnapshot()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Save(ctx, domain.EmptySnapshot())
	assert.ErrorIs(t, err, domain.ErrPersistence)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
}
