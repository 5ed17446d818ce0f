package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Compile-time interface verification.
var _ SnapshotStore = (*FileSnapshotStore)(nil)

// FileSnapshotStore keeps the snapshot in a YAML document. Saves write a
// temporary file next to the target and rename it into place, so a crash
// leaves either the old or the new document.
type FileSnapshotStore struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileSnapshotStore creates a store backed by the file at path. The file
// does not need to exist yet.
func NewFileSnapshotStore(path string, logger zerolog.Logger) *FileSnapshotStore {
	return &FileSnapshotStore{path: path, logger: logger}
}

// Load reads the document. A missing file yields an empty snapshot.
func (s *FileSnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewPersistenceError("load", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, domain.NewPersistenceError("load", fmt.Errorf("read %s: %w", s.path, err))
	}

	var snap domain.Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, domain.NewPersistenceError("load", fmt.Errorf("decode %s: %w", s.path, err))
	}
	return snap.Normalize(), nil
}

// Save encodes the snapshot and atomically replaces the document.
func (s *FileSnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return domain.NewValidationError("snapshot", "snapshot cannot be nil")
	}
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError("save", err)
	}

	data, err := yaml.Marshal(snap.Normalize())
	if err != nil {
		return domain.NewPersistenceError("save", fmt.Errorf("encode snapshot: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return domain.NewPersistenceError("save", err)
	}
	s.logger.Debug().Str("path", s.path).Int("records", len(snap.Records)).Msg("snapshot saved")
	return nil
}

// Close is a no-op.
func (s *FileSnapshotStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
