package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// txBeginner is an interface for types that can begin a transaction (e.g., *pgxpool.Pool, *database.DB).
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgxPool is what PgSnapshotStore needs from the database: plain queries
// for loading and transactions for saving. *database.DB and pgxmock pools
// both satisfy it.
type PgxPool interface {
	DBTX
	txBeginner
}

const (
	recordsTable       = "corpus_records"
	categoryStatsTable = "category_stats"
	ingestStateID      = 1
)

var recordColumns = []string{
	"id", "position", "title", "summary", "authors", "url",
	"published_at", "updated_at", "provider_ids", "tags", "categories",
	"citation_count", "source_provider",
}

var categoryStatsColumns = []string{"category", "record_count"}

// Compile-time interface verification.
var _ SnapshotStore = (*PgSnapshotStore)(nil)

// PgSnapshotStore is a PostgreSQL implementation of SnapshotStore.
type PgSnapshotStore struct {
	db PgxPool
}

// NewPgSnapshotStore creates a new PostgreSQL snapshot store.
func NewPgSnapshotStore(db PgxPool) *PgSnapshotStore {
	return &PgSnapshotStore{db: db}
}

// Load reads the ingest state, the records in corpus order and the category
// counts. A missing state row means the service has never saved.
func (s *PgSnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.EmptySnapshot()

	var newest, oldest, lastFetch *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT watermark_newest, watermark_oldest, last_fetch_time
		FROM ingest_state
		WHERE id = $1`, ingestStateID).Scan(&newest, &oldest, &lastFetch)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, domain.NewPersistenceError("load", fmt.Errorf("query ingest state: %w", err))
	default:
		snap.Watermark = domain.Watermark{Newest: derefTime(newest), Oldest: derefTime(oldest)}
		snap.LastFetchTime = derefTime(lastFetch)
	}

	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("load", err)
	}
	snap.Records = records

	stats, err := s.loadCategoryStats(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("load", err)
	}
	snap.CategoryStats = stats

	return snap.Normalize(), nil
}

func (s *PgSnapshotStore) loadRecords(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, summary, authors, url, published_at, updated_at,
		       provider_ids, tags, categories, citation_count, source_provider
		FROM corpus_records
		ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		var (
			r                  domain.Record
			published, updated *time.Time
			providerIDsJSON    []byte
			citations          *int32
			sourceProvider     string
		)
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Summary, &r.Authors, &r.URL, &published, &updated,
			&providerIDsJSON, &r.Tags, &r.Categories, &citations, &sourceProvider,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		if len(providerIDsJSON) > 0 {
			if err := json.Unmarshal(providerIDsJSON, &r.ProviderIDs); err != nil {
				return nil, fmt.Errorf("unmarshal provider ids for %s: %w", r.ID, err)
			}
		}
		r.PublishedAt = derefTime(published)
		r.UpdatedAt = derefTime(updated)
		if citations != nil {
			n := int(*citations)
			r.CitationCount = &n
		}
		r.SourceProvider = domain.SourceType(sourceProvider)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *PgSnapshotStore) loadCategoryStats(ctx context.Context) (domain.CategoryStats, error) {
	rows, err := s.db.Query(ctx, `SELECT category, record_count FROM category_stats`)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	stats := domain.CategoryStats{}
	for rows.Next() {
		var (
			category string
			count    int32
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		stats[category] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category stats: %w", err)
	}
	return stats, nil
}

// Save rewrites the three tables inside one transaction. Records are
// bulk-loaded with COPY.
func (s *PgSnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return domain.NewValidationError("snapshot", "snapshot cannot be nil")
	}
	snap = snap.Normalize()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.NewPersistenceError("save", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := saveSnapshotTx(ctx, tx, snap); err != nil {
		return domain.NewPersistenceError("save", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewPersistenceError("save", fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func saveSnapshotTx(ctx context.Context, tx pgx.Tx, snap *domain.Snapshot) error {
	if _, err := tx.Exec(ctx, `DELETE FROM corpus_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	if len(snap.Records) > 0 {
		rows, err := recordRows(snap.Records)
		if err != nil {
			return err
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{recordsTable}, recordColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy records: wrote %d of %d rows", n, len(rows))
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ingest_state (id, watermark_newest, watermark_oldest, last_fetch_time, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			watermark_newest = EXCLUDED.watermark_newest,
			watermark_oldest = EXCLUDED.watermark_oldest,
			last_fetch_time  = EXCLUDED.last_fetch_time,
			updated_at       = NOW()`,
		ingestStateID,
		nullTime(snap.Watermark.Newest),
		nullTime(snap.Watermark.Oldest),
		nullTime(snap.LastFetchTime),
	); err != nil {
		return fmt.Errorf("upsert ingest state: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM category_stats`); err != nil {
		return fmt.Errorf("clear category stats: %w", err)
	}
	if len(snap.CategoryStats) > 0 {
		rows := make([][]any, 0, len(snap.CategoryStats))
		for category, count := range snap.CategoryStats {
			rows = append(rows, []any{category, int32(count)})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{categoryStatsTable}, categoryStatsColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy category stats: %w", err)
		}
	}
	return nil
}

func recordRows(records []domain.Record) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for i, r := range records {
		id := r.ID
		if id == uuid.Nil {
			return nil, fmt.Errorf("record %d (%q) has no id", i, r.Title)
		}
		providerIDs, err := json.Marshal(r.ProviderIDs)
		if err != nil {
			return nil, fmt.Errorf("marshal provider ids for %s: %w", id, err)
		}
		var citations *int32
		if r.CitationCount != nil {
			n := int32(*r.CitationCount)
			citations = &n
		}
		rows = append(rows, []any{
			id, int32(i), r.Title, r.Summary, r.Authors, r.URL,
			nullTime(r.PublishedAt), nullTime(r.UpdatedAt), providerIDs,
			r.Tags, r.Categories, citations, string(r.SourceProvider),
		})
	}
	return rows, nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *PgSnapshotStore) Close() error {
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
