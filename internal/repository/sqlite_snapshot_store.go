package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS corpus_records (
	id              TEXT PRIMARY KEY,
	position        INTEGER NOT NULL,
	title           TEXT NOT NULL,
	summary         TEXT NOT NULL DEFAULT '',
	authors         TEXT NOT NULL DEFAULT '[]',
	url             TEXT NOT NULL DEFAULT '',
	published_at    TEXT,
	updated_at      TEXT,
	provider_ids    TEXT NOT NULL DEFAULT '{}',
	tags            TEXT NOT NULL DEFAULT '[]',
	categories      TEXT NOT NULL DEFAULT '[]',
	citation_count  INTEGER,
	source_provider TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_corpus_records_position ON corpus_records(position);

CREATE TABLE IF NOT EXISTS ingest_state (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	watermark_newest TEXT,
	watermark_oldest TEXT,
	last_fetch_time  TEXT,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS category_stats (
	category     TEXT PRIMARY KEY,
	record_count INTEGER NOT NULL
);
`

// sqliteTimeLayout keeps microseconds so that stored timestamps compare
// equal to the normalized in-memory values.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Compile-time interface verification.
var _ SnapshotStore = (*SQLiteSnapshotStore)(nil)

// SQLiteSnapshotStore keeps the snapshot in a single SQLite file.
type SQLiteSnapshotStore struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// OpenSQLiteSnapshotStore opens (creating if needed) the database at path and
// applies the schema. Use ":memory:" for a throwaway store.
func OpenSQLiteSnapshotStore(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteSnapshotStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.NewPersistenceError("open", fmt.Errorf("open database: %w", err))
	}
	// One writer; an in-memory database also exists per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, domain.NewPersistenceError("open", fmt.Errorf("init schema: %w", err))
	}

	logger.Debug().Str("path", path).Msg("sqlite snapshot store opened")
	return &SQLiteSnapshotStore{conn: conn, logger: logger}, nil
}

// Load reads the stored snapshot in corpus order.
func (s *SQLiteSnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewPersistenceError("load", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	snap := domain.EmptySnapshot()

	var newest, oldest, lastFetch sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT watermark_newest, watermark_oldest, last_fetch_time FROM ingest_state WHERE id = ?`,
		ingestStateID,
	).Scan(&newest, &oldest, &lastFetch)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, domain.NewPersistenceError("load", fmt.Errorf("query ingest state: %w", err))
	default:
		if snap.Watermark.Newest, err = parseSQLiteTime(newest); err != nil {
			return nil, domain.NewPersistenceError("load", err)
		}
		if snap.Watermark.Oldest, err = parseSQLiteTime(oldest); err != nil {
			return nil, domain.NewPersistenceError("load", err)
		}
		if snap.LastFetchTime, err = parseSQLiteTime(lastFetch); err != nil {
			return nil, domain.NewPersistenceError("load", err)
		}
	}

	if snap.Records, err = loadSQLiteRecords(ctx, tx); err != nil {
		return nil, domain.NewPersistenceError("load", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT category, record_count FROM category_stats`)
	if err != nil {
		return nil, domain.NewPersistenceError("load", fmt.Errorf("query category stats: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, domain.NewPersistenceError("load", fmt.Errorf("scan category stats: %w", err))
		}
		snap.CategoryStats[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("load", fmt.Errorf("iterate category stats: %w", err))
	}

	return snap.Normalize(), nil
}

func loadSQLiteRecords(ctx context.Context, tx *sql.Tx) ([]domain.Record, error) {
	rows, err := tx.QueryContext(ctx, `
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
			r                                domain.Record
			id, sourceProvider               string
			authors, providerIDs, tags, cats string
			published, updated               sql.NullString
			citations                        sql.NullInt64
		)
		if err := rows.Scan(&id, &r.Title, &r.Summary, &authors, &r.URL, &published, &updated,
			&providerIDs, &tags, &cats, &citations, &sourceProvider); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse record id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(authors), &r.Authors); err != nil {
			return nil, fmt.Errorf("record %s authors: %w", id, err)
		}
		if err := json.Unmarshal([]byte(providerIDs), &r.ProviderIDs); err != nil {
			return nil, fmt.Errorf("record %s provider ids: %w", id, err)
		}
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			return nil, fmt.Errorf("record %s tags: %w", id, err)
		}
		if err := json.Unmarshal([]byte(cats), &r.Categories); err != nil {
			return nil, fmt.Errorf("record %s categories: %w", id, err)
		}
		if r.PublishedAt, err = parseSQLiteTime(published); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
			return nil, err
		}
		if citations.Valid {
			n := int(citations.Int64)
			r.CitationCount = &n
		}
		r.SourceProvider = domain.SourceType(sourceProvider)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Save replaces the stored snapshot inside one transaction.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return domain.NewValidationError("snapshot", "snapshot cannot be nil")
	}
	snap = snap.Normalize()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewPersistenceError("save", fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveSQLiteTx(ctx, tx, snap); err != nil {
		return domain.NewPersistenceError("save", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NewPersistenceError("save", fmt.Errorf("commit transaction: %w", err))
	}

	s.logger.Debug().Int("records", len(snap.Records)).Msg("snapshot saved")
	return nil
}

func saveSQLiteTx(ctx context.Context, tx *sql.Tx, snap *domain.Snapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM corpus_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corpus_records (id, position, title, summary, authors, url, published_at, updated_at,
			provider_ids, tags, categories, citation_count, source_provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range snap.Records {
		if r.ID == uuid.Nil {
			return fmt.Errorf("record %d (%q) has no id", i, r.Title)
		}
		authors, _ := json.Marshal(r.Authors)
		providerIDs, _ := json.Marshal(r.ProviderIDs)
		tags, _ := json.Marshal(r.Tags)
		categories, _ := json.Marshal(r.Categories)

		var citations sql.NullInt64
		if r.CitationCount != nil {
			citations = sql.NullInt64{Int64: int64(*r.CitationCount), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			r.ID.String(), i, r.Title, r.Summary, string(authors), r.URL,
			formatSQLiteTime(r.PublishedAt), formatSQLiteTime(r.UpdatedAt),
			string(providerIDs), string(tags), string(categories), citations, string(r.SourceProvider),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ingest_state (id, watermark_newest, watermark_oldest, last_fetch_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			watermark_newest = excluded.watermark_newest,
			watermark_oldest = excluded.watermark_oldest,
			last_fetch_time = excluded.last_fetch_time,
			updated_at = excluded.updated_at`,
		ingestStateID,
		formatSQLiteTime(snap.Watermark.Newest),
		formatSQLiteTime(snap.Watermark.Oldest),
		formatSQLiteTime(snap.LastFetchTime),
		time.Now().UTC().Format(sqliteTimeLayout),
	); err != nil {
		return fmt.Errorf("upsert ingest state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM category_stats`); err != nil {
		return fmt.Errorf("clear category stats: %w", err)
	}
	for category, count := range snap.CategoryStats {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO category_stats (category, record_count) VALUES (?, ?)`, category, count,
		); err != nil {
			return fmt.Errorf("insert category stats %q: %w", category, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSnapshotStore) Close() error {
	return s.conn.Close()
}

func formatSQLiteTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(sqliteTimeLayout), Valid: true}
}

func parseSQLiteTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return t.UTC(), nil
}
