package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

var recordSelectColumns = []string{
	"id", "title", "summary", "authors", "url", "published_at", "updated_at",
	"provider_ids", "tags", "categories", "citation_count", "source_provider",
}

func TestNewPgSnapshotStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgSnapshotStore(mock)
	assert.NotNil(t, store)
	assert.NoError(t, store.Close())
}

func TestPgSnapshotStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty snapshot on first run", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT watermark_newest, watermark_oldest, last_fetch_time FROM ingest_state").
			WithArgs(ingestStateID).
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT id, title, .* FROM corpus_records ORDER BY position ASC").
			WillReturnRows(pgxmock.NewRows(recordSelectColumns))
		mock.ExpectQuery("SELECT category, record_count FROM category_stats").
			WillReturnRows(pgxmock.NewRows([]string{"category", "record_count"}))

		snap, err := NewPgSnapshotStore(mock).Load(ctx)
		require.NoError(t, err)
		assert.True(t, snap.IsEmpty())
		assert.Empty(t, snap.Records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loads records in stored order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		want := sampleSnapshot().Normalize()
		r0, r1 := want.Records[0], want.Records[1]
		newest, oldest, fetched := want.Watermark.Newest, want.Watermark.Oldest, want.LastFetchTime
		citations := int32(12)

		mock.ExpectQuery("SELECT watermark_newest, watermark_oldest, last_fetch_time FROM ingest_state").
			WithArgs(ingestStateID).
			WillReturnRows(pgxmock.NewRows([]string{"watermark_newest", "watermark_oldest", "last_fetch_time"}).
				AddRow(&newest, &oldest, &fetched))
		mock.ExpectQuery("SELECT id, title, .* FROM corpus_records ORDER BY position ASC").
			WillReturnRows(pgxmock.NewRows(recordSelectColumns).
				AddRow(r0.ID, r0.Title, r0.Summary, r0.Authors, r0.URL, &r0.PublishedAt, &r0.UpdatedAt,
					[]byte(`{"arxiv":"2405.01234","huggingface":"2405.01234"}`), r0.Tags, r0.Categories,
					&citations, string(r0.SourceProvider)).
				AddRow(r1.ID, r1.Title, "", []string{}, "", (*time.Time)(nil), &r1.UpdatedAt,
					[]byte(`{"feed":"urn:item:7"}`), []string{}, []string{}, (*int32)(nil), string(r1.SourceProvider)))
		mock.ExpectQuery("SELECT category, record_count FROM category_stats").
			WillReturnRows(pgxmock.NewRows([]string{"category", "record_count"}).
				AddRow("cs.LG", int32(1)).
				AddRow("cs.CL", int32(1)))

		snap, err := NewPgSnapshotStore(mock).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, snap)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps query failures as persistence errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT watermark_newest").
			WithArgs(ingestStateID).
			WillReturnError(errors.New("connection reset"))

		_, err = NewPgSnapshotStore(mock).Load(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("rejects malformed provider ids", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		r := sampleSnapshot().Normalize().Records[0]
		mock.ExpectQuery("SELECT watermark_newest").WithArgs(ingestStateID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery("SELECT id, title").
			WillReturnRows(pgxmock.NewRows(recordSelectColumns).
				AddRow(r.ID, r.Title, r.Summary, r.Authors, r.URL, &r.PublishedAt, &r.UpdatedAt,
					[]byte(`not json`), r.Tags, r.Categories, (*int32)(nil), string(r.SourceProvider)))

		_, err = NewPgSnapshotStore(mock).Load(ctx)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})
}

func TestPgSnapshotStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("rewrites all tables in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		snap := sampleSnapshot()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM corpus_records").WillReturnResult(pgxmock.NewResult("DELETE", 5))
		mock.ExpectCopyFrom(pgx.Identifier{recordsTable}, recordColumns).WillReturnResult(2)
		mock.ExpectExec("INSERT INTO ingest_state").
			WithArgs(ingestStateID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM category_stats").WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mock.ExpectCopyFrom(pgx.Identifier{categoryStatsTable}, categoryStatsColumns).WillReturnResult(2)
		mock.ExpectCommit()

		err = NewPgSnapshotStore(mock).Save(ctx, snap)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty snapshot skips copies", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM corpus_records").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectExec("INSERT INTO ingest_state").
			WithArgs(ingestStateID, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("DELETE FROM category_stats").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectCommit()

		err = NewPgSnapshotStore(mock).Save(ctx, domain.EmptySnapshot())
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when copy fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM corpus_records").WillReturnResult(pgxmock.NewResult("DELETE", 5))
		mock.ExpectCopyFrom(pgx.Identifier{recordsTable}, recordColumns).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err = NewPgSnapshotStore(mock).Save(ctx, sampleSnapshot())
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)

		var perr *domain.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "save", perr.Op)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on short copy", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM corpus_records").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{recordsTable}, recordColumns).WillReturnResult(1)
		mock.ExpectRollback()

		err = NewPgSnapshotStore(mock).Save(ctx, sampleSnapshot())
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err = NewPgSnapshotStore(mock).Save(ctx, sampleSnapshot())
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil snapshot is invalid input", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = NewPgSnapshotStore(mock).Save(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestRecordRows(t *testing.T) {
	rows, err := recordRows(sampleSnapshot().Normalize().Records)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(recordColumns))
	assert.Equal(t, int32(0), rows[0][1])
	assert.Equal(t, int32(1), rows[1][1])
	assert.Nil(t, rows[1][6], "undated record stores NULL published_at")

	_, err = recordRows([]domain.Record{{Title: "missing id"}})
	assert.Error(t, err)
}
