package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

func monthNames(months []Month) []string {
	out := make([]string, 0, len(months))
	for _, m := range months {
		out = append(out, m.String())
	}
	return out
}

func TestMonth(t *testing.T) {
	m := Month{Start: day("2024-02-01")}

	assert.Equal(t, "2024-02", m.String())
	assert.Equal(t, day("2024-03-01").Add(-time.Nanosecond), m.End())
}

func TestFindGaps(t *testing.T) {
	density := DensityPolicy{SmallCorpusSize: 3, SmallThreshold: 1, LargeThreshold: 2}
	cfg := BackfillConfig{HorizonMonths: 24, Density: density}

	t.Run("zero watermark", func(t *testing.T) {
		gaps, _ := FindGaps(corpus.New(nil), domain.Watermark{}, cfg)
		assert.Empty(t, gaps)
	})

	t.Run("small corpus threshold", func(t *testing.T) {
		c := corpus.New([]domain.Record{
			record(domain.SourceTypeArXiv, "1", day("2024-03-15")),
			record(domain.SourceTypeArXiv, "2", day("2024-01-02")),
		})
		wm := domain.Watermark{Newest: day("2024-03-15"), Oldest: day("2024-01-02")}

		gaps, threshold := FindGaps(c, wm, cfg)
		assert.Equal(t, 1, threshold)
		assert.Equal(t, []string{"2024-02"}, monthNames(gaps))
		assert.Equal(t, 0, gaps[0].Count)
	})

	t.Run("large corpus threshold", func(t *testing.T) {
		c := corpus.New([]domain.Record{
			record(domain.SourceTypeArXiv, "1", day("2024-06-01")),
			record(domain.SourceTypeArXiv, "2", day("2024-06-20")),
			record(domain.SourceTypeArXiv, "3", day("2024-05-02")),
		})
		wm := domain.Watermark{Newest: day("2024-06-20"), Oldest: day("2024-04-01")}

		gaps, threshold := FindGaps(c, wm, cfg)
		assert.Equal(t, 2, threshold)
		assert.Equal(t, []string{"2024-05", "2024-04"}, monthNames(gaps))
		assert.Equal(t, 1, gaps[0].Count)
	})

	t.Run("horizon bounds the scan", func(t *testing.T) {
		c := corpus.New([]domain.Record{
			record(domain.SourceTypeArXiv, "1", day("2024-06-01")),
		})
		wm := domain.Watermark{Newest: day("2024-06-01"), Oldest: day("2020-01-01")}

		gaps, _ := FindGaps(c, wm, BackfillConfig{
			HorizonMonths: 3,
			Density:       DensityPolicy{SmallCorpusSize: 10, SmallThreshold: 5, LargeThreshold: 5},
		})
		assert.Equal(t, []string{"2024-06", "2024-05", "2024-04", "2024-03"}, monthNames(gaps))
	})

	t.Run("undated records are not counted", func(t *testing.T) {
		undated := record(domain.SourceTypeArXiv, "u", time.Time{})
		undated.UpdatedAt = day("2024-02-10")
		c := corpus.New([]domain.Record{
			record(domain.SourceTypeArXiv, "1", day("2024-03-01")),
			undated,
		})
		wm := domain.Watermark{Newest: day("2024-03-01"), Oldest: day("2024-02-10")}

		gaps, _ := FindGaps(c, wm, cfg)
		assert.Equal(t, []string{"2024-02"}, monthNames(gaps))
	})
}

// sparseStore holds two records six months apart: January and June 2024.
func sparseStore() *memStore {
	return seededStore(
		[]domain.Record{
			record(domain.SourceTypeArXiv, "2406.00001", day("2024-06-01")),
			record(domain.SourceTypeArXiv, "2401.00001", day("2024-01-01")),
		},
		domain.Watermark{Newest: day("2024-06-01"), Oldest: day("2024-01-01")},
		day("2024-06-02"),
	)
}

func TestEngine_RunCycle_ZeroYieldTriggersBackfill(t *testing.T) {
	may := record(domain.SourceTypeOpenAlex, "W-may", day("2024-05-14"))
	fetcher := &fakeFetcher{
		since: func(context.Context, time.Time) []papersources.ProviderResult {
			return []papersources.ProviderResult{ok(domain.SourceTypeArXiv), ok(domain.SourceTypeOpenAlex)}
		},
		window: func(_ context.Context, w papersources.Window) []papersources.ProviderResult {
			if w.From.Before(may.PublishedAt) && w.To.After(may.PublishedAt) {
				return []papersources.ProviderResult{ok(domain.SourceTypeOpenAlex, may)}
			}
			return []papersources.ProviderResult{ok(domain.SourceTypeOpenAlex)}
		},
	}
	store := sparseStore()
	cfg := Config{Backfill: BackfillConfig{Enabled: true, MaxMonthsPerScan: 6}}
	e := newTestEngine(t, cfg, fetcher, store)

	result, err := e.RunCycle(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, domain.CycleOutcomeZeroYield, result.Outcome)
	require.NotNil(t, result.Backfill)
	bf := result.Backfill

	assert.Equal(t, DefaultSmallThreshold, bf.Threshold)
	assert.Equal(t,
		[]string{"2024-06", "2024-05", "2024-04", "2024-03", "2024-02", "2024-01"},
		monthNames(bf.Flagged),
		"every month between the watermark bounds is flagged exactly once",
	)
	assert.Equal(t, monthNames(bf.Flagged), monthNames(bf.Attempted))
	assert.Equal(t, []string{"2024-05"}, monthNames(bf.Filled))
	assert.Equal(t, 1, bf.Added)

	require.Len(t, fetcher.windows, 6)
	assert.Equal(t, day("2024-06-01").Add(-DefaultSlack), fetcher.windows[0].From)
	assert.Equal(t, day("2024-07-01").Add(-time.Nanosecond).Add(DefaultSlack), fetcher.windows[0].To)

	snap := store.stored()
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, domain.Watermark{Newest: day("2024-06-01"), Oldest: day("2024-01-01")}, snap.Watermark)
	assert.Equal(t, testNow, snap.LastFetchTime)
	assert.Equal(t, snap, e.Snapshot())
}

func TestEngine_RunCycle_BackfillRespectsScanCap(t *testing.T) {
	fetcher := (&fakeFetcher{}).returning(ok(domain.SourceTypeArXiv))
	store := sparseStore()
	cfg := Config{Backfill: BackfillConfig{Enabled: true, MaxMonthsPerScan: 3}}
	e := newTestEngine(t, cfg, fetcher, store)

	result, err := e.RunCycle(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	require.NotNil(t, result.Backfill)
	assert.Len(t, result.Backfill.Flagged, 6)
	assert.Equal(t, []string{"2024-06", "2024-05", "2024-04"}, monthNames(result.Backfill.Attempted))
	assert.Empty(t, result.Backfill.Filled)
	assert.Len(t, fetcher.windows, 3)
}

func TestEngine_RunCycle_BackfillDisabled(t *testing.T) {
	fetcher := (&fakeFetcher{}).returning(ok(domain.SourceTypeArXiv))
	e := newTestEngine(t, Config{}, fetcher, sparseStore())

	result, err := e.RunCycle(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	assert.Equal(t, domain.CycleOutcomeZeroYield, result.Outcome)
	assert.Nil(t, result.Backfill)
	assert.Empty(t, fetcher.windows)
}

func TestEngine_RunBackfill(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e := newTestEngine(t, Config{}, &fakeFetcher{}, sparseStore())

		_, err := e.RunBackfill(context.Background(), TriggerHTTP)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("provider errors are reported per month", func(t *testing.T) {
		fetcher := &fakeFetcher{
			window: func(_ context.Context, w papersources.Window) []papersources.ProviderResult {
				return []papersources.ProviderResult{
					ok(domain.SourceTypeArXiv),
					failed(domain.SourceTypeOpenAlex, errors.New("503")),
				}
			},
		}
		store := sparseStore()
		cfg := Config{Backfill: BackfillConfig{Enabled: true, MaxMonthsPerScan: 2}}
		e := newTestEngine(t, cfg, fetcher, store)

		result, err := e.RunBackfill(context.Background(), TriggerHTTP)
		require.NoError(t, err)

		assert.Len(t, result.Errors, 2)
		assert.Contains(t, result.Errors, "2024-06:openalex")
		assert.Contains(t, result.Errors, "2024-05:openalex")
		assert.Equal(t, 0, store.saveCount())
		assert.Equal(t, domain.CycleStateIdle, e.State())
	})

	t.Run("persistence failure stops the scan", func(t *testing.T) {
		fetcher := &fakeFetcher{
			window: func(_ context.Context, w papersources.Window) []papersources.ProviderResult {
				r := record(domain.SourceTypeArXiv, w.From.Format("200601"), w.From.Add(DefaultSlack+24*time.Hour))
				return []papersources.ProviderResult{ok(domain.SourceTypeArXiv, r)}
			},
		}
		store := sparseStore()
		cfg := Config{Backfill: BackfillConfig{Enabled: true, MaxMonthsPerScan: 3}}
		e := newTestEngine(t, cfg, fetcher, store)
		before := e.Snapshot()

		store.failWith(errors.New("disk full"))
		result, err := e.RunBackfill(context.Background(), TriggerHTTP)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrPersistence)
		assert.Len(t, result.Attempted, 1)
		assert.Empty(t, result.Filled)
		assert.Equal(t, before, e.Snapshot())
	})
}
