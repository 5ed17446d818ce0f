package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_paper_ingest_new")

	assert.NotNil(t, m.ProviderFetches)
	assert.NotNil(t, m.ProviderRecords)
	assert.NotNil(t, m.ProviderFetchDuration)
	assert.NotNil(t, m.CyclesTotal)
	assert.NotNil(t, m.CycleDuration)
	assert.NotNil(t, m.RecordsMerged)
	assert.NotNil(t, m.DedupDropped)
	assert.NotNil(t, m.EnrichmentLookups)
	assert.NotNil(t, m.CorpusSize)
	assert.NotNil(t, m.WatermarkNewest)
	assert.NotNil(t, m.WatermarkOldest)
	assert.NotNil(t, m.RecordsEvicted)
	assert.NotNil(t, m.BackfillMonthsFlagged)
	assert.NotNil(t, m.BackfillMonthsFilled)
	assert.NotNil(t, m.SnapshotSaves)
	assert.NotNil(t, m.SnapshotSaveDuration)
	assert.NotNil(t, m.EventsPublished)
}

func TestRecordProviderFetch(t *testing.T) {
	m := NewMetrics("test_provider_fetch")

	m.RecordProviderFetch("arxiv", 42, 1.5)
	m.RecordProviderFetch("arxiv", 8, 0.5)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProviderFetches.WithLabelValues("arxiv", "success")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.ProviderRecords.WithLabelValues("arxiv")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderFetchDuration))
}

func TestRecordProviderFailure(t *testing.T) {
	m := NewMetrics("test_provider_failure")

	m.RecordProviderFailure("openalex", 30)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderFetches.WithLabelValues("openalex", "failure")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ProviderRecords.WithLabelValues("openalex")))
}

func TestRecordCycle(t *testing.T) {
	m := NewMetrics("test_cycle")

	m.RecordCycle("merged", 12)
	m.RecordCycle("no_new_data", 3)
	m.RecordCycle("merged", 8)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("merged")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CyclesTotal.WithLabelValues("no_new_data")))

	count, err := getHistogramSampleCount(m.CycleDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestRecordMergedAndDropped(t *testing.T) {
	m := NewMetrics("test_merged_dropped")

	m.RecordMerged(10)
	m.RecordDedupDropped(4)
	m.RecordDedupDropped(1)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.RecordsMerged))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.DedupDropped))
}

func TestRecordEnrichment(t *testing.T) {
	m := NewMetrics("test_enrichment")

	m.RecordEnrichment(3, 1, 2)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.EnrichmentLookups.WithLabelValues("enriched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EnrichmentLookups.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EnrichmentLookups.WithLabelValues("throttled")))
}

func TestCorpusGauges(t *testing.T) {
	m := NewMetrics("test_corpus_gauges")

	m.SetCorpusSize(1200)
	newest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	m.SetWatermark(newest, time.Time{})
	m.RecordEvicted(7)

	assert.Equal(t, float64(1200), testutil.ToFloat64(m.CorpusSize))
	assert.Equal(t, float64(newest.Unix()), testutil.ToFloat64(m.WatermarkNewest))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.WatermarkOldest))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.RecordsEvicted))
}

func TestRecordBackfill(t *testing.T) {
	m := NewMetrics("test_backfill")

	m.RecordBackfill(4, 2)

	assert.Equal(t, float64(4), testutil.ToFloat64(m.BackfillMonthsFlagged))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BackfillMonthsFilled))
}

func TestRecordSnapshotSave(t *testing.T) {
	m := NewMetrics("test_snapshot_save")

	m.RecordSnapshotSave(true, 0.2)
	m.RecordSnapshotSave(false, 1.1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SnapshotSaves.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SnapshotSaves.WithLabelValues("failure")))

	count, err := getHistogramSampleCount(m.SnapshotSaveDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_event_published")

	m.RecordEventPublished("cycle.completed", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("cycle.completed", "success")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
