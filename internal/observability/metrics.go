package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper ingest service.
// Metrics are organized by subsystem: providers, cycles, dedup, enrichment,
// corpus, backfill, snapshots and events. All collectors are registered via
// promauto with the default Prometheus registry.
type Metrics struct {
	// ProviderFetches counts provider calls, labeled by provider and result ("success", "failure").
	ProviderFetches *prometheus.CounterVec

	// ProviderRecords counts candidate records returned, labeled by provider.
	ProviderRecords *prometheus.CounterVec

	// ProviderFetchDuration observes provider call duration in seconds, labeled by provider.
	ProviderFetchDuration *prometheus.HistogramVec

	// CyclesTotal counts ingestion cycles, labeled by outcome.
	CyclesTotal *prometheus.CounterVec

	// CycleDuration observes the duration of ingestion cycles in seconds.
	CycleDuration prometheus.Histogram

	// RecordsMerged counts records added to the corpus.
	RecordsMerged prometheus.Counter

	// DedupDropped counts candidates dropped as duplicates.
	DedupDropped prometheus.Counter

	// EnrichmentLookups counts citation lookups, labeled by result
	// ("enriched", "failed", "throttled").
	EnrichmentLookups *prometheus.CounterVec

	// CorpusSize is the number of records in the committed corpus.
	CorpusSize prometheus.Gauge

	// WatermarkNewest and WatermarkOldest are the watermark bounds as Unix seconds.
	WatermarkNewest prometheus.Gauge
	WatermarkOldest prometheus.Gauge

	// RecordsEvicted counts records removed by capacity enforcement.
	RecordsEvicted prometheus.Counter

	// BackfillMonthsFlagged counts months found under-populated.
	BackfillMonthsFlagged prometheus.Counter

	// BackfillMonthsFilled counts flagged months that were fetched and persisted.
	BackfillMonthsFilled prometheus.Counter

	// SnapshotSaves counts snapshot writes, labeled by result.
	SnapshotSaves *prometheus.CounterVec

	// SnapshotSaveDuration observes snapshot write duration in seconds.
	SnapshotSaveDuration prometheus.Histogram

	// EventsPublished counts published events, labeled by event type and result.
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Providers
		ProviderFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetches_total",
			Help:      "Total number of provider fetches by provider and result",
		}, []string{"provider", "result"}),
		ProviderRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_records_total",
			Help:      "Total number of candidate records returned by provider",
		}, []string{"provider"}),
		ProviderFetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_duration_seconds",
			Help:      "Duration of provider fetches in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),

		// Cycles
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of ingestion cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		RecordsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_merged_total",
			Help:      "Total number of records merged into the corpus",
		}),
		DedupDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_dropped_total",
			Help:      "Total number of candidate records dropped as duplicates",
		}),

		// Enrichment
		EnrichmentLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_lookups_total",
			Help:      "Total number of citation lookups by result",
		}, []string{"result"}),

		// Corpus
		CorpusSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corpus_records",
			Help:      "Number of records in the committed corpus",
		}),
		WatermarkNewest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_newest_timestamp_seconds",
			Help:      "Newest record timestamp covered by the corpus",
		}),
		WatermarkOldest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_oldest_timestamp_seconds",
			Help:      "Oldest record timestamp covered by the corpus",
		}),
		RecordsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Total number of records evicted by capacity enforcement",
		}),

		// Backfill
		BackfillMonthsFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_months_flagged_total",
			Help:      "Total number of months flagged as under-populated",
		}),
		BackfillMonthsFilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_months_filled_total",
			Help:      "Total number of flagged months fetched and persisted",
		}),

		// Snapshots
		SnapshotSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_saves_total",
			Help:      "Total number of snapshot writes by result",
		}, []string{"result"}),
		SnapshotSaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_save_duration_seconds",
			Help:      "Duration of snapshot writes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of published events by type and result",
		}, []string{"event_type", "result"}),
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordProviderFetch records a successful provider fetch.
func (m *Metrics) RecordProviderFetch(provider string, records int, durationSeconds float64) {
	m.ProviderFetches.WithLabelValues(provider, "success").Inc()
	m.ProviderRecords.WithLabelValues(provider).Add(float64(records))
	m.ProviderFetchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordProviderFailure records a failed provider fetch.
func (m *Metrics) RecordProviderFailure(provider string, durationSeconds float64) {
	m.ProviderFetches.WithLabelValues(provider, "failure").Inc()
	m.ProviderFetchDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordCycle records the end of an ingestion cycle.
func (m *Metrics) RecordCycle(outcome string, durationSeconds float64) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(durationSeconds)
}

// RecordMerged records records added to the corpus.
func (m *Metrics) RecordMerged(count int) {
	m.RecordsMerged.Add(float64(count))
}

// RecordDedupDropped records candidates dropped as duplicates.
func (m *Metrics) RecordDedupDropped(count int) {
	m.DedupDropped.Add(float64(count))
}

// RecordEnrichment records citation lookup results for one cycle.
func (m *Metrics) RecordEnrichment(enriched, failed, throttled int) {
	m.EnrichmentLookups.WithLabelValues("enriched").Add(float64(enriched))
	m.EnrichmentLookups.WithLabelValues("failed").Add(float64(failed))
	m.EnrichmentLookups.WithLabelValues("throttled").Add(float64(throttled))
}

// SetCorpusSize sets the committed corpus size.
func (m *Metrics) SetCorpusSize(n int) {
	m.CorpusSize.Set(float64(n))
}

// SetWatermark publishes the watermark bounds. Zero bounds are reported as 0.
func (m *Metrics) SetWatermark(newest, oldest time.Time) {
	m.WatermarkNewest.Set(unixSeconds(newest))
	m.WatermarkOldest.Set(unixSeconds(oldest))
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.Unix())
}

// RecordEvicted records records removed by capacity enforcement.
func (m *Metrics) RecordEvicted(count int) {
	m.RecordsEvicted.Add(float64(count))
}

// RecordBackfill records one backfill pass.
func (m *Metrics) RecordBackfill(flagged, filled int) {
	m.BackfillMonthsFlagged.Add(float64(flagged))
	m.BackfillMonthsFilled.Add(float64(filled))
}

// RecordSnapshotSave records a snapshot write.
func (m *Metrics) RecordSnapshotSave(success bool, durationSeconds float64) {
	m.SnapshotSaves.WithLabelValues(resultLabel(success)).Inc()
	m.SnapshotSaveDuration.Observe(durationSeconds)
}

// RecordEventPublished records an event publish attempt.
func (m *Metrics) RecordEventPublished(eventType string, success bool) {
	m.EventsPublished.WithLabelValues(eventType, resultLabel(success)).Inc()
}
