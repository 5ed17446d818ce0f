// Package observability provides logging, metrics, and context helpers for
// the paper ingest service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	ctx = observability.WithCycle(ctx, cycleID, "schedule")
//	logger = observability.LoggerFromContext(ctx, logger)
//
// # Metrics
//
// Metrics are registered with the default Prometheus registry on creation:
//
//	metrics := observability.NewMetrics("paper_ingest")
//	metrics.RecordProviderFetch("arxiv", 42, 1.3)
//	metrics.SetCorpusSize(corpusLen)
//
// # Standard Fields
//
//   - cycle_id: ingestion cycle identifier
//   - trigger: what started the cycle (schedule, http, kafka, temporal, cli)
//   - provider: source provider (arxiv, openalex, ...)
//   - request_id: HTTP correlation id of the request that started the cycle
//
// All components are safe for concurrent use from multiple goroutines.
package observability
