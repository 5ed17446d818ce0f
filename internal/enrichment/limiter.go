// Package enrichment fills derived fields that only a secondary provider can
// supply, currently citation counts, under a per-cycle quota and a minimum
// interval between lookups.
package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultQuota is the default number of lookups per cycle.
	DefaultQuota = 10

	// DefaultMinInterval is the default minimum gap between two lookups.
	DefaultMinInterval = 1100 * time.Millisecond
)

// CitationLookup resolves the citation count of a record. Implementations
// must not retry on throttling and should report it as domain.ErrRateLimited.
type CitationLookup interface {
	CitationCount(ctx context.Context, record domain.Record) (int, error)
}

// Config configures the limiter.
type Config struct {
	// Enabled turns enrichment on. A disabled limiter passes records through.
	Enabled bool

	// Quota caps lookups per Enrich call. Zero means DefaultQuota.
	Quota int

	// MinInterval is the minimum gap between two lookups.
	MinInterval time.Duration

	// Providers lists the providers whose records lack citation counts.
	Providers []domain.SourceType
}

func (c *Config) applyDefaults() {
	if c.Quota <= 0 {
		c.Quota = DefaultQuota
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
}

// Report summarizes one Enrich call.
type Report struct {
	Eligible  int  `json:"eligible"`
	Attempted int  `json:"attempted"`
	Enriched  int  `json:"enriched"`
	Failed    int  `json:"failed"`
	Throttled bool `json:"throttled"`
}

// Limiter enriches records under a quota and a pacing limiter. The pacing
// state is kept across calls, so the interval also holds between cycles.
type Limiter struct {
	config   Config
	lookup   CitationLookup
	pacer    *papersources.RateLimiter
	eligible map[domain.SourceType]struct{}
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// New creates a limiter. metrics may be nil.
func New(cfg Config, lookup CitationLookup, logger zerolog.Logger, metrics *observability.Metrics) *Limiter {
	cfg.applyDefaults()

	eligible := make(map[domain.SourceType]struct{}, len(cfg.Providers))
	for _, p := range cfg.Providers {
		eligible[p] = struct{}{}
	}

	return &Limiter{
		config:   cfg,
		lookup:   lookup,
		pacer:    papersources.NewIntervalLimiter(cfg.MinInterval),
		eligible: eligible,
		logger:   logger.With().Str("component", "enrichment").Logger(),
		metrics:  metrics,
	}
}

// IsEligible reports whether r should get a citation lookup.
func (l *Limiter) IsEligible(r domain.Record) bool {
	if r.HasCitationCount() {
		return false
	}
	_, ok := l.eligible[r.SourceProvider]
	return ok
}

// Enrich returns a copy of records with citation counts filled for at most
// Quota eligible records, in input order. A rate-limit signal stops the pass;
// any other lookup error only skips that record. Lookups are never retried
// and records that were not enriched are returned unchanged.
func (l *Limiter) Enrich(ctx context.Context, records []domain.Record) ([]domain.Record, Report) {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}

	var report Report
	if !l.config.Enabled || l.lookup == nil {
		return out, report
	}
	logger := observability.LoggerFromContext(ctx, l.logger)

	for i := range out {
		if !l.IsEligible(out[i]) {
			continue
		}
		report.Eligible++
		if report.Throttled || report.Attempted >= l.config.Quota {
			continue
		}

		if err := l.pacer.Wait(ctx); err != nil {
			logger.Debug().Err(err).Msg("enrichment interrupted")
			break
		}

		report.Attempted++
		count, err := l.lookup.CitationCount(ctx, out[i])
		switch {
		case err == nil:
			out[i] = out[i].WithCitationCount(count)
			report.Enriched++
		case errors.Is(err, domain.ErrRateLimited):
			report.Throttled = true
			logger.Info().
				Int("enriched", report.Enriched).
				Msg("secondary provider throttled, stopping enrichment for this cycle")
		default:
			report.Failed++
			logger.Debug().
				Err(err).
				Str("title", out[i].Title).
				Msg("citation lookup failed")
		}
	}

	if l.metrics != nil {
		throttled := 0
		if report.Throttled {
			throttled = 1
		}
		l.metrics.RecordEnrichment(report.Enriched, report.Failed, throttled)
	}
	return out, report
}
