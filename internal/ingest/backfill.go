package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

// Month is one calendar month of the corpus.
type Month struct {
	// Start is midnight UTC on the first day of the month.
	Start time.Time `json:"start"`
	// Count is the number of corpus records published in the month.
	Count int `json:"count"`
}

// End returns the last instant of the month.
func (m Month) End() time.Time {
	return m.Start.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return m.Start.Format("2006-01")
}

// BackfillResult describes one backfill pass.
type BackfillResult struct {
	// Threshold is the minimum monthly count used for this pass.
	Threshold int `json:"threshold"`

	// Flagged lists every under-populated month, newest first.
	Flagged []Month `json:"flagged"`

	// Attempted is the prefix of Flagged that was fetched.
	Attempted []Month `json:"attempted"`

	// Filled lists the attempted months that yielded new records and were persisted.
	Filled []Month `json:"filled"`

	// Added is the number of records merged across all filled months.
	Added int `json:"added"`

	// Errors maps "<month>:<provider>" to a provider failure.
	Errors map[string]string `json:"errors,omitempty"`
}

func (r *BackfillResult) addError(m Month, provider, msg string) {
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[m.String()+":"+provider] = msg
}

// FindGaps buckets the corpus by calendar month between the watermark's
// oldest month and its newest month, never going further back than
// HorizonMonths before the newest, and returns the months holding fewer
// records than the density threshold, newest first. Each month appears at
// most once.
func FindGaps(c corpus.Corpus, wm domain.Watermark, cfg BackfillConfig) ([]Month, int) {
	if wm.Newest.IsZero() || wm.Oldest.IsZero() {
		return nil, 0
	}

	hi := corpus.MonthStart(wm.Newest)
	lo := corpus.MonthStart(wm.Oldest)
	if horizon := hi.AddDate(0, -cfg.HorizonMonths, 0); lo.Before(horizon) {
		lo = horizon
	}

	threshold := cfg.Density.Threshold(c.Len())
	counts := c.MonthlyCounts(lo, hi)

	var gaps []Month
	for m := hi; !m.Before(lo); m = m.AddDate(0, -1, 0) {
		if n := counts[m]; n < threshold {
			gaps = append(gaps, Month{Start: m, Count: n})
		}
	}
	return gaps, threshold
}

// RunBackfill runs one gap backfill pass on demand, under the same
// single-flight rule as RunCycle.
func (e *Engine) RunBackfill(ctx context.Context, trigger Trigger) (BackfillResult, error) {
	if !e.cfg.Backfill.Enabled {
		return BackfillResult{}, domain.NewValidationError("backfill", "backfill is disabled")
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return BackfillResult{}, err
	}
	defer release()

	if e.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CycleTimeout)
		defer cancel()
	}

	cycleID := uuid.NewString()
	ctx = observability.WithCycle(ctx, cycleID, string(trigger))
	logger := observability.LoggerFromContext(ctx, e.logger)

	result, err := e.backfill(ctx, logger)
	e.setState(domain.CycleStateIdle)
	if err != nil {
		logger.Error().Err(err).Msg("backfill failed")
		return result, err
	}
	return result, nil
}

// backfill fetches each flagged month, up to MaxMonthsPerScan, and persists
// after every month that yields new records. The caller holds the cycle lock.
func (e *Engine) backfill(ctx context.Context, logger zerolog.Logger) (BackfillResult, error) {
	e.setState(domain.CycleStateBackfilling)
	cfg := e.cfg.Backfill

	cur := e.current.Load()
	gaps, threshold := FindGaps(cur.corpus, cur.watermark, cfg)
	result := BackfillResult{Threshold: threshold, Flagged: gaps}

	attempt := gaps
	if len(attempt) > cfg.MaxMonthsPerScan {
		attempt = attempt[:cfg.MaxMonthsPerScan]
	}
	logger.Info().
		Int("flagged", len(gaps)).
		Int("attempting", len(attempt)).
		Int("threshold", threshold).
		Msg("backfill scan started")

	defer func() {
		if e.metrics != nil {
			e.metrics.RecordBackfill(len(result.Flagged), len(result.Filled))
		}
	}()

	for _, m := range attempt {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("backfill interrupted: %w", errors.Join(domain.ErrCancelled, err))
		}
		result.Attempted = append(result.Attempted, m)

		window := papersources.Window{
			From: m.Start.Add(-cfg.Slack),
			To:   m.End().Add(cfg.Slack),
		}
		monthLogger := logger.With().Str("month", m.String()).Logger()
		candidates, failures, _ := collect(e.fetcher.FetchWindow(ctx, window))
		for provider, msg := range failures {
			result.addError(m, provider, msg)
		}

		cur = e.current.Load()
		b, err := e.prepare(ctx, cur, candidates, cur.lastFetch)
		if err != nil {
			return result, err
		}
		if b.unique == 0 {
			monthLogger.Debug().Int("candidates", len(candidates)).Msg("backfill month yielded nothing new")
			continue
		}

		if err := e.commit(ctx, b.next); err != nil {
			return result, err
		}
		result.Filled = append(result.Filled, m)
		result.Added += b.unique
		if e.metrics != nil {
			e.metrics.RecordMerged(b.unique)
			e.metrics.RecordEvicted(b.evicted)
		}
		e.notify(ctx, monthLogger, CycleResult{
			Outcome:    domain.CycleOutcomeMerged,
			Candidates: len(candidates),
			Unique:     b.unique,
			Dropped:    b.dropped,
			Enriched:   b.enriched,
			Evicted:    b.evicted,
		}, b.next)

		monthLogger.Info().
			Int("candidates", len(candidates)).
			Int("added", b.unique).
			Msg("backfill month filled")
	}

	logger.Info().
		Int("filled", len(result.Filled)).
		Int("added", result.Added).
		Msg("backfill scan completed")
	return result, nil
}
