// Package ingest runs the incremental ingestion cycle: it asks every provider
// for records newer than the watermark, removes duplicates, enriches and
// merges the survivors into the corpus, and persists the result. When a cycle
// comes back empty it scans the corpus for under-populated months and
// backfills them.
//
// The Engine is the single owner of the corpus, watermark and last fetch
// time. Every cycle works on copies of that state and publishes the new state
// only after the snapshot store has accepted it, so readers and a crashed
// process only ever see the last persisted snapshot.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/corpus"
	"github.com/helixir/paper-ingest-service/internal/dedup"
	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/enrichment"
	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/papersources"
	"github.com/helixir/paper-ingest-service/internal/repository"
)

// Fetcher fans a request out to the configured providers.
// *papersources.Gateway implements it.
type Fetcher interface {
	FetchSince(ctx context.Context, threshold time.Time) []papersources.ProviderResult
	FetchWindow(ctx context.Context, window papersources.Window) []papersources.ProviderResult
}

// Enricher fills derived fields on newly merged records.
// *enrichment.Limiter implements it.
type Enricher interface {
	Enrich(ctx context.Context, records []domain.Record) ([]domain.Record, enrichment.Report)
}

// Notifier is told about every persisted state change. Failures are logged
// and never fail the cycle.
type Notifier interface {
	CorpusUpdated(ctx context.Context, result CycleResult, snap *domain.Snapshot) error
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithEnricher sets the enrichment step. Without one records are merged as fetched.
func WithEnricher(en Enricher) Option {
	return func(e *Engine) { e.enricher = en }
}

// WithNotifier sets the receiver of corpus update notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLock adds a cross-process lock taken for the duration of each cycle.
func WithLock(l Lock) Option {
	return func(e *Engine) { e.lock = l }
}

// WithMetrics sets the Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// committed is the last persisted state. It is never modified after being
// published.
type committed struct {
	corpus    corpus.Corpus
	watermark domain.Watermark
	lastFetch time.Time
	snapshot  *domain.Snapshot
}

func newCommitted(c corpus.Corpus, wm domain.Watermark, lastFetch time.Time) *committed {
	return &committed{
		corpus:    c,
		watermark: wm,
		lastFetch: lastFetch,
		snapshot: (&domain.Snapshot{
			Records:       c.Records(),
			Watermark:     wm,
			CategoryStats: c.CategoryStats(),
			LastFetchTime: lastFetch,
		}).Normalize(),
	}
}

// Engine runs ingestion cycles. It is safe for concurrent use; at most one
// cycle or backfill runs at a time.
type Engine struct {
	cfg      Config
	fetcher  Fetcher
	store    repository.SnapshotStore
	deduper  dedup.Deduper
	enricher Enricher
	notifier Notifier
	lock     Lock
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	runMu   sync.Mutex
	state   atomic.Value
	current atomic.Pointer[committed]
}

// NewEngine creates an engine with an empty corpus. Call Load to restore the
// persisted snapshot before running cycles.
func NewEngine(cfg Config, fetcher Fetcher, store repository.SnapshotStore, logger zerolog.Logger, opts ...Option) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		deduper: dedup.Deduper{Policy: cfg.DedupPolicy},
		logger:  logger.With().Str("component", "ingest_engine").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(domain.CycleStateIdle)
	e.current.Store(newCommitted(corpus.New(nil), domain.Watermark{}, time.Time{}))
	return e
}

// Load replaces the in-memory state with the persisted snapshot. An empty
// store leaves the engine empty.
func (e *Engine) Load(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if snap == nil {
		snap = domain.EmptySnapshot()
	}

	c := corpus.New(snap.Records)
	e.publish(newCommitted(c, snap.Watermark, snap.LastFetchTime))

	e.logger.Info().
		Int("records", c.Len()).
		Time("watermark_newest", snap.Watermark.Newest).
		Time("watermark_oldest", snap.Watermark.Oldest).
		Time("last_fetch_time", snap.LastFetchTime).
		Msg("snapshot loaded")
	return nil
}

// State returns the current cycle state.
func (e *Engine) State() domain.CycleState {
	return e.state.Load().(domain.CycleState)
}

// Snapshot returns a copy of the last persisted snapshot.
func (e *Engine) Snapshot() *domain.Snapshot {
	return e.current.Load().snapshot.Normalize()
}

// GetCorpusSnapshot returns the persisted records matching f, newest first.
func (e *Engine) GetCorpusSnapshot(f corpus.Filter) (corpus.Page, error) {
	if err := f.Validate(); err != nil {
		return corpus.Page{}, err
	}
	return e.current.Load().corpus.Filter(f), nil
}

// RunCycle runs one ingestion cycle. When another cycle is running it returns
// immediately with OutcomeSkipped and domain.ErrCycleInProgress; callers
// treat that as a no-op.
func (e *Engine) RunCycle(ctx context.Context, trigger Trigger) (CycleResult, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCycleInProgress) {
			e.logger.Debug().Str("trigger", string(trigger)).Msg("ingestion cycle already running, skipping")
			return CycleResult{Outcome: domain.CycleOutcomeSkipped}, err
		}
		return CycleResult{Outcome: domain.CycleOutcomeFailed}, fmt.Errorf("acquiring cycle lock: %w", err)
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

	start := time.Now()
	logger.Info().Msg("ingestion cycle started")

	result, err := e.cycle(ctx, logger)
	result.CycleID = cycleID
	result.Duration = time.Since(start)
	e.setState(domain.CycleStateIdle)

	if e.metrics != nil {
		e.metrics.RecordCycle(string(result.Outcome), result.Duration.Seconds())
	}

	if err != nil {
		logger.Error().Err(err).
			Dur("duration", result.Duration).
			Int("candidates", result.Candidates).
			Msg("ingestion cycle failed")
		return result, err
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("candidates", result.Candidates).
		Int("unique", result.Unique).
		Int("dropped", result.Dropped).
		Int("enriched", result.Enriched).
		Int("evicted", result.Evicted).
		Int("provider_failures", len(result.ProviderFailures)).
		Dur("duration", result.Duration).
		Msg("ingestion cycle completed")
	return result, nil
}

func (e *Engine) cycle(ctx context.Context, logger zerolog.Logger) (CycleResult, error) {
	cur := e.current.Load()
	now := e.now().UTC()

	result := CycleResult{
		Threshold: corpus.Threshold(cur.watermark, now, e.cfg.SafetyOverlap, e.cfg.InitialLookback),
	}

	e.setState(domain.CycleStateFetching)
	candidates, failures, succeeded := collect(e.fetcher.FetchSince(ctx, result.Threshold))
	result.Candidates = len(candidates)
	result.ProviderFailures = failures
	if err := ctx.Err(); err != nil {
		result.Outcome = domain.CycleOutcomeFailed
		return result, fmt.Errorf("fetching candidates: %w", errors.Join(domain.ErrCancelled, err))
	}

	batch, err := e.prepare(ctx, cur, candidates, now)
	result.Unique, result.Dropped, result.Enriched = batch.unique, batch.dropped, batch.enriched
	if err != nil {
		result.Outcome = domain.CycleOutcomeFailed
		return result, err
	}

	if batch.unique == 0 {
		result.Outcome = domain.CycleOutcomeNoNewData
		if len(candidates) == 0 {
			result.Outcome = domain.CycleOutcomeZeroYield
		}

		// A fetch where every provider failed is not a completed fetch.
		if succeeded > 0 {
			e.setState(domain.CycleStateNoNewData)
			next := newCommitted(cur.corpus, cur.watermark, now)
			if err := e.commit(ctx, next); err != nil {
				result.Outcome = domain.CycleOutcomeFailed
				return result, err
			}
			e.notify(ctx, logger, result, next)
		}

		if len(candidates) == 0 && !cur.watermark.IsZero() && e.cfg.Backfill.Enabled {
			bf, err := e.backfill(ctx, logger)
			result.Backfill = &bf
			if err != nil {
				result.Outcome = domain.CycleOutcomeFailed
				return result, fmt.Errorf("backfill: %w", err)
			}
		}
		return result, nil
	}

	result.Evicted = batch.evicted
	if err := e.commit(ctx, batch.next); err != nil {
		result.Outcome = domain.CycleOutcomeFailed
		return result, err
	}
	result.Outcome = domain.CycleOutcomeMerged
	e.notify(ctx, logger, result, batch.next)

	if e.metrics != nil {
		e.metrics.RecordMerged(batch.unique)
		e.metrics.RecordEvicted(batch.evicted)
	}
	return result, nil
}

// batch is the outcome of taking candidates through dedup, enrichment,
// merge, watermark extension and capacity enforcement.
type batch struct {
	next     *committed
	unique   int
	dropped  int
	enriched int
	evicted  int
}

// prepare builds the next state from cur without touching it. When nothing
// is new, next is nil.
func (e *Engine) prepare(ctx context.Context, cur *committed, candidates []domain.Record, fetchedAt time.Time) (batch, error) {
	var b batch

	e.setState(domain.CycleStateDeduplicating)
	unique, dropped := e.deduper.Dedupe(candidates, cur.corpus.Keys())
	b.unique, b.dropped = len(unique), dropped
	if e.metrics != nil {
		e.metrics.RecordDedupDropped(dropped)
	}
	if len(unique) == 0 {
		return b, nil
	}

	for i := range unique {
		if unique[i].ID == uuid.Nil {
			unique[i].ID = uuid.New()
		}
	}

	if e.enricher != nil {
		e.setState(domain.CycleStateEnriching)
		enriched, report := e.enricher.Enrich(ctx, unique)
		unique = enriched
		b.enriched = report.Enriched
	}
	if err := ctx.Err(); err != nil {
		return b, fmt.Errorf("enriching: %w", errors.Join(domain.ErrCancelled, err))
	}

	e.setState(domain.CycleStateMerging)
	merged := cur.corpus.Merge(unique)
	wm := corpus.Extend(cur.watermark, merged)
	capped, evicted := merged.Enforce(e.cfg.Capacity)
	if evicted > 0 {
		wm = corpus.RecomputeOldest(wm, capped)
	}
	b.evicted = evicted
	b.next = newCommitted(capped, wm, fetchedAt)
	return b, nil
}

// commit saves next and, only if that succeeds, publishes it.
func (e *Engine) commit(ctx context.Context, next *committed) error {
	e.setState(domain.CycleStatePersisting)

	start := time.Now()
	err := e.store.Save(ctx, next.snapshot)
	if e.metrics != nil {
		e.metrics.RecordSnapshotSave(err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}

	e.publish(next)
	return nil
}

func (e *Engine) publish(next *committed) {
	e.current.Store(next)
	if e.metrics != nil {
		e.metrics.SetCorpusSize(next.corpus.Len())
		e.metrics.SetWatermark(next.watermark.Newest, next.watermark.Oldest)
	}
}

func (e *Engine) notify(ctx context.Context, logger zerolog.Logger, result CycleResult, next *committed) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.CorpusUpdated(ctx, result, next.snapshot); err != nil {
		logger.Warn().Err(err).Msg("failed to publish corpus update")
	}
}

func (e *Engine) setState(s domain.CycleState) {
	e.state.Store(s)
}

// acquire takes the in-process single-flight lock and, when configured, the
// cross-process lock.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if !e.runMu.TryLock() {
		return nil, domain.ErrCycleInProgress
	}
	if e.lock == nil {
		return e.runMu.Unlock, nil
	}

	release, err := e.lock.Acquire(ctx)
	if err != nil {
		e.runMu.Unlock()
		return nil, err
	}
	return func() {
		release()
		e.runMu.Unlock()
	}, nil
}

// collect concatenates successful provider results in provider order and
// returns the failures keyed by provider.
// collect concatenates the successful provider results. Failures are logged
// by the gateway and only recorded here.
func collect(results []papersources.ProviderResult) ([]domain.Record, map[string]string, int) {
	var (
		records   []domain.Record
		failures  map[string]string
		succeeded int
	)
	for _, r := range results {
		if !r.OK() {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[string(r.Source)] = r.Err.Error()
			continue
		}
		succeeded++
		records = append(records, r.Records...)
	}
	return records, failures, succeeded
}
