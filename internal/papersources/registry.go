package papersources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/observability"
)

// DefaultProviderTimeout bounds a provider call when no timeout is configured.
const DefaultProviderTimeout = 2 * time.Minute

// ProviderSettings are the per-provider limits applied by the gateway.
type ProviderSettings struct {
	// Timeout bounds one FetchSince/FetchWindow call.
	Timeout time.Duration

	// MaxResults caps the records requested from the provider.
	MaxResults int
}

type registration struct {
	provider Provider
	settings ProviderSettings
}

// Gateway manages the configured providers and fans fetches out to them.
// It is safe for concurrent use.
type Gateway struct {
	mu        sync.RWMutex
	providers map[domain.SourceType]registration
	order     []domain.SourceType
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewGateway creates an empty gateway. metrics may be nil.
func NewGateway(logger zerolog.Logger, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		providers: make(map[domain.SourceType]registration),
		logger:    logger.With().Str("component", "provider_gateway").Logger(),
		metrics:   metrics,
	}
}

// Register adds a provider. Registering a source type again replaces the
// earlier provider but keeps its position in the fan-out order.
func (g *Gateway) Register(p Provider, settings ProviderSettings) {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultProviderTimeout
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st := p.SourceType()
	if _, exists := g.providers[st]; !exists {
		g.order = append(g.order, st)
	}
	g.providers[st] = registration{provider: p, settings: settings}
}

// Get returns the provider registered for a source type.
func (g *Gateway) Get(st domain.SourceType) (Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	reg, ok := g.providers[st]
	return reg.provider, ok
}

// EnabledSources returns the enabled source types in registration order.
func (g *Gateway) EnabledSources() []domain.SourceType {
	regs := g.enabled()
	out := make([]domain.SourceType, len(regs))
	for i, reg := range regs {
		out[i] = reg.provider.SourceType()
	}
	return out
}

func (g *Gateway) enabled() []registration {
	g.mu.RLock()
	defer g.mu.RUnlock()

	regs := make([]registration, 0, len(g.order))
	for _, st := range g.order {
		if reg := g.providers[st]; reg.provider.IsEnabled() {
			regs = append(regs, reg)
		}
	}
	return regs
}

// FetchSince asks every enabled provider for records published at or after
// threshold.
func (g *Gateway) FetchSince(ctx context.Context, threshold time.Time) []ProviderResult {
	return g.fetch(ctx, SinceWindow(threshold))
}

// FetchWindow asks every enabled provider for records inside window.
func (g *Gateway) FetchWindow(ctx context.Context, window Window) []ProviderResult {
	return g.fetch(ctx, window)
}

// fetch calls every enabled provider concurrently, each under its own
// timeout, and waits for all of them to settle. Results come back in
// registration order with one entry per provider. A failing provider yields
// zero records and an error and never cancels its siblings.
func (g *Gateway) fetch(ctx context.Context, window Window) []ProviderResult {
	regs := g.enabled()
	if len(regs) == 0 {
		return nil
	}

	results := make([]ProviderResult, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			results[i] = g.call(ctx, reg, window)
		}(i, reg)
	}
	wg.Wait()

	return results
}

type fetchOutcome struct {
	records []domain.Record
	err     error
}

// call runs one provider under its own timeout. The provider runs in a
// separate goroutine so that a provider ignoring its context still cannot
// hold the cycle past the timeout.
func (g *Gateway) call(ctx context.Context, reg registration, window Window) ProviderResult {
	st := reg.provider.SourceType()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, reg.settings.Timeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fetchOutcome{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		var out fetchOutcome
		if window.To.IsZero() {
			out.records, out.err = reg.provider.FetchSince(ctx, window.From, reg.settings.MaxResults)
		} else {
			out.records, out.err = reg.provider.FetchWindow(ctx, window, reg.settings.MaxResults)
		}
		done <- out
	}()

	var out fetchOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = fetchOutcome{err: fmt.Errorf("fetch abandoned: %w", ctx.Err())}
	}

	result := ProviderResult{Source: st, Duration: time.Since(start)}
	if out.err != nil {
		result.Err = domain.NewProviderError(string(st), out.err)
		g.observe(ctx, result)
		return result
	}

	records := out.records
	if limit := reg.settings.MaxResults; limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	for i := range records {
		if records[i].SourceProvider == "" {
			records[i].SourceProvider = st
		}
	}
	result.Records = records
	g.observe(ctx, result)
	return result
}

func (g *Gateway) observe(ctx context.Context, result ProviderResult) {
	seconds := result.Duration.Seconds()
	logger := observability.WithProviderContext(observability.LoggerFromContext(ctx, g.logger), string(result.Source))
	if result.Err != nil {
		logger.Warn().
			Err(result.Err).
			Dur("duration", result.Duration).
			Msg("provider fetch failed")
		if g.metrics != nil {
			g.metrics.RecordProviderFailure(string(result.Source), seconds)
		}
		return
	}

	logger.Debug().
		Int("records", len(result.Records)).
		Dur("duration", result.Duration).
		Msg("provider fetch completed")
	if g.metrics != nil {
		g.metrics.RecordProviderFetch(string(result.Source), len(result.Records), seconds)
	}
}
