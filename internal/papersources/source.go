// Package papersources provides the provider abstraction, the concurrent
// gateway that fans requests out to every configured provider, and the
// shared HTTP plumbing (rate limiting, retries, timestamp parsing) used by the
// concrete provider clients in the sub-packages.
//
// Each upstream (arXiv, OpenAlex, Semantic Scholar, Europe PMC, Hugging Face,
// RSS/Atom feeds) implements the Provider interface. The ingestion engine
// never talks to a provider directly; it asks the Gateway for every record
// published in a time window and receives one ProviderResult per provider.
//
// Example usage:
//
//	gw := papersources.NewGateway(logger, metrics)
//	gw.Register(arxiv.New(arxiv.Config{}), papersources.ProviderSettings{
//		Timeout:    time.Minute,
//		MaxResults: 200,
//	})
//	results := gw.FetchSince(ctx, threshold)
package papersources

import (
	"context"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Window is a closed publication-time range. A zero To means "now".
type Window struct {
	From time.Time
	To   time.Time
}

// SinceWindow returns the window from threshold up to now.
func SinceWindow(threshold time.Time) Window {
	return Window{From: threshold}
}

// End returns To, or now when To is zero.
func (w Window) End(now time.Time) time.Time {
	if w.To.IsZero() {
		return now
	}
	return w.To
}

// Contains reports whether t lies inside the window. Zero timestamps never do.
func (w Window) Contains(t time.Time, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(w.From) && !t.After(w.End(now))
}

// Provider is the interface every upstream record source implements.
//
// Implementations must:
//   - Be safe for concurrent use
//   - Honour context cancellation and deadlines
//   - Return records newest first where the upstream supports it
//   - Never return more than maxResults records (0 means the provider default)
//   - Set SourceProvider and at least one ProviderIDs entry on every record
//   - Leave Record.ID unset; identifiers are assigned at ingestion
type Provider interface {
	// FetchSince returns records published at or after threshold.
	FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error)

	// FetchWindow returns records published inside the window.
	FetchWindow(ctx context.Context, window Window, maxResults int) ([]domain.Record, error)

	// SourceType returns the provider identifier used in identity keys.
	SourceType() domain.SourceType

	// Name returns a human-readable provider name.
	Name() string

	// IsEnabled reports whether the provider is configured for use.
	IsEnabled() bool
}

// ProviderResult is the settled outcome of one provider call.
type ProviderResult struct {
	Source   domain.SourceType
	Records  []domain.Record
	Err      error
	Duration time.Duration
}

// OK reports whether the provider call succeeded.
func (r ProviderResult) OK() bool {
	return r.Err == nil
}
