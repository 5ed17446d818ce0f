package corpus

import (
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Extend widens w to cover the extremes of c. Newest only moves forward and
// Oldest only moves backward.
func Extend(w domain.Watermark, c Corpus) domain.Watermark {
	newest, oldest, ok := c.Extremes()
	if !ok {
		return w
	}
	if w.Newest.IsZero() || newest.After(w.Newest) {
		w.Newest = newest
	}
	if w.Oldest.IsZero() || oldest.Before(w.Oldest) {
		w.Oldest = oldest
	}
	return w
}

// RecomputeOldest resets Oldest to the oldest surviving record after
// eviction. Newest is left unchanged.
func RecomputeOldest(w domain.Watermark, c Corpus) domain.Watermark {
	_, oldest, ok := c.Extremes()
	if !ok {
		return w
	}
	w.Oldest = oldest
	return w
}

// Threshold returns the lower bound of the next fetch window: Newest minus
// overlap, or now minus lookback when the watermark was never set.
func Threshold(w domain.Watermark, now time.Time, overlap, lookback time.Duration) time.Time {
	if w.Newest.IsZero() {
		return now.Add(-lookback)
	}
	return w.Newest.Add(-overlap)
}
