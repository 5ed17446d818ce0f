// Package corpus holds the ordered, capacity-bounded record collection and
// the watermark arithmetic applied when new records are merged into it.
//
// Corpus values are immutable from the caller's point of view: every
// operation returns a new Corpus and leaves the receiver untouched, so the
// engine can compute a candidate state and discard it when persistence fails.
package corpus

import (
	"slices"
	"time"

	"github.com/helixir/paper-ingest-service/internal/dedup"
	"github.com/helixir/paper-ingest-service/internal/domain"
)

// Corpus is an ordered collection of records, newest first.
type Corpus struct {
	records []domain.Record
}

// New returns a corpus holding a sorted copy of records.
func New(records []domain.Record) Corpus {
	c := Corpus{records: cloneAll(records)}
	sortNewestFirst(c.records)
	return c
}

// Len returns the number of records.
func (c Corpus) Len() int {
	return len(c.records)
}

// Records returns a deep copy of the records, newest first.
func (c Corpus) Records() []domain.Record {
	return cloneAll(c.records)
}

// Keys returns the identity keys of every record in the corpus.
func (c Corpus) Keys() dedup.KeySet {
	return dedup.KeysOf(c.records)
}

// Merge prepends unique records and re-sorts by publication time, newest
// first. Records without a timestamp sort last. The sort is stable so records
// sharing a timestamp keep their provider order.
func (c Corpus) Merge(unique []domain.Record) Corpus {
	merged := make([]domain.Record, 0, len(unique)+len(c.records))
	merged = append(merged, cloneAll(unique)...)
	merged = append(merged, cloneAll(c.records)...)
	sortNewestFirst(merged)
	return Corpus{records: merged}
}

// Enforce trims the corpus to at most capacity records by evicting the
// oldest ones. A non-positive capacity disables the bound.
//
// Age here is PublishedAt, the same key Merge sorts by. A record carrying only
// UpdatedAt sorts last and is evicted first even though Extremes counts its
// UpdatedAt, so it can move the newest watermark and still be dropped.
func (c Corpus) Enforce(capacity int) (Corpus, int) {
	if capacity <= 0 || len(c.records) <= capacity {
		return Corpus{records: cloneAll(c.records)}, 0
	}
	evicted := len(c.records) - capacity
	return Corpus{records: cloneAll(c.records[:capacity])}, evicted
}

// Extremes returns the newest and oldest known record timestamps. Records
// without any timestamp are ignored; ok is false when none has one.
//
// Timestamps come from EffectiveTime, which falls back to UpdatedAt, while
// ordering and eviction use PublishedAt alone. See Enforce.
func (c Corpus) Extremes() (newest, oldest time.Time, ok bool) {
	for _, r := range c.records {
		t := r.EffectiveTime()
		if t.IsZero() {
			continue
		}
		if !ok || t.After(newest) {
			newest = t
		}
		if !ok || t.Before(oldest) {
			oldest = t
		}
		ok = true
	}
	return newest, oldest, ok
}

// CategoryStats counts records per category.
func (c Corpus) CategoryStats() domain.CategoryStats {
	stats := make(domain.CategoryStats)
	for _, r := range c.records {
		for _, cat := range r.Categories {
			if cat == "" {
				continue
			}
			stats[cat]++
		}
	}
	return stats
}

// MonthlyCounts returns the number of records published in each calendar
// month (UTC) within [from, to], keyed by the first instant of the month.
func (c Corpus) MonthlyCounts(from, to time.Time) map[time.Time]int {
	counts := make(map[time.Time]int)
	lo, hi := MonthStart(from), MonthStart(to)
	for _, r := range c.records {
		if r.PublishedAt.IsZero() {
			continue
		}
		m := MonthStart(r.PublishedAt)
		if m.Before(lo) || m.After(hi) {
			continue
		}
		counts[m]++
	}
	return counts
}

// MonthStart returns midnight UTC on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func sortNewestFirst(records []domain.Record) {
	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

func cloneAll(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
