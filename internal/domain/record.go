package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is a bibliographic item held in the corpus.
type Record struct {
	// ID is assigned at ingestion and never reused. It is not a provider identifier.
	ID      uuid.UUID `json:"id" yaml:"id"`
	Title   string    `json:"title" yaml:"title"`
	Summary string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Authors []string  `json:"authors" yaml:"authors"`
	URL     string    `json:"url,omitempty" yaml:"url,omitempty"`

	// PublishedAt and UpdatedAt are zero when the provider omitted them.
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`

	// ProviderIDs maps a provider to its native identifier for this item.
	ProviderIDs map[SourceType]string `json:"provider_ids" yaml:"provider_ids"`

	Tags       []string `json:"tags" yaml:"tags"`
	Categories []string `json:"categories" yaml:"categories"`

	// CitationCount is only populated by enrichment or by providers that report it.
	CitationCount *int `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`

	// SourceProvider is the provider that first supplied the record.
	SourceProvider SourceType `json:"source_provider" yaml:"source_provider"`
}

// EffectiveTime returns PublishedAt, falling back to UpdatedAt.
func (r Record) EffectiveTime() time.Time {
	if !r.PublishedAt.IsZero() {
		return r.PublishedAt
	}
	return r.UpdatedAt
}

// HasCitationCount reports whether the citation count is known.
func (r Record) HasCitationCount() bool {
	return r.CitationCount != nil
}

// WithCitationCount returns a copy of the record with the citation count set.
func (r Record) WithCitationCount(n int) Record {
	out := r.Clone()
	out.CitationCount = &n
	return out
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Authors = slices.Clone(r.Authors)
	out.Tags = slices.Clone(r.Tags)
	out.Categories = slices.Clone(r.Categories)
	out.ProviderIDs = maps.Clone(r.ProviderIDs)
	if r.CitationCount != nil {
		n := *r.CitationCount
		out.CitationCount = &n
	}
	return out
}

// Normalize fills empty collections and converts timestamps to UTC at
// microsecond precision so that records compare equal after a round trip
// through any snapshot store.
func (r Record) Normalize() Record {
	out := r.Clone()
	if out.Authors == nil {
		out.Authors = []string{}
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	if out.ProviderIDs == nil {
		out.ProviderIDs = map[SourceType]string{}
	}
	out.PublishedAt = utc(out.PublishedAt)
	out.UpdatedAt = utc(out.UpdatedAt)
	return out
}

// Watermark tracks the newest and oldest record timestamps ever merged.
type Watermark struct {
	Newest time.Time `json:"newest" yaml:"newest"`
	Oldest time.Time `json:"oldest" yaml:"oldest"`
}

// IsZero reports whether the watermark has never been set.
func (w Watermark) IsZero() bool {
	return w.Newest.IsZero() && w.Oldest.IsZero()
}

// CategoryStats maps a category to the number of corpus records carrying it.
type CategoryStats map[string]int

// Snapshot is the unit persisted by a snapshot store.
type Snapshot struct {
	Records       []Record      `json:"records" yaml:"records"`
	Watermark     Watermark     `json:"watermark" yaml:"watermark"`
	CategoryStats CategoryStats `json:"category_stats" yaml:"category_stats"`
	LastFetchTime time.Time     `json:"last_fetch_time" yaml:"last_fetch_time"`
}

// EmptySnapshot returns the snapshot used on first run.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Records:       []Record{},
		CategoryStats: CategoryStats{},
	}
}

// IsEmpty reports whether the snapshot holds no records and no watermark.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.Records) == 0 && s.Watermark.IsZero() && s.LastFetchTime.IsZero())
}

// Normalize returns a copy with UTC timestamps and non-nil collections.
func (s *Snapshot) Normalize() *Snapshot {
	if s == nil {
		return EmptySnapshot()
	}
	out := &Snapshot{
		Records:       make([]Record, len(s.Records)),
		CategoryStats: CategoryStats{},
		Watermark: Watermark{
			Newest: utc(s.Watermark.Newest),
			Oldest: utc(s.Watermark.Oldest),
		},
		LastFetchTime: utc(s.LastFetchTime),
	}
	for i, r := range s.Records {
		out.Records[i] = r.Normalize()
	}
	maps.Copy(out.CategoryStats, s.CategoryStats)
	return out
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Microsecond)
}
