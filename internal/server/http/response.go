package httpserver

import (
	"sort"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
	"github.com/helixir/paper-ingest-service/internal/papersources/huggingface"
)

type recordResponse struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary,omitempty"`
	Authors        []string          `json:"authors"`
	URL            string            `json:"url,omitempty"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
	UpdatedAt      *time.Time        `json:"updated_at,omitempty"`
	ProviderIDs    map[string]string `json:"provider_ids"`
	Tags           []string          `json:"tags"`
	Categories     []string          `json:"categories"`
	CitationCount  *int              `json:"citation_count,omitempty"`
	SourceProvider string            `json:"source_provider"`
}

type listRecordsResponse struct {
	Records    []recordResponse `json:"records"`
	TotalCount int              `json:"total_count"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

type watermarkResponse struct {
	Newest        *time.Time `json:"newest,omitempty"`
	Oldest        *time.Time `json:"oldest,omitempty"`
	LastFetchTime *time.Time `json:"last_fetch_time,omitempty"`
	CorpusSize    int        `json:"corpus_size"`
}

type categoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type statsResponse struct {
	CorpusSize  int             `json:"corpus_size"`
	Categories  []categoryCount `json:"categories"`
	EngineState string          `json:"engine_state"`
}

type runResponse struct {
	Status   string              `json:"status"`
	Cycle    *ingest.CycleResult `json:"cycle,omitempty"`
	Backfill *backfillResponse   `json:"backfill,omitempty"`
}

type backfillResponse struct {
	Threshold int               `json:"threshold"`
	Flagged   []string          `json:"flagged"`
	Attempted []string          `json:"attempted"`
	Filled    []string          `json:"filled"`
	Added     int               `json:"added"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type paperLookupResponse struct {
	Paper     recordResponse         `json:"paper"`
	Artifacts *huggingface.Artifacts `json:"artifacts,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func recordToResponse(r domain.Record) recordResponse {
	ids := make(map[string]string, len(r.ProviderIDs))
	for src, id := range r.ProviderIDs {
		ids[string(src)] = id
	}
	return recordResponse{
		ID:             r.ID.String(),
		Title:          r.Title,
		Summary:        r.Summary,
		Authors:        nonNil(r.Authors),
		URL:            r.URL,
		PublishedAt:    timePtr(r.PublishedAt),
		UpdatedAt:      timePtr(r.UpdatedAt),
		ProviderIDs:    ids,
		Tags:           nonNil(r.Tags),
		Categories:     nonNil(r.Categories),
		CitationCount:  r.CitationCount,
		SourceProvider: string(r.SourceProvider),
	}
}

func watermarkToResponse(snap *domain.Snapshot) watermarkResponse {
	return watermarkResponse{
		Newest:        timePtr(snap.Watermark.Newest),
		Oldest:        timePtr(snap.Watermark.Oldest),
		LastFetchTime: timePtr(snap.LastFetchTime),
		CorpusSize:    len(snap.Records),
	}
}

// sortedCategories orders categories by count descending, then name.
func sortedCategories(stats domain.CategoryStats) []categoryCount {
	out := make([]categoryCount, 0, len(stats))
	for cat, n := range stats {
		out = append(out, categoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func backfillToResponse(r ingest.BackfillResult) *backfillResponse {
	return &backfillResponse{
		Threshold: r.Threshold,
		Flagged:   monthStrings(r.Flagged),
		Attempted: monthStrings(r.Attempted),
		Filled:    monthStrings(r.Filled),
		Added:     r.Added,
		Errors:    r.Errors,
	}
}

func monthStrings(months []ingest.Month) []string {
	out := make([]string, 0, len(months))
	for _, m := range months {
		out = append(out, m.String())
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
