package semanticscholar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

// Compile-time check that Client implements papersources.Provider.
var _ papersources.Provider = (*Client)(nil)

func intPtr(n int) *int { return &n }

func newTestClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     "semanticscholar",
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
	return NewClient(Config{
		BaseURL:   serverURL,
		APIKey:    "test-key",
		RateLimit: 1000,
		BurstSize: 100,
		Enabled:   true,
	}, httpClient)
}

func samplePaper(id, date string) PaperResult {
	return PaperResult{
		PaperID:          id,
		Title:            " Attention Is All You Need ",
		Abstract:         "Transformers.",
		URL:              "https://www.semanticscholar.org/paper/" + id,
		PublicationDate:  date,
		Year:             2024,
		Venue:            "NeurIPS",
		Authors:          []Author{{Name: "Ashish Vaswani"}, {Name: ""}, {Name: "Noam Shazeer"}},
		CitationCount:    intPtr(90000),
		IsOpenAccess:     true,
		FieldsOfStudy:    []string{"Computer Science"},
		S2FieldsOfStudy:  []FieldOfStudy{{Category: "Computer Science"}, {Category: "Mathematics"}},
		PublicationTypes: []string{"JournalArticle"},
		ExternalIDs:      &ExternalIDs{DOI: "10.5555/ABC", ArXiv: "1706.03762"},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with default values", func(t *testing.T) {
		client := NewClient(Config{Enabled: true}, nil)

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
		assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
		assert.Equal(t, DefaultFieldsOfStudy, client.config.FieldsOfStudy)
		assert.NotNil(t, client.lookupClient)
	})

	t.Run("uses provided HTTP client", func(t *testing.T) {
		httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{})
		client := NewClient(Config{Enabled: true}, httpClient)

		assert.Same(t, httpClient, client.httpClient)
		assert.NotSame(t, httpClient, client.lookupClient)
	})

	t.Run("identity", func(t *testing.T) {
		client := NewClient(Config{}, nil)

		assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
		assert.Equal(t, "Semantic Scholar", client.Name())
		assert.False(t, client.IsEnabled())
	})
}

func TestClient_FetchWindow(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/paper/search/bulk", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		q := r.URL.Query()
		assert.Equal(t, "2024-03-01:2024-03-31", q.Get("publicationDateOrYear"))
		assert.Equal(t, "publicationDate:desc", q.Get("sort"))
		assert.Equal(t, "Computer Science", q.Get("fieldsOfStudy"))
		assert.Equal(t, "", q.Get("query"))

		switch q.Get("token") {
		case "":
			writeJSON(t, w, BulkSearchResponse{
				Total: 3,
				Token: "next",
				Data:  []PaperResult{samplePaper("s1", "2024-03-20"), samplePaper("s2", "")},
			})
		case "next":
			writeJSON(t, w, BulkSearchResponse{
				Total: 3,
				Data:  []PaperResult{samplePaper("s3", "2024-03-02")},
			})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	window := papersources.Window{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC),
	}

	records, err := client.FetchWindow(context.Background(), window, 0)
	require.NoError(t, err)

	// s2 carries only a year and is skipped.
	require.Len(t, records, 2)
	assert.Equal(t, int32(2), calls.Load())

	r := records[0]
	assert.Equal(t, "Attention Is All You Need", r.Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, r.Authors)
	assert.Equal(t, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), r.PublishedAt)
	assert.Equal(t, map[domain.SourceType]string{
		domain.SourceTypeSemanticScholar: "s1",
		domain.SourceTypeArXiv:           "1706.03762",
		domain.IdentifierDOI:             "10.5555/abc",
	}, r.ProviderIDs)
	assert.Equal(t, []string{"Computer Science", "Mathematics"}, r.Categories)
	assert.Equal(t, []string{"type:journalarticle", "open_access", "venue:NeurIPS", "doi:10.5555/abc"}, r.Tags)
	require.True(t, r.HasCitationCount())
	assert.Equal(t, 90000, *r.CitationCount)
	assert.Equal(t, domain.SourceTypeSemanticScholar, r.SourceProvider)
	assert.Equal(t, "s3", records[1].ProviderIDs[domain.SourceTypeSemanticScholar])
}

func TestClient_FetchWindow_RespectsMaxResults(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, BulkSearchResponse{
			Token: "more",
			Data:  []PaperResult{samplePaper("a", "2024-01-03"), samplePaper("b", "2024-01-02")},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	records, err := client.FetchSince(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)

	assert.Len(t, records, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_FetchWindow_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Unrecognized field"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchSince(context.Background(), time.Now(), 10)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Unrecognized field", apiErr.Message)
}

func TestClient_GetByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/paper/abc" {
			writeJSON(t, w, samplePaper("abc", "2024-02-02"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Paper not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	r, err := client.GetByID(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", r.ProviderIDs[domain.SourceTypeSemanticScholar])

	_, err = client.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_CitationCount(t *testing.T) {
	t.Run("looks up by arxiv id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/ARXIV:2401.00001", r.URL.Path)
			assert.Equal(t, "citationCount", r.URL.Query().Get("fields"))
			writeJSON(t, w, PaperResult{PaperID: "x", CitationCount: intPtr(42)})
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		n, err := client.CitationCount(context.Background(), domain.Record{
			ProviderIDs: map[domain.SourceType]string{domain.SourceTypeArXiv: "2401.00001"},
		})
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	})

	t.Run("rate limit is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		start := time.Now()
		_, err := client.CitationCount(context.Background(), domain.Record{
			ProviderIDs: map[domain.SourceType]string{domain.SourceTypeSemanticScholar: "s1"},
		})

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.Equal(t, int32(1), calls.Load())
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("record without identifiers", func(t *testing.T) {
		client := newTestClient("http://127.0.0.1:0")
		_, err := client.CitationCount(context.Background(), domain.Record{Title: "orphan"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown paper", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		_, err := client.CitationCount(context.Background(), domain.Record{Tags: []string{"doi:10.1/x"}})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestLookupID(t *testing.T) {
	tests := []struct {
		name   string
		record domain.Record
		want   string
		ok     bool
	}{
		{
			name: "semantic scholar id wins",
			record: domain.Record{ProviderIDs: map[domain.SourceType]string{
				domain.SourceTypeSemanticScholar: "s2id",
				domain.SourceTypeArXiv:           "2401.1",
			}},
			want: "s2id", ok: true,
		},
		{
			name:   "hugging face ids are arxiv ids",
			record: domain.Record{ProviderIDs: map[domain.SourceType]string{domain.SourceTypeHuggingFace: "2401.2"}},
			want:   "ARXIV:2401.2", ok: true,
		},
		{
			name:   "doi tag",
			record: domain.Record{Tags: []string{"open_access", "doi:10.1/abc"}},
			want:   "DOI:10.1/abc", ok: true,
		},
		{
			name:   "nothing usable",
			record: domain.Record{ProviderIDs: map[domain.SourceType]string{domain.SourceTypeFeed: "guid"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lookupID(tt.record)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	assert.Equal(t, "", buildSearchQuery(nil))
	assert.Equal(t, "transformer", buildSearchQuery([]string{" transformer "}))
	assert.Equal(t, `"large language model" | diffusion`, buildSearchQuery([]string{"large language model", "", "diffusion"}))
}

func TestBuildDateRange(t *testing.T) {
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ":2024-05-31", buildDateRange(time.Time{}, to))
	assert.Equal(t, "2024-05-01:2024-05-31", buildDateRange(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), to))
}
