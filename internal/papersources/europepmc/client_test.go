package europepmc

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

func newTestClient(serverURL string) *Client {
	return NewWithHTTPClient(Config{BaseURL: serverURL, Enabled: true}, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     "europepmc",
		RateLimit:  1000,
		BurstSize:  100,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}))
}

func intPtr(n int) *int { return &n }

func sampleArticle(id string) Article {
	return Article{
		ID:                   id,
		Source:               "PPR",
		DOI:                  "10.1101/2024.01.15.575123",
		Title:                "Single-cell atlas of the developing retina.",
		AuthorString:         "Smith J, Doe A, Lee K.",
		AbstractText:         " We map the retina. ",
		IsOpenAccess:         "Y",
		CitedByCount:         intPtr(3),
		FirstPublicationDate: "2024-01-15",
		FirstIndexDate:       "2024-01-17",
		PublisherName:        "bioRxiv",
		KeywordList:          &KeywordList{Keyword: []string{"retina", " ", "single-cell"}},
	}
}

func TestClient_Defaults(t *testing.T) {
	client := New(Config{})

	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultPublishers, client.config.Publishers)
	assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
	assert.Equal(t, domain.SourceTypeEuropePMC, client.SourceType())
	assert.Equal(t, "Europe PMC", client.Name())
	assert.False(t, client.IsEnabled())
}

func TestClient_FetchWindow(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t,
			`(SRC:PPR) AND (PUBLISHER:"bioRxiv" OR PUBLISHER:"medRxiv") AND (FIRST_PDATE:[2024-01-01 TO 2024-01-31])`,
			q.Get("query"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "core", q.Get("resultType"))

		w.Header().Set("Content-Type", "application/json")
		switch q.Get("cursorMark") {
		case "*":
			_ = json.NewEncoder(w).Encode(SearchResponse{
				HitCount:       2,
				NextCursorMark: "AoE1",
				ResultList:     ResultList{Result: []Article{sampleArticle("PPR1"), {Title: "no id"}}},
			})
		case "AoE1":
			_ = json.NewEncoder(w).Encode(SearchResponse{
				HitCount:       2,
				NextCursorMark: "AoE1",
				ResultList:     ResultList{Result: []Article{sampleArticle("PPR2")}},
			})
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	window := papersources.Window{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	records, err := client.FetchWindow(context.Background(), window, 0)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int32(2), calls.Load())

	r := records[0]
	assert.Equal(t, "Single-cell atlas of the developing retina", r.Title)
	assert.Equal(t, "We map the retina.", r.Summary)
	assert.Equal(t, []string{"Smith J", "Doe A", "Lee K"}, r.Authors)
	assert.Equal(t, "https://doi.org/10.1101/2024.01.15.575123", r.URL)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), r.PublishedAt)
	assert.Equal(t, map[domain.SourceType]string{
		domain.SourceTypeEuropePMC: "PPR1",
		domain.IdentifierDOI:       "10.1101/2024.01.15.575123",
	}, r.ProviderIDs)
	assert.Equal(t, []string{"preprint", "server:biorxiv", "open_access", "doi:10.1101/2024.01.15.575123"}, r.Tags)
	assert.Equal(t, []string{"retina", "single-cell"}, r.Categories)
	require.True(t, r.HasCitationCount())
	assert.Equal(t, 3, *r.CitationCount)
	assert.Equal(t, "PPR2", records[1].ProviderIDs[domain.SourceTypeEuropePMC])
}

func TestClient_FetchWindow_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchSince(context.Background(), time.Now(), 5)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_buildQuery(t *testing.T) {
	now := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	client := New(Config{Query: "retina OR cornea", Publishers: []string{"medRxiv"}})

	got := client.buildQuery(papersources.Window{}, now)
	assert.Equal(t, `(retina OR cornea) AND (SRC:PPR) AND (PUBLISHER:"medRxiv") AND (FIRST_PDATE:[* TO 2024-02-10])`, got)
}

func TestArticleToRecord(t *testing.T) {
	t.Run("without doi links to europe pmc", func(t *testing.T) {
		a := sampleArticle("PPR9")
		a.DOI = ""
		a.IsOpenAccess = "N"
		a.CitedByCount = nil

		r, ok := articleToRecord(&a)
		require.True(t, ok)
		assert.Equal(t, "https://europepmc.org/article/PPR/PPR9", r.URL)
		assert.NotContains(t, r.Tags, "open_access")
		assert.False(t, r.HasCitationCount())
	})

	t.Run("requires id", func(t *testing.T) {
		_, ok := articleToRecord(&Article{Title: "x"})
		assert.False(t, ok)
	})
}

func TestParseAuthorString(t *testing.T) {
	assert.Nil(t, parseAuthorString(" . "))
	assert.Equal(t, []string{"Smith J"}, parseAuthorString("Smith J."))
	assert.Equal(t, []string{"A B", "C D"}, parseAuthorString("A B, , C D"))
}
