package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default Europe PMC API base URL.
	DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest"

	// DefaultRateLimit is the default rate limit (5 requests per second).
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum records per fetch.
	DefaultMaxResults = 200

	// maxPageSize is the Europe PMC page size limit.
	maxPageSize = 1000

	sourceName = "Europe PMC"
)

// DefaultPublishers are the preprint servers queried when none are configured.
var DefaultPublishers = []string{"bioRxiv", "medRxiv"}

// Config holds configuration for the Europe PMC client.
type Config struct {
	// BaseURL is the Europe PMC API base URL.
	BaseURL string

	// Query is an optional Europe PMC query expression AND-ed with the
	// preprint and date filters.
	Query string

	// Publishers limits results to these preprint servers.
	Publishers []string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default cap on records per fetch.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if len(c.Publishers) == 0 {
		c.Publishers = DefaultPublishers
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements papersources.Provider for Europe PMC preprints.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a new Europe PMC client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeEuropePMC),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Europe PMC client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchSince returns preprints first published on or after the threshold's date.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow follows cursorMark pagination over the FIRST_PDATE range.
// Europe PMC signals the last page by echoing the cursor it was given.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	now := time.Now()

	records := make([]domain.Record, 0, min(maxResults, maxPageSize))
	cursor := "*"
	for len(records) < maxResults {
		pageSize := min(maxPageSize, maxResults-len(records))
		resp, err := c.search(ctx, c.buildSearchURL(window, now, cursor, pageSize))
		if err != nil {
			return nil, err
		}

		for i := range resp.ResultList.Result {
			r, ok := articleToRecord(&resp.ResultList.Result[i])
			if !ok {
				continue
			}
			records = append(records, r)
			if len(records) == maxResults {
				break
			}
		}

		if len(resp.ResultList.Result) == 0 || resp.NextCursorMark == "" || resp.NextCursorMark == cursor {
			break
		}
		cursor = resp.NextCursorMark
	}

	return records, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeEuropePMC
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) search(ctx context.Context, rawURL string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	// Parse the JSON response (limit body to 10MB).
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &searchResp, nil
}

// buildSearchURL constructs the Europe PMC search API URL for one page.
func (c *Client) buildSearchURL(window papersources.Window, now time.Time, cursorMark string, pageSize int) string {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		baseURL = &url.URL{Scheme: "https", Host: "www.ebi.ac.uk", Path: "/europepmc/webservices/rest"}
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search"

	urlQuery := url.Values{}
	urlQuery.Set("query", c.buildQuery(window, now))
	urlQuery.Set("format", "json")
	urlQuery.Set("resultType", "core")
	urlQuery.Set("sort", "FIRST_PDATE_D desc")
	urlQuery.Set("pageSize", strconv.Itoa(pageSize))
	urlQuery.Set("cursorMark", cursorMark)

	baseURL.RawQuery = urlQuery.Encode()
	return baseURL.String()
}

// buildQuery joins the configured query, the preprint source restriction,
// the publisher list and the date range.
// Example: (SRC:PPR) AND (PUBLISHER:"bioRxiv" OR PUBLISHER:"medRxiv") AND (FIRST_PDATE:[2024-01-01 TO 2024-01-31])
func (c *Client) buildQuery(window papersources.Window, now time.Time) string {
	var parts []string
	if q := strings.TrimSpace(c.config.Query); q != "" {
		parts = append(parts, "("+q+")")
	}
	parts = append(parts, "(SRC:PPR)")

	publishers := make([]string, len(c.config.Publishers))
	for i, p := range c.config.Publishers {
		publishers[i] = fmt.Sprintf(`PUBLISHER:"%s"`, p)
	}
	parts = append(parts, "("+strings.Join(publishers, " OR ")+")")
	parts = append(parts, buildDateFilter(window.From, window.End(now)))

	return strings.Join(parts, " AND ")
}

// buildDateFilter constructs the Europe PMC date filter string.
func buildDateFilter(from, to time.Time) string {
	fromStr := "*"
	if !from.IsZero() {
		fromStr = papersources.DateString(from)
	}
	return fmt.Sprintf("(FIRST_PDATE:[%s TO %s])", fromStr, papersources.DateString(to))
}

// articleToRecord converts a Europe PMC Article to a domain Record.
func articleToRecord(article *Article) (domain.Record, bool) {
	id := strings.TrimSpace(article.ID)
	if id == "" {
		return domain.Record{}, false
	}

	doi := strings.ToLower(strings.TrimSpace(article.DOI))

	var tags []string
	tags = append(tags, "preprint")
	if p := strings.TrimSpace(article.PublisherName); p != "" {
		tags = append(tags, "server:"+strings.ToLower(p))
	}
	if article.IsOpenAccess != "N" {
		tags = append(tags, "open_access")
	}
	if doi != "" {
		tags = append(tags, "doi:"+doi)
	}

	var categories []string
	if article.KeywordList != nil {
		for _, k := range article.KeywordList.Keyword {
			if k = strings.TrimSpace(k); k != "" {
				categories = append(categories, k)
			}
		}
	}

	link := "https://europepmc.org/article/" + strings.TrimSpace(article.Source) + "/" + id
	if doi != "" {
		link = "https://doi.org/" + doi
	}

	r := domain.Record{
		Title:          strings.TrimSuffix(strings.TrimSpace(article.Title), "."),
		Summary:        strings.TrimSpace(article.AbstractText),
		Authors:        parseAuthorString(article.AuthorString),
		URL:            link,
		PublishedAt:    papersources.ParseTimestamp(article.FirstPublicationDate),
		UpdatedAt:      papersources.ParseTimestamp(article.FirstIndexDate),
		ProviderIDs:    papersources.SharedIDs(map[domain.SourceType]string{domain.SourceTypeEuropePMC: id}, "", doi),
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeEuropePMC,
	}
	if article.CitedByCount != nil {
		n := *article.CitedByCount
		r.CitationCount = &n
	}
	return r, true
}

// parseAuthorString parses the Europe PMC authorString field.
// The format is "Author A, Author B, Author C." with authors separated by ", ".
func parseAuthorString(authorString string) []string {
	authorString = strings.TrimSpace(authorString)
	authorString = strings.TrimSuffix(authorString, ".")
	if authorString == "" {
		return nil
	}

	parts := strings.Split(authorString, ", ")
	authors := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
