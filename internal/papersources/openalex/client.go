package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum records per fetch.
	DefaultMaxResults = 200

	// maxPerPage is the OpenAlex page size limit.
	maxPerPage = 200

	// minConceptScore drops weakly associated concepts from Categories.
	minConceptScore = 0.3

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Filter is an optional extra OpenAlex filter expression, for example
	// "concepts.id:C154945302", appended to the date filter.
	Filter string

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

// Client implements the papersources.Provider interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := papersources.DefaultUserAgent
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeOpenAlex),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: userAgent,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchSince returns works published on or after the threshold's date.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow follows OpenAlex cursors over the publication-date filtered
// works, newest first. OpenAlex filters by calendar day, so records on the
// window's boundary days are kept even when they fall outside the exact
// instant range.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	now := time.Now()

	records := make([]domain.Record, 0, min(maxResults, maxPerPage))
	cursor := "*"
	for cursor != "" && len(records) < maxResults {
		perPage := min(maxPerPage, maxResults-len(records))
		resp, err := c.get(ctx, c.buildSearchURL(window, now, cursor, perPage))
		if err != nil {
			return nil, err
		}

		for i := range resp.Results {
			r, ok := workToRecord(&resp.Results[i])
			if !ok {
				continue
			}
			records = append(records, r)
			if len(records) == maxResults {
				break
			}
		}

		if len(resp.Results) == 0 {
			break
		}
		cursor = resp.Meta.NextCursor
	}

	return records, nil
}

// GetByID retrieves a specific work by its OpenAlex ID or DOI.
func (c *Client) GetByID(ctx context.Context, id string) (domain.Record, error) {
	fetchURL, err := c.buildGetByIDURL(id)
	if err != nil {
		return domain.Record{}, fmt.Errorf("building fetch URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return domain.Record{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Record{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Record{}, domain.NewNotFoundError("paper", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.Record{}, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var work Work
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&work); err != nil {
		return domain.Record{}, fmt.Errorf("decoding response: %w", err)
	}

	r, ok := workToRecord(&work)
	if !ok {
		return domain.Record{}, domain.NewNotFoundError("paper", id)
	}
	return r, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) get(ctx context.Context, rawURL string) (*SearchResponse, error) {
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

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &searchResp, nil
}

// buildSearchURL constructs the works URL for one cursor page.
func (c *Client) buildSearchURL(window papersources.Window, now time.Time, cursor string, perPage int) string {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		baseURL = &url.URL{Scheme: "https", Host: "api.openalex.org"}
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	query := url.Values{}
	query.Set("filter", strings.Join(c.buildFilters(window, now), ","))
	query.Set("sort", "publication_date:desc")
	query.Set("per_page", strconv.Itoa(min(perPage, maxPerPage)))
	query.Set("cursor", cursor)
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String()
}

// buildFilters constructs the filter query string components.
func (c *Client) buildFilters(window papersources.Window, now time.Time) []string {
	var filters []string
	if !window.From.IsZero() {
		filters = append(filters, "from_publication_date:"+papersources.DateString(window.From))
	}
	filters = append(filters, "to_publication_date:"+papersources.DateString(window.End(now)))
	if f := strings.TrimSpace(c.config.Filter); f != "" {
		filters = append(filters, f)
	}
	return filters
}

// buildGetByIDURL constructs the URL for fetching a work by ID.
// OpenAlex accepts OpenAlex IDs and DOIs in the path.
func (c *Client) buildGetByIDURL(id string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	var workID string
	switch {
	case strings.HasPrefix(id, openAlexIDPrefix):
		workID = strings.TrimPrefix(id, openAlexIDPrefix)
	case strings.HasPrefix(id, "10."):
		workID = doiPrefix + id
	case strings.HasPrefix(id, "doi:"):
		workID = doiPrefix + strings.TrimPrefix(id, "doi:")
	default:
		workID = id
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works/" + workID
	if c.config.Email != "" {
		query := url.Values{}
		query.Set("mailto", c.config.Email)
		baseURL.RawQuery = query.Encode()
	}

	return baseURL.String(), nil
}

// workToRecord converts an OpenAlex Work to a domain Record. Works without
// an OpenAlex ID are rejected.
func workToRecord(work *Work) (domain.Record, bool) {
	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" {
		return domain.Record{}, false
	}

	title := strings.TrimSpace(work.DisplayName)
	if title == "" {
		title = strings.TrimSpace(work.Title)
	}

	authors := make([]string, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			authors = append(authors, name)
		}
	}

	var categories []string
	for _, concept := range work.Concepts {
		if concept.Level <= 1 && concept.Score >= minConceptScore && concept.DisplayName != "" {
			categories = append(categories, concept.DisplayName)
		}
	}

	var tags []string
	if work.Type != "" {
		tags = append(tags, "type:"+work.Type)
	}
	if work.OpenAccess != nil && work.OpenAccess.IsOA {
		tags = append(tags, "open_access")
	}
	if doi := papersources.NormalizeDOI(work.DOI); doi != "" {
		tags = append(tags, "doi:"+doi)
	}

	// arXiv works are hosted at arxiv.org and usually carry an arXiv DOI.
	arxivID := ""
	if loc := work.PrimaryLocation; loc != nil && strings.Contains(loc.LandingPageURL, "arxiv.org/abs/") {
		arxivID = loc.LandingPageURL
	}

	link := ""
	switch {
	case work.DOI != "":
		link = strings.TrimSpace(work.DOI)
	case work.PrimaryLocation != nil && work.PrimaryLocation.LandingPageURL != "":
		link = work.PrimaryLocation.LandingPageURL
	default:
		link = openAlexIDPrefix + openAlexID
	}

	r := domain.Record{
		Title:          title,
		Summary:        reconstructAbstract(work.AbstractInvertedIndex),
		Authors:        authors,
		URL:            link,
		PublishedAt:    papersources.ParseTimestamp(work.PublicationDate),
		UpdatedAt:      papersources.ParseTimestamp(work.UpdatedDate),
		ProviderIDs:    papersources.SharedIDs(map[domain.SourceType]string{domain.SourceTypeOpenAlex: openAlexID}, arxivID, work.DOI),
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeOpenAlex,
	}
	if work.CitedByCount != nil {
		n := *work.CitedByCount
		r.CitationCount = &n
	}
	return r, true
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix))
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index, which maps each word to its positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}
	return builder.String()
}
