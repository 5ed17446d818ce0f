// Package arxiv implements the arXiv Atom export API provider.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit follows arXiv's guidance of one request every three seconds.
	DefaultRateLimit = 1.0 / 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum records per fetch.
	DefaultMaxResults = 200

	// DefaultPageSize is the number of entries requested per API call.
	DefaultPageSize = 100

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// DefaultCategories are queried when no categories are configured.
var DefaultCategories = []string{"cs.AI", "cs.LG", "cs.CL"}

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Categories restricts the fetch to these subject categories.
	Categories []string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default cap on records per fetch.
	MaxResults int

	// PageSize is the number of entries requested per API call.
	PageSize int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories
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
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
}

// Client implements the papersources.Provider interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Ensure Client implements Provider interface.
var _ papersources.Provider = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeArXiv),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchSince returns records submitted at or after threshold, newest first.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow pages through the submittedDate-filtered query, newest first,
// until maxResults records are collected or the result set is exhausted.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	now := time.Now()

	records := make([]domain.Record, 0, min(maxResults, c.config.PageSize))
	for start := 0; len(records) < maxResults; {
		pageSize := min(c.config.PageSize, maxResults-len(records))
		feed, err := c.query(ctx, c.buildSearchURL(window, now, start, pageSize))
		if err != nil {
			return nil, err
		}

		passedWindow := false
		for i := range feed.Entries {
			r, ok := entryToRecord(&feed.Entries[i])
			if !ok {
				continue
			}
			// Entries arrive newest first; one older than the window ends the scan.
			if !r.PublishedAt.IsZero() && r.PublishedAt.Before(window.From) {
				passedWindow = true
				break
			}
			if !window.Contains(r.PublishedAt, now) {
				continue
			}
			records = append(records, r)
			if len(records) == maxResults {
				break
			}
		}

		start += len(feed.Entries)
		if passedWindow || len(feed.Entries) == 0 || start >= feed.TotalResults {
			break
		}
	}

	return records, nil
}

// GetByID retrieves a specific paper by its arXiv ID.
func (c *Client) GetByID(ctx context.Context, id string) (domain.Record, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return domain.Record{}, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"
	query := url.Values{}
	query.Set("id_list", id)
	baseURL.RawQuery = query.Encode()

	feed, err := c.query(ctx, baseURL.String())
	if err != nil {
		return domain.Record{}, err
	}
	for i := range feed.Entries {
		if r, ok := entryToRecord(&feed.Entries[i]); ok {
			return r, nil
		}
	}
	return domain.Record{}, domain.NewNotFoundError("paper", id)
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) query(ctx context.Context, rawURL string) (*Feed, error) {
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

	// Parse the Atom XML response (limit body to 10MB).
	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &feed, nil
}

// buildSearchURL constructs the arXiv query URL for one page.
func (c *Client) buildSearchURL(window papersources.Window, now time.Time, start, pageSize int) string {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		baseURL = &url.URL{Scheme: "https", Host: "export.arxiv.org", Path: "/api"}
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	cats := make([]string, len(c.config.Categories))
	for i, cat := range c.config.Categories {
		cats[i] = "cat:" + cat
	}
	searchQuery := "(" + strings.Join(cats, " OR ") + ") AND " + buildDateFilter(window.From, window.End(now))

	query := url.Values{}
	query.Set("search_query", searchQuery)
	query.Set("max_results", strconv.Itoa(pageSize))
	if start > 0 {
		query.Set("start", strconv.Itoa(start))
	}
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String()
}

// buildDateFilter constructs the arXiv submittedDate range filter.
func buildDateFilter(from, to time.Time) string {
	fromStr := "*"
	if !from.IsZero() {
		fromStr = from.UTC().Format("200601021504")
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", fromStr, to.UTC().Format("200601021504"))
}

// entryToRecord converts an arXiv Atom entry to a domain Record.
func entryToRecord(entry *Entry) (domain.Record, bool) {
	arxivID := extractArXivID(strings.TrimSpace(entry.ID))
	if arxivID == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	var tags []string
	if entry.PrimaryCategory.Term != "" {
		tags = append(tags, "primary:"+entry.PrimaryCategory.Term)
	}
	if strings.TrimSpace(entry.JournalRef) == "" {
		tags = append(tags, "preprint")
	}

	link := ""
	for _, l := range entry.Links {
		if l.Rel == "alternate" {
			link = l.Href
			break
		}
	}
	if link == "" {
		link = "https://arxiv.org/abs/" + arxivID
	}

	return domain.Record{
		Title:          normalizeWhitespace(entry.Title),
		Summary:        normalizeWhitespace(entry.Summary),
		Authors:        authors,
		URL:            link,
		PublishedAt:    papersources.ParseTimestamp(entry.Published),
		UpdatedAt:      papersources.ParseTimestamp(entry.Updated),
		ProviderIDs:    papersources.SharedIDs(map[domain.SourceType]string{domain.SourceTypeArXiv: arxivID}, "", entry.DOI),
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeArXiv,
	}, true
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses runs of whitespace, including the
// newlines arXiv embeds in titles and abstracts.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
