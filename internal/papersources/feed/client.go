// Package feed implements a provider over arbitrary RSS, Atom and JSON
// feeds, such as journal table-of-contents feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum records per fetch.
	DefaultMaxResults = 200

	// maxFeedBytes caps a single feed document.
	maxFeedBytes = 10 << 20

	sourceName = "Feeds"
)

// Source is one configured feed.
type Source struct {
	// Name labels records from this feed with a "feed:<name>" tag.
	Name string `mapstructure:"name"`

	// URL is the feed location.
	URL string `mapstructure:"url"`
}

// Config holds configuration for the feed provider.
type Config struct {
	// Sources are fetched in order.
	Sources []Source

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second across all feeds.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default cap on records per fetch.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

func (c *Config) applyDefaults() {
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

// Client implements papersources.Provider over a list of feeds.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a new feed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:    string(domain.SourceTypeFeed),
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		}),
	}
}

// NewWithHTTPClient creates a new feed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchSince returns feed items published at or after threshold.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow reads every configured feed and keeps the items inside the
// window, newest first. A broken feed is skipped as long as at least one
// feed could be read; when all fail the joined errors are returned.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if len(c.config.Sources) == 0 {
		return nil, nil
	}
	now := time.Now()

	var (
		records []domain.Record
		errs    []error
	)
	seen := make(map[string]struct{})
	for _, src := range c.config.Sources {
		parsed, err := c.fetchFeed(ctx, src.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("feed %s: %w", sourceLabel(src), err))
			continue
		}

		for _, item := range parsed.Items {
			r, ok := itemToRecord(item, src)
			if !ok || !window.Contains(r.EffectiveTime(), now) {
				continue
			}
			id := r.ProviderIDs[domain.SourceTypeFeed]
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			records = append(records, r)
		}
	}

	if len(errs) == len(c.config.Sources) {
		return nil, errors.Join(errs...)
	}

	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return b.EffectiveTime().Compare(a.EffectiveTime())
	})
	if len(records) > maxResults {
		records = records[:maxResults]
	}
	return records, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeFeed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && len(c.config.Sources) > 0
}

// fetchFeed downloads through the shared rate-limited client and hands the
// body to gofeed, which detects RSS, Atom and JSON Feed.
func (c *Client) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(feedURL, resp.StatusCode, string(body), nil)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return parsed, nil
}

// itemToRecord converts a gofeed item. The native identifier is the item
// GUID, falling back to its link.
func itemToRecord(item *gofeed.Item, src Source) (domain.Record, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	title := strings.Join(strings.Fields(item.Title), " ")
	if id == "" || title == "" {
		return domain.Record{}, false
	}

	var authors []string
	for _, a := range item.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			authors = append(authors, strings.TrimSpace(a.Name))
		}
	}

	var categories []string
	for _, cat := range item.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			categories = append(categories, cat)
		}
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	var tags []string
	if label := sourceLabel(src); label != "" {
		tags = append(tags, "feed:"+label)
	}

	r := domain.Record{
		Title:          title,
		Summary:        stripHTML(summary),
		Authors:        authors,
		URL:            strings.TrimSpace(item.Link),
		ProviderIDs:    map[domain.SourceType]string{domain.SourceTypeFeed: id},
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeFeed,
	}
	if item.PublishedParsed != nil {
		r.PublishedAt = item.PublishedParsed.UTC()
	} else {
		r.PublishedAt = papersources.ParseTimestamp(item.Published)
	}
	if item.UpdatedParsed != nil {
		r.UpdatedAt = item.UpdatedParsed.UTC()
	} else {
		r.UpdatedAt = papersources.ParseTimestamp(item.Updated)
	}
	return r, true
}

func sourceLabel(src Source) string {
	if src.Name != "" {
		return src.Name
	}
	return src.URL
}

// stripHTML drops markup and collapses whitespace.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
