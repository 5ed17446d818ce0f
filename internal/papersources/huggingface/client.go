package huggingface

import (
	"context"
	"encoding/json"
	"errors"
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
	// DefaultBaseURL is the Hugging Face Hub API base URL.
	DefaultBaseURL = "https://huggingface.co/api"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxResults is the default maximum records per fetch.
	DefaultMaxResults = 200

	// DefaultLookbackDays bounds an open-ended window.
	DefaultLookbackDays = 7

	// artifactSearchLimit is the page size of the related artifact searches.
	artifactSearchLimit = 50

	sourceName = "Hugging Face"
)

// Config holds configuration for the Hugging Face client.
type Config struct {
	// BaseURL is the Hub API base URL.
	BaseURL string

	// Token is an optional Hub access token sent as a bearer token.
	Token string

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

// Client implements papersources.Provider for Hugging Face daily papers.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a new Hugging Face client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	hc := papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeHuggingFace),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}
	if cfg.Token != "" {
		hc.APIKey = "Bearer " + cfg.Token
		hc.APIKeyHeader = "Authorization"
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(hc),
	}
}

// NewWithHTTPClient creates a new client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// FetchSince returns daily papers from the threshold's day up to today.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow requests the daily papers list once per calendar day in the
// window, newest day first. An open window start is limited to
// DefaultLookbackDays.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	end := dayStart(window.End(time.Now()))
	start := end.AddDate(0, 0, -DefaultLookbackDays)
	if !window.From.IsZero() {
		start = dayStart(window.From)
	}

	var records []domain.Record
	seen := make(map[string]struct{})
	for day := end; !day.Before(start) && len(records) < maxResults; day = day.AddDate(0, 0, -1) {
		papers, err := c.dailyPapers(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("daily papers for %s: %w", papersources.DateString(day), err)
		}

		for i := range papers {
			r, ok := dailyPaperToRecord(&papers[i])
			if !ok {
				continue
			}
			id := r.ProviderIDs[domain.SourceTypeHuggingFace]
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			records = append(records, r)
			if len(records) == maxResults {
				break
			}
		}
	}

	return records, nil
}

// LookupPaper fetches Hub metadata for an arXiv paper. The Hub answers under
// several spellings of the ID, so each is tried in turn; a 404 moves on to
// the next one.
func (c *Client) LookupPaper(ctx context.Context, arxivID string) (domain.Record, error) {
	id := cleanArXivID(arxivID)
	if id == "" {
		return domain.Record{}, domain.NewValidationError("arxiv_id", "must not be empty")
	}

	var lastErr error
	for _, candidate := range []string{id, "arxiv:" + id, "arXiv:" + id} {
		var paper Paper
		err := c.getJSON(ctx, c.endpoint("papers", candidate), nil, &paper)
		if err == nil {
			if r, ok := paperToRecord(&paper, time.Time{}); ok {
				return r, nil
			}
			continue
		}
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if ctx.Err() != nil {
			return domain.Record{}, err
		}
		lastErr = err
	}

	if lastErr != nil {
		return domain.Record{}, lastErr
	}
	return domain.Record{}, domain.NewNotFoundError("paper", id)
}

// RelatedArtifacts searches the Hub for models, datasets and Spaces that
// reference an arXiv paper.
func (c *Client) RelatedArtifacts(ctx context.Context, arxivID string) (Artifacts, error) {
	id := cleanArXivID(arxivID)
	if id == "" {
		return Artifacts{}, domain.NewValidationError("arxiv_id", "must not be empty")
	}

	var out Artifacts
	kinds := []struct {
		path string
		kind ArtifactKind
		dst  *[]Artifact
	}{
		{"models", ArtifactModel, &out.Models},
		{"datasets", ArtifactDataset, &out.Datasets},
		{"spaces", ArtifactSpace, &out.Spaces},
	}
	for _, k := range kinds {
		q := url.Values{}
		q.Set("search", "arxiv:"+id)
		q.Set("limit", strconv.Itoa(artifactSearchLimit))

		var repos []hubRepo
		if err := c.getJSON(ctx, c.endpoint(k.path), q, &repos); err != nil {
			return Artifacts{}, fmt.Errorf("searching %s: %w", k.path, err)
		}
		*k.dst = make([]Artifact, 0, len(repos))
		for _, repo := range repos {
			repoID := repo.ID
			if repoID == "" {
				repoID = repo.ModelID
			}
			*k.dst = append(*k.dst, Artifact{
				ID:          repoID,
				Kind:        k.kind,
				Downloads:   repo.Downloads,
				Likes:       repo.Likes,
				PipelineTag: repo.PipelineTag,
				SDK:         repo.SDK,
			})
		}
	}
	return out, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeHuggingFace
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) dailyPapers(ctx context.Context, day time.Time) ([]DailyPaper, error) {
	q := url.Values{}
	q.Set("date", papersources.DateString(day))

	var papers []DailyPaper
	if err := c.getJSON(ctx, c.endpoint("daily_papers"), q, &papers); err != nil {
		// Days the Hub has no list for come back as 404.
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return papers, nil
}

func (c *Client) endpoint(segments ...string) string {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		base = &url.URL{Scheme: "https", Host: "huggingface.co", Path: "/api"}
	}
	return base.JoinPath(segments...).String()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFoundError("resource", req.URL.Path)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func dailyPaperToRecord(dp *DailyPaper) (domain.Record, bool) {
	listed := papersources.ParseTimestamp(dp.PublishedAt)
	r, ok := paperToRecord(&dp.Paper, listed)
	if !ok {
		return domain.Record{}, false
	}
	if r.Title == "" {
		r.Title = strings.TrimSpace(dp.Title)
	}
	r.Tags = append(r.Tags, "daily_papers")
	return r, true
}

// paperToRecord converts Hub paper metadata. listed is the time the paper
// appeared on the daily list and is used when the paper has no publication
// time of its own.
func paperToRecord(p *Paper, listed time.Time) (domain.Record, bool) {
	id := cleanArXivID(p.ID)
	if id == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	published := papersources.ParseTimestamp(p.PublishedAt)
	if published.IsZero() {
		published = listed
	}

	var tags []string
	if p.Upvotes > 0 {
		tags = append(tags, "upvotes:"+strconv.Itoa(p.Upvotes))
	}

	var categories []string
	for _, k := range p.AIKeywords {
		if k = strings.TrimSpace(k); k != "" {
			categories = append(categories, k)
		}
	}

	return domain.Record{
		Title:          strings.Join(strings.Fields(p.Title), " "),
		Summary:        strings.TrimSpace(p.Summary),
		Authors:        authors,
		URL:            "https://huggingface.co/papers/" + id,
		PublishedAt:    published,
		UpdatedAt:      listed,
		ProviderIDs:    papersources.SharedIDs(map[domain.SourceType]string{domain.SourceTypeHuggingFace: id}, id, ""),
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeHuggingFace,
	}, true
}

// cleanArXivID strips "arxiv:" prefixes in any case.
func cleanArXivID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) >= 6 && strings.EqualFold(id[:6], "arxiv:") {
		id = id[6:]
	}
	return strings.TrimSpace(id)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
