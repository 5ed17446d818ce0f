package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit for unauthenticated requests.
	// With an API key, this can be increased.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum number of records per fetch.
	DefaultMaxResults = 200

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,externalIds,url,title,abstract,year,publicationDate,venue,authors,citationCount,isOpenAccess,fieldsOfStudy,s2FieldsOfStudy,publicationTypes"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// DefaultFieldsOfStudy restricts bulk search when nothing is configured.
var DefaultFieldsOfStudy = []string{"Computer Science"}

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL is the base URL for the API.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Keywords are OR-ed into the bulk search query. Empty means every paper
	// in the configured fields of study.
	Keywords []string

	// FieldsOfStudy filters bulk search results.
	FieldsOfStudy []string

	// Timeout is the HTTP request timeout.
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
	if len(c.FieldsOfStudy) == 0 {
		c.FieldsOfStudy = DefaultFieldsOfStudy
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

// Client implements papersources.Provider for Semantic Scholar. It also
// answers citation count lookups for enrichment.
type Client struct {
	httpClient *papersources.HTTPClient

	// lookupClient never retries, so a 429 reaches the enrichment limiter
	// immediately.
	lookupClient *papersources.HTTPClient

	config Config
}

var _ papersources.Provider = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	base := papersources.HTTPClientConfig{
		Source:       string(domain.SourceTypeSemanticScholar),
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	}
	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(base)
	}
	lookup := base
	lookup.DisableRetry = true

	return &Client{
		httpClient:   httpClient,
		lookupClient: papersources.NewHTTPClient(lookup),
		config:       cfg,
	}
}

// FetchSince returns papers published on or after the threshold's date.
func (c *Client) FetchSince(ctx context.Context, threshold time.Time, maxResults int) ([]domain.Record, error) {
	return c.FetchWindow(ctx, papersources.SinceWindow(threshold), maxResults)
}

// FetchWindow pages through bulk search with continuation tokens. Papers
// that only carry a publication year are dropped since they cannot be
// placed inside the window.
func (c *Client) FetchWindow(ctx context.Context, window papersources.Window, maxResults int) ([]domain.Record, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	now := time.Now()

	var records []domain.Record
	token := ""
	for len(records) < maxResults {
		var resp BulkSearchResponse
		if err := c.getJSON(ctx, c.httpClient, c.buildBulkSearchURL(window, now, token), &resp); err != nil {
			return nil, err
		}

		for _, result := range resp.Data {
			r, ok := convertToRecord(result)
			if !ok || r.PublishedAt.IsZero() {
				continue
			}
			records = append(records, r)
			if len(records) == maxResults {
				break
			}
		}

		if resp.Token == "" || len(resp.Data) == 0 {
			break
		}
		token = resp.Token
	}

	return records, nil
}

// GetByID retrieves a specific paper by its Semantic Scholar ID or any
// prefixed identifier the API accepts (DOI:..., ARXIV:...).
func (c *Client) GetByID(ctx context.Context, id string) (domain.Record, error) {
	var result PaperResult
	if err := c.getJSON(ctx, c.httpClient, c.paperURL(id, paperFields), &result); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Record{}, domain.NewNotFoundError("paper", id)
		}
		return domain.Record{}, err
	}

	r, ok := convertToRecord(result)
	if !ok {
		return domain.Record{}, domain.NewNotFoundError("paper", id)
	}
	return r, nil
}

// CitationCount looks up the current citation count for a record using the
// best identifier it carries. The request is attempted once; a 429 surfaces
// as a *domain.RateLimitError.
func (c *Client) CitationCount(ctx context.Context, record domain.Record) (int, error) {
	id, ok := lookupID(record)
	if !ok {
		return 0, domain.NewNotFoundError("paper", record.Title)
	}

	var result PaperResult
	if err := c.getJSON(ctx, c.lookupClient, c.paperURL(id, "citationCount"), &result); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return 0, domain.NewNotFoundError("paper", id)
		}
		return 0, err
	}
	if result.CitationCount == nil {
		return 0, domain.NewNotFoundError("citation count", id)
	}
	return *result.CitationCount, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// lookupID picks the identifier Semantic Scholar resolves most reliably.
func lookupID(record domain.Record) (string, bool) {
	if id := strings.TrimSpace(record.ProviderIDs[domain.SourceTypeSemanticScholar]); id != "" {
		return id, true
	}
	if id := strings.TrimSpace(record.ProviderIDs[domain.SourceTypeArXiv]); id != "" {
		return "ARXIV:" + id, true
	}
	if id := strings.TrimSpace(record.ProviderIDs[domain.SourceTypeHuggingFace]); id != "" {
		return "ARXIV:" + id, true
	}
	for _, tag := range record.Tags {
		if doi, ok := strings.CutPrefix(tag, "doi:"); ok && doi != "" {
			return "DOI:" + doi, true
		}
	}
	return "", false
}

func (c *Client) paperURL(id, fields string) string {
	q := url.Values{}
	q.Set("fields", fields)
	return fmt.Sprintf("%s/paper/%s?%s", strings.TrimRight(c.config.BaseURL, "/"), url.PathEscape(id), q.Encode())
}

// buildBulkSearchURL constructs the bulk search URL for one page.
func (c *Client) buildBulkSearchURL(window papersources.Window, now time.Time, token string) string {
	searchURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		searchURL = &url.URL{Scheme: "https", Host: "api.semanticscholar.org", Path: "/graph/v1"}
	}
	searchURL = searchURL.JoinPath("paper", "search", "bulk")

	q := url.Values{}
	if query := buildSearchQuery(c.config.Keywords); query != "" {
		q.Set("query", query)
	}
	q.Set("fields", paperFields)
	q.Set("fieldsOfStudy", strings.Join(c.config.FieldsOfStudy, ","))
	q.Set("publicationDateOrYear", buildDateRange(window.From, window.End(now)))
	q.Set("sort", "publicationDate:desc")
	if token != "" {
		q.Set("token", token)
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String()
}

// buildDateRange formats the publicationDateOrYear range. An open start is
// written as ":<to>".
func buildDateRange(from, to time.Time) string {
	start := ""
	if !from.IsZero() {
		start = papersources.DateString(from)
	}
	return start + ":" + papersources.DateString(to)
}

// buildSearchQuery ORs keywords using the bulk search syntax. Multi-word
// keywords are quoted as phrases.
func buildSearchQuery(keywords []string) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + strings.ReplaceAll(k, `"`, "") + `"`
		}
		terms = append(terms, k)
	}
	return strings.Join(terms, " | ")
}

func (c *Client) getJSON(ctx context.Context, client *papersources.HTTPClient, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	// Set per request so an injected HTTP client still authenticates.
	if c.config.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.config.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

func isStatus(err error, status int) bool {
	var apiErr *domain.ExternalAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// convertToRecord converts an API paper result to a domain record.
func convertToRecord(result PaperResult) (domain.Record, bool) {
	paperID := strings.TrimSpace(result.PaperID)
	if paperID == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(result.Authors))
	for _, a := range result.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(result.FieldsOfStudy)+len(result.S2FieldsOfStudy))
	seen := make(map[string]struct{})
	for _, f := range result.FieldsOfStudy {
		if _, dup := seen[f]; f != "" && !dup {
			seen[f] = struct{}{}
			categories = append(categories, f)
		}
	}
	for _, f := range result.S2FieldsOfStudy {
		if _, dup := seen[f.Category]; f.Category != "" && !dup {
			seen[f.Category] = struct{}{}
			categories = append(categories, f.Category)
		}
	}

	var tags []string
	for _, pt := range result.PublicationTypes {
		tags = append(tags, "type:"+strings.ToLower(pt))
	}
	if result.IsOpenAccess {
		tags = append(tags, "open_access")
	}
	if result.Venue != "" {
		tags = append(tags, "venue:"+result.Venue)
	}
	ids := map[domain.SourceType]string{domain.SourceTypeSemanticScholar: paperID}
	if ext := result.ExternalIDs; ext != nil {
		if ext.DOI != "" {
			tags = append(tags, "doi:"+papersources.NormalizeDOI(ext.DOI))
		}
		ids = papersources.SharedIDs(ids, ext.ArXiv, ext.DOI)
	}

	link := result.URL
	if link == "" {
		link = "https://www.semanticscholar.org/paper/" + paperID
	}

	r := domain.Record{
		Title:          strings.TrimSpace(result.Title),
		Summary:        strings.TrimSpace(result.Abstract),
		Authors:        authors,
		URL:            link,
		PublishedAt:    papersources.ParseTimestamp(result.PublicationDate),
		ProviderIDs:    ids,
		Tags:           tags,
		Categories:     categories,
		SourceProvider: domain.SourceTypeSemanticScholar,
	}
	if result.CitationCount != nil {
		n := *result.CitationCount
		r.CitationCount = &n
	}
	return r, true
}
