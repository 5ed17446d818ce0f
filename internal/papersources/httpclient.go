package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// DefaultUserAgent is sent when a provider does not configure its own.
const DefaultUserAgent = "Helixir-PaperIngest/1.0"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source names the provider in errors returned by the client.
	Source string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int

	// DisableRetry sends each request exactly once. A 429 then surfaces as a
	// *domain.RateLimitError without waiting.
	DisableRetry bool

	// RetryDelay is the initial backoff interval.
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff interval, including Retry-After hints.
	MaxRetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string
}

// HTTPClient wraps http.Client with rate limiting and bounded exponential
// backoff. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client waits on the rate limiter before every attempt and retries
// network errors, 429 (Too Many Requests) and 5xx responses.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Source == "" {
		cfg.Source = "http"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries.
//
// Non-retryable responses (2xx, 3xx, 4xx other than 429) are returned to the
// caller unchanged. When retries are exhausted on 429 the error wraps a
// *domain.RateLimitError; on 5xx it is a *domain.ExternalAPIError.
//
// The request body is replayed with GetBody on retries; requests whose body
// cannot be replayed are attempted once.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	ctx := req.Context()
	hinted := &hintedBackOff{BackOff: c.newBackOff(), max: c.config.MaxRetryDelay}

	var resp *http.Response
	attempt := 0
	operation := func() error {
		if attempt > 0 {
			if err := resetRequestBody(req); err != nil {
				return backoff.Permanent(fmt.Errorf("cannot retry request: %w", err))
			}
		}
		attempt++

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait: %w", err))
		}

		r, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if !shouldRetry(r.StatusCode) {
			resp = r
			return nil
		}

		delay := c.getRetryDelay(r)
		drainAndClose(r)

		var statusErr error
		if r.StatusCode == http.StatusTooManyRequests {
			statusErr = domain.NewRateLimitError(c.config.Source, delay)
		} else {
			statusErr = domain.NewExternalAPIError(c.config.Source, r.StatusCode, http.StatusText(r.StatusCode), nil)
		}
		if c.config.DisableRetry {
			return backoff.Permanent(statusErr)
		}
		hinted.hint = delay
		return statusErr
	}

	err := backoff.Retry(operation, backoff.WithContext(hinted, ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		if attempt > 1 {
			return nil, fmt.Errorf("max retries exhausted after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) newBackOff() backoff.BackOff {
	if c.config.DisableRetry {
		return &backoff.StopBackOff{}
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.RetryDelay
	exp.MaxInterval = c.config.MaxRetryDelay
	exp.MaxElapsedTime = 0
	return backoff.WithMaxRetries(exp, uint64(c.config.MaxRetries))
}

// hintedBackOff raises the next interval to a server-provided Retry-After
// hint, capped at max.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.hint > next {
		next = b.hint
	}
	if b.max > 0 && next > b.max {
		next = b.max
	}
	b.hint = 0
	return next
}

// shouldRetry returns true if the status code indicates we should retry.
func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay reads the Retry-After header as seconds or an HTTP date.
// It returns zero when the header is absent or unusable.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}

// resetRequestBody resets the request body for retry if possible.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errors.New("request body cannot be replayed")
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func drainAndClose(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}
