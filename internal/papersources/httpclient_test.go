package papersources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

func fastClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 100
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 20 * time.Millisecond
	}
	return NewHTTPClient(cfg)
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{})

		require.NotNil(t, client.rateLimiter)
		assert.Equal(t, 30*time.Second, client.client.Timeout)
		assert.Equal(t, DefaultUserAgent, client.config.UserAgent)
		assert.Equal(t, 3, client.config.MaxRetries)
		assert.Equal(t, time.Second, client.config.RetryDelay)
		assert.Equal(t, 30*time.Second, client.config.MaxRetryDelay)
		assert.Equal(t, float64(10), client.config.RateLimit)
		assert.Equal(t, 10, client.config.BurstSize)
	})

	t.Run("keeps custom config", func(t *testing.T) {
		client := NewHTTPClient(HTTPClientConfig{
			Source:       "arxiv",
			Timeout:      15 * time.Second,
			MaxRetries:   2,
			UserAgent:    "TestAgent/1.0",
			APIKey:       "k",
			APIKeyHeader: "x-api-key",
		})

		assert.Equal(t, 15*time.Second, client.client.Timeout)
		assert.Equal(t, "arxiv", client.config.Source)
		assert.Equal(t, 2, client.config.MaxRetries)
		assert.Equal(t, "TestAgent/1.0", client.config.UserAgent)
	})
}

func TestHTTPClient_DoHeaders(t *testing.T) {
	var gotUA, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotKey = r.Header.Get("x-api-key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(HTTPClientConfig{UserAgent: "UA/2", APIKey: "secret", APIKeyHeader: "x-api-key"})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "UA/2", gotUA)
	assert.Equal(t, "secret", gotKey)
}

func TestHTTPClient_DoNonRetryableStatus(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := fastClient(HTTPClientConfig{})
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), count.Load())
}

func TestHTTPClient_DoRetryOn429(t *testing.T) {
	t.Run("retries and succeeds", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if count.Add(1) < 3 {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte("success"))
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetries: 3})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "success", string(body))
		assert.Equal(t, int32(3), count.Load())
	})

	t.Run("exhausted retries return rate limit error", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{Source: "openalex", MaxRetries: 2})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

		_, err := client.Do(req)
		require.Error(t, err)

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		var rle *domain.RateLimitError
		require.True(t, errors.As(err, &rle))
		assert.Equal(t, "openalex", rle.Source)
		assert.Equal(t, int32(3), count.Load())
	})

	t.Run("retry-after hint is capped", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if count.Add(1) == 1 {
				w.Header().Set("Retry-After", "120")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{MaxRetryDelay: 50 * time.Millisecond})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

		start := time.Now()
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
		assert.Less(t, elapsed, 2*time.Second)
	})
}

func TestHTTPClient_DoDisableRetry(t *testing.T) {
	var count atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := fastClient(HTTPClientConfig{Source: "semanticscholar", DisableRetry: true})
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := client.Do(req)

	require.Error(t, err)
	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 30*time.Second, rle.RetryAfter)
	assert.Equal(t, int32(1), count.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPClient_DoRetryOn5xx(t *testing.T) {
	t.Run("retries then succeeds", func(t *testing.T) {
		var count atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if count.Add(1) < 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, int32(2), count.Load())
	})

	t.Run("exhausted retries return external API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := fastClient(HTTPClientConfig{Source: "arxiv", MaxRetries: 1})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)

		_, err := client.Do(req)
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})
}

func TestHTTPClient_DoContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := fastClient(HTTPClientConfig{
		MaxRetries:    10,
		RetryDelay:    200 * time.Millisecond,
		MaxRetryDelay: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := client.Do(req)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPClient_DoWithRequestBody(t *testing.T) {
	var count atomic.Int32
	var lastBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if count.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := fastClient(HTTPClientConfig{})
	bodyContent := `{"ids":["a"]}`
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(bodyContent))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, bodyContent, lastBody.Load())
	assert.Equal(t, int32(2), count.Load())
}

func TestHTTPClient_getRetryDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{})

	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, d time.Duration)
	}{
		{name: "absent", header: "", check: func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{name: "seconds", header: "5", check: func(t *testing.T, d time.Duration) { assert.Equal(t, 5*time.Second, d) }},
		{name: "zero seconds", header: "0", check: func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{name: "garbage", header: "soon", check: func(t *testing.T, d time.Duration) { assert.Zero(t, d) }},
		{
			name:   "http date",
			header: time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat),
			check: func(t *testing.T, d time.Duration) {
				assert.Greater(t, d, 5*time.Second)
				assert.LessOrEqual(t, d, 10*time.Second)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}
			tt.check(t, client.getRetryDelay(resp))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusOK:                  false,
		http.StatusNotFound:            false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusGatewayTimeout:      true,
	} {
		assert.Equal(t, want, shouldRetry(code), "status %d", code)
	}
}
