package papersources

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token bucket limiter that paces calls to an upstream
// API. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst requests.
//
// Example configurations:
//   - arXiv: NewRateLimiter(0.33, 1), one request every three seconds
//   - OpenAlex polite pool: NewRateLimiter(10, 10)
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// NewIntervalLimiter creates a limiter that admits one call per interval with
// no burst. The first call is admitted immediately. A non-positive interval
// admits every call.
func NewIntervalLimiter(interval time.Duration) *RateLimiter {
	if interval <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until a request is allowed or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may happen now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// SetRate changes the sustained rate, keeping the burst size.
func (r *RateLimiter) SetRate(ratePerSecond float64) {
	r.limiter.SetLimit(rate.Limit(ratePerSecond))
}

// Tokens returns the number of tokens currently available.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
