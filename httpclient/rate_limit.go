package httpclient

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-level rate limiting. The limiter runs
// before the circuit breaker, so throttled calls are never recorded by it.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	Burst int

	// WaitOnLimit determines behavior when the limit is hit.
	// If true, calls wait for a token, bounded by the request timeout.
	// If false, calls fail immediately with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of 10,
// waiting for tokens.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is wrapped in a *TransportError when a call is rejected by
// the client-side rate limiter.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimiter throttles calls before they reach the gate.
type rateLimiter struct {
	limiter *rate.Limiter
	wait    bool
}

// newRateLimiter returns nil when cfg does not limit anything.
func newRateLimiter(cfg *RateLimitConfig) *rateLimiter {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

// acquire takes one token. Failures are *TransportError: either the context
// ended while waiting, or no token was available in fail-fast mode.
func (r *rateLimiter) acquire(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if !r.wait {
		if !r.limiter.Allow() {
			return &TransportError{Err: ErrRateLimited}
		}
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return &TransportError{Err: ctx.Err()}
		}
		// Wait fails early when the deadline cannot be met.
		return &TransportError{Err: errors.Join(ErrRateLimited, context.DeadlineExceeded)}
	}
	return nil
}

// RateLimiterStats provides visibility into rate limiter state.
type RateLimiterStats struct {
	// Limit is the maximum rate per second.
	Limit float64
	// Burst is the maximum burst size.
	Burst int
	// TokensAvailable is the current number of tokens.
	TokensAvailable float64
}

func (r *rateLimiter) stats() RateLimiterStats {
	return RateLimiterStats{
		Limit:           float64(r.limiter.Limit()),
		Burst:           r.limiter.Burst(),
		TokensAvailable: r.limiter.Tokens(),
	}
}
