// Package ratelimiter throttles engine calls admitted by a Host.
package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimiter admits calls using the token bucket algorithm.
//
// Tokens are added at callsPerSecond and each admitted call consumes one;
// burst is the bucket capacity. A zero rate disables limiting entirely.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - callsPerSecond: Sustained admission rate. 0 means unlimited.
//   - burst: Bucket capacity. Values below 1 are raised to 1 so that a
//     limited host can still admit calls.
func New(callsPerSecond float64, burst int) *RateLimiter {
	if callsPerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst)}
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow admits one call without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a call can be admitted or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("call admission: %w", err)
	}
	return nil
}

// SetLimit changes the sustained rate. 0 means unlimited.
func (r *RateLimiter) SetLimit(callsPerSecond float64) {
	if callsPerSecond <= 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(callsPerSecond))
	if r.limiter.Burst() < 1 {
		r.limiter.SetBurst(1)
	}
}
