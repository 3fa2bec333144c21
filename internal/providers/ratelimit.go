package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests from one backend instance.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requestsPerMinute calls per minute with no burst
// beyond one. A non-positive value disables limiting.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(every), 1)}
}

// WaitTurn blocks until the caller may send, or ctx ends.
func (r *RateLimiter) WaitTurn(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
