package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default throttling for the search endpoint.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultBurst             = 5
	DefaultRateLimitBackoff  = 60 * time.Second
)

// rateLimiter is a token bucket with an extra backoff window set after the
// API reports throttling.
type rateLimiter struct {
	retryAt time.Time
	limiter *rate.Limiter
	mu      sync.Mutex
}

func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// wait blocks until a request may be sent or ctx is done.
func (rl *rateLimiter) wait(ctx context.Context) error {
	rl.mu.Lock()
	retryAt := rl.retryAt
	rl.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return rl.limiter.Wait(ctx)
}

// backoff pushes every subsequent request at least d into the future.
func (rl *rateLimiter) backoff(d time.Duration) {
	if d <= 0 {
		d = DefaultRateLimitBackoff
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if until := time.Now().Add(d); until.After(rl.retryAt) {
		rl.retryAt = until
	}
}

// blockedUntil reports the end of the current backoff window.
func (rl *rateLimiter) blockedUntil() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.retryAt
}
