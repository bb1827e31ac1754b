// Package papersources provides clients for academic metadata and full-text
// services, plus the shared HTTP plumbing they use.
package papersources

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-source token bucket that can also be paused. A 429
// from a source pauses every caller sharing the limiter, not only the request
// that received it. It is safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing ratePerSecond sustained requests
// with bursts of up to burst.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		now:     time.Now,
	}
}

// Wait blocks until any pause has elapsed and a token is available, or ctx
// is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if d := r.pauseRemaining(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r.pauseRemaining() > 0 {
		return false
	}
	return r.limiter.Allow()
}

// PauseFor holds back all callers for d. Overlapping pauses keep the later
// deadline.
func (r *RateLimiter) PauseFor(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := r.now().Add(d); until.After(r.pausedUntil) {
		r.pausedUntil = until
	}
}

func (r *RateLimiter) pauseRemaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pausedUntil.IsZero() {
		return 0
	}
	return r.pausedUntil.Sub(r.now())
}
