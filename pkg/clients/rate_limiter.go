// Package clients provides the HTTP plumbing used by API sources: a
// throttled, retrying client with optional OAuth2 client-credentials auth.
package clients

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests.
type RateLimiter interface {
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error

	// SetRate updates the requests-per-second ceiling
	SetRate(rps float64)

	// GetStats returns rate limiter statistics
	GetStats() RateLimiterStats
}

// RateLimiterStats reports how often callers were held back.
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	AllowedRequests int64         `json:"allowed_requests"`
	WaitedRequests  int64         `json:"waited_requests"`
	TotalWaitTime   time.Duration `json:"total_wait_time"`
	AverageWaitTime time.Duration `json:"average_wait_time"`
}

// IntervalRateLimiter spaces requests at least 1/rps apart. The bucket holds a
// single token so there is never a burst: the first request goes immediately
// and every later one waits out the interval since the previous one.
type IntervalRateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	rps     float64

	allowed   int64
	waited    int64
	waitNanos int64
}

// NewRateLimiter returns a limiter admitting rps requests per second. rps <= 0
// disables throttling.
func NewRateLimiter(rps float64) *IntervalRateLimiter {
	rl := &IntervalRateLimiter{}
	rl.SetRate(rps)
	return rl
}

// Wait implements RateLimiter.
func (rl *IntervalRateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	limiter := rl.limiter
	rl.mu.RUnlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	atomic.AddInt64(&rl.allowed, 1)
	if d := time.Since(start); d > time.Millisecond {
		atomic.AddInt64(&rl.waited, 1)
		atomic.AddInt64(&rl.waitNanos, int64(d))
	}
	return nil
}

// SetRate implements RateLimiter.
func (rl *IntervalRateLimiter) SetRate(rps float64) {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rps = rps
	if rl.limiter == nil {
		rl.limiter = rate.NewLimiter(limit, 1)
		return
	}
	rl.limiter.SetLimit(limit)
}

// Interval returns the minimum spacing between requests, or zero when
// throttling is off.
func (rl *IntervalRateLimiter) Interval() time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if rl.rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rl.rps)
}

// GetStats implements RateLimiter.
func (rl *IntervalRateLimiter) GetStats() RateLimiterStats {
	rl.mu.RLock()
	rps := rl.rps
	rl.mu.RUnlock()

	stats := RateLimiterStats{
		Rate:            rps,
		AllowedRequests: atomic.LoadInt64(&rl.allowed),
		WaitedRequests:  atomic.LoadInt64(&rl.waited),
		TotalWaitTime:   time.Duration(atomic.LoadInt64(&rl.waitNanos)),
	}
	if stats.WaitedRequests > 0 {
		stats.AverageWaitTime = stats.TotalWaitTime / time.Duration(stats.WaitedRequests)
	}
	return stats
}
