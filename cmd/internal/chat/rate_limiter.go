package chat

import (
	"sync"
	"time"
)

// RateLimiter bounds how many inbound chat events one connection may submit
// inside a sliding window. The gateway creates one limiter per connection;
// limiters are never shared across sockets.
type RateLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter falls back to the package defaults when given a
// non-positive limit or window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		stamps: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now and reports whether it fits the window.
// Stamps arrive in wall-clock order per connection, so expired entries
// always form a prefix.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	expired := 0
	for expired < len(r.stamps) && !r.stamps[expired].After(cut) {
		expired++
	}
	if expired > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[expired:]...)
	}

	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}
