package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiters is the per-client token-bucket table backing
// /api/health's rate limit, keyed by host:port. Each bucket holds `limit`
// tokens and refills at limit/window per second, so a burst of `limit`
// requests passes and then one more every window/limit; it does not cap
// the count inside a sliding `window` at `limit`.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientEntry
	limit    int
	window   time.Duration
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(limit int, window time.Duration) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*clientEntry),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether client may make a request now, and if not, how
// long until it should retry.
func (c *clientLimiters) Allow(client string) (ok bool, retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictIdleLocked()

	entry, exists := c.limiters[client]
	if !exists {
		perSecond := float64(c.limit) / c.window.Seconds()
		entry = &clientEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), c.limit)}
		c.limiters[client] = entry
	}
	entry.lastSeen = time.Now()

	reservation := entry.limiter.Reserve()
	if !reservation.OK() {
		return false, c.window
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

// evictIdleLocked drops entries idle for more than window*2, bounding
// table growth across many distinct clients. Caller holds c.mu.
func (c *clientLimiters) evictIdleLocked() {
	cutoff := time.Now().Add(-2 * c.window)
	for client, entry := range c.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(c.limiters, client)
		}
	}
}
