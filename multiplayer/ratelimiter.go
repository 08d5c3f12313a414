package multiplayer

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between sends for a given key
// (typically an entity id), so a component edited every frame does not
// flood the transport with a patch per frame. Grounded on the teacher's
// rate-limiting-by-key pattern in engine/metrics.go (a per-label map
// guarded by a single mutex); the default interval (spec.md §6, "the
// engine MUST NOT transmit patches for the same entity more often than
// every 90ms by default") is supplied by the caller rather than hardcoded,
// so tests can shrink it.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[uint64]time.Time
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval, last: make(map[uint64]time.Time)}
}

// Allow reports whether a send for key is permitted right now, and if so,
// records the time so the next call is rate-limited from here.
func (r *RateLimiter) Allow(key uint64) bool {
	return r.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock reading, used by tests that need
// deterministic timing.
func (r *RateLimiter) AllowAt(key uint64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, ok := r.last[key]
	if ok && now.Sub(last) < r.interval {
		return false
	}
	r.last[key] = now
	return true
}

// Forget drops the recorded last-send time for key, e.g. once an entity is
// destroyed and its id can never recur.
func (r *RateLimiter) Forget(key uint64) {
	r.mu.Lock()
	delete(r.last, key)
	r.mu.Unlock()
}
