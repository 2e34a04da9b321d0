package weather

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimitWindow is the minimum spacing between accepted refresh
	// attempts for the same plan.
	DefaultRateLimitWindow = 15 * time.Minute

	// DefaultPurgeInterval controls how often stale entries are dropped.
	DefaultPurgeInterval = time.Hour
)

// RateLimiter is a process-local key -> last-attempt table. It throttles
// abuse rather than guaranteeing correctness: under concurrent requests for
// the same key two near-simultaneous calls may both be allowed, which is
// acceptable because the downstream persist is an idempotent full replace.
type RateLimiter struct {
	window      time.Duration
	purgeEvery  time.Duration
	now         func() time.Time
	mu          sync.Mutex
	lastAttempt map[string]time.Time
	lastPurge   time.Time
}

// NewRateLimiter creates a limiter with explicit window and purge interval.
// A nil clock falls back to time.Now.
func NewRateLimiter(window, purgeEvery time.Duration, clock func() time.Time) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{
		window:      window,
		purgeEvery:  purgeEvery,
		now:         clock,
		lastAttempt: make(map[string]time.Time),
		lastPurge:   clock(),
	}
}

// Allow records an attempt for key if none was accepted within the window.
// When denied it returns the remaining wait. Entries older than the window
// are purged lazily.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPurge) >= rl.purgeEvery {
		rl.purgeLocked(now)
	}

	if last, ok := rl.lastAttempt[key]; ok {
		if wait := rl.window - now.Sub(last); wait > 0 {
			return false, wait
		}
	}
	rl.lastAttempt[key] = now
	return true, 0
}

// Reset releases the key's slot so the next Allow succeeds regardless of
// timing. The refresher uses it to hand back slots consumed by calls that
// never reached the provider.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.lastAttempt, key)
}

// PurgeOlderThan drops entries whose window elapsed before now. Exposed for
// the background sweep in main; Allow also purges lazily.
func (rl *RateLimiter) PurgeOlderThan(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.purgeLocked(now)
}

func (rl *RateLimiter) purgeLocked(now time.Time) {
	for key, last := range rl.lastAttempt {
		if now.Sub(last) >= rl.window {
			delete(rl.lastAttempt, key)
		}
	}
	rl.lastPurge = now
}

// Len reports the number of live entries, for tests and diagnostics.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.lastAttempt)
}
