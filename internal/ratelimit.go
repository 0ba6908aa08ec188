package internal

import (
	"sync"
	"time"
)

// RateLimiter does sliding-window admission control per bucket. Buckets are
// independent, so callers pick distinct names per logical operation and one
// busy operation cannot starve another. State is in-memory only.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether one more request fits in the bucket's window.
// A denied call records nothing, so it does not extend the window.
func (rl *RateLimiter) Allow(bucket string, maxRequests int, window time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)

	stamps := rl.buckets[bucket]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= maxRequests {
		rl.buckets[bucket] = kept
		return false
	}

	rl.buckets[bucket] = append(kept, now)
	return true
}
