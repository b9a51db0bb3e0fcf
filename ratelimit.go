package auth

import (
	"golang.org/x/time/rate"
)

// BucketConfig describes one action bucket: it starts full at Capacity and
// refills at Refill tokens per second. A zero Refill never refills, which is
// the configuration the tests rely on for deterministic exhaustion.
type BucketConfig struct {
	Capacity int
	Refill   rate.Limit
}

// BucketLimiter is a token-bucket RateLimiter with one bucket per action.
// Buckets are shared across all callers of an action; there is no per-caller
// partitioning. The limiter is constructed once at process start and injected
// into the session manager, never held as package state.
type BucketLimiter struct {
	buckets map[string]*rate.Limiter
}

// NewBucketLimiter builds a limiter from per-action configs.
func NewBucketLimiter(configs map[string]BucketConfig) *BucketLimiter {
	buckets := make(map[string]*rate.Limiter, len(configs))
	for action, cfg := range configs {
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = 1
		}
		buckets[action] = rate.NewLimiter(cfg.Refill, capacity)
	}
	return &BucketLimiter{buckets: buckets}
}

// NewDefaultBucketLimiter covers the two gated actions with conservative
// burst sizes: login refills one permit per second, register one per ten
// seconds.
func NewDefaultBucketLimiter() *BucketLimiter {
	return NewBucketLimiter(map[string]BucketConfig{
		ActionLogin:    {Capacity: 30, Refill: 1},
		ActionRegister: {Capacity: 10, Refill: 0.1},
	})
}

var _ RateLimiter = (*BucketLimiter)(nil)

// TryConsume takes one permit from the action's bucket without waiting.
// Actions without a configured bucket are not gated.
func (l *BucketLimiter) TryConsume(action string) bool {
	bucket, ok := l.buckets[action]
	if !ok {
		return true
	}
	return bucket.Allow()
}
