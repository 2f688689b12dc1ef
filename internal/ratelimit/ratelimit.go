// Package ratelimit enforces the decision-path budget per credential. The
// local limiter is a token bucket per key; the distributed limiter shares a
// fixed window across replicas through the Valkey tier.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Limiter answers whether a credential may spend one token right now.
type Limiter interface {
	// Allow spends one token for the key (an API key id or bearer subject).
	// A RateLimited AppError means the budget is exhausted and carries
	// "limit" and "reset" details; any other error means the limiter itself
	// failed and the caller should fail open.
	Allow(ctx context.Context, key string) error
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter is the in-process limiter: capacity tokens per key,
// refilled at refillTokens per refillPeriod.
type TokenBucketLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	capacity     float64
	refillTokens float64
	refillPeriod time.Duration
	now          func() time.Time
}

func NewTokenBucketLimiter(capacity, refillTokens int, refillPeriod time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		buckets:      make(map[string]*bucket),
		capacity:     float64(capacity),
		refillTokens: float64(refillTokens),
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

func (l *TokenBucketLimiter) Allow(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	} else if l.refillPeriod > 0 && l.refillTokens > 0 {
		elapsed := now.Sub(b.lastRefill)
		if elapsed > 0 {
			refill := l.refillTokens * (float64(elapsed) / float64(l.refillPeriod))
			b.tokens += refill
			if b.tokens > l.capacity {
				b.tokens = l.capacity
			}
			b.lastRefill = now
		}
	}

	if b.tokens < 1 {
		monitoring.RecordRateLimited()
		return models.E(models.ErrRateLimited, "request budget exhausted").
			WithDetail("key", key).
			WithDetail("limit", int(l.capacity)).
			WithDetail("reset", l.resetAt(b, now).Unix())
	}
	b.tokens--
	return nil
}

// resetAt estimates when the bucket next holds a whole token.
func (l *TokenBucketLimiter) resetAt(b *bucket, now time.Time) time.Time {
	if l.refillPeriod <= 0 || l.refillTokens <= 0 {
		return now.Add(time.Second)
	}
	missing := 1 - b.tokens
	if missing < 0 {
		missing = 0
	}
	wait := time.Duration(missing / l.refillTokens * float64(l.refillPeriod))
	if wait < time.Second {
		wait = time.Second
	}
	return now.Add(wait)
}

// DistributedLimiter shares a fixed counting window per key through Valkey
// so the budget holds across replicas. Counter failures fail open: a broken
// cache must not take the decision path down.
type DistributedLimiter struct {
	cache    valkey.ValkeyCluster
	capacity int64
	window   time.Duration
	prefix   string
	logger   logger.Logger
	now      func() time.Time
}

func NewDistributedLimiter(c valkey.ValkeyCluster, capacity int, window time.Duration, keyPrefix string, log logger.Logger) *DistributedLimiter {
	return &DistributedLimiter{
		cache:    c,
		capacity: int64(capacity),
		window:   window,
		prefix:   keyPrefix + "ratelimit:",
		logger:   log,
		now:      time.Now,
	}
}

func (l *DistributedLimiter) Allow(ctx context.Context, key string) error {
	n, err := l.cache.Incr(ctx, l.prefix+key, l.window)
	if err != nil {
		l.logger.Warn("Distributed rate limit counter unavailable; failing open", "error", err)
		return nil
	}
	if n > l.capacity {
		monitoring.RecordRateLimited()
		// The counter key expires at the end of the window; without its
		// exact TTL the window length from now is the upper bound.
		return models.E(models.ErrRateLimited, "request budget exhausted").
			WithDetail("key", key).
			WithDetail("limit", int(l.capacity)).
			WithDetail("reset", l.now().Add(l.window).Unix())
	}
	return nil
}
