package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// EvaluateFunc computes a decision on a full cache miss.
type EvaluateFunc func(ctx context.Context) (*models.Decision, error)

// DecisionCache layers L1 (local LRU) over L2 (shared Valkey). Concurrent
// misses for the same fingerprint collapse into one evaluation. L2 outages
// degrade to L1-plus-evaluate; they never fail a request.
type DecisionCache struct {
	l1        *L1Cache
	l2        valkey.ValkeyCluster
	l2TTL     time.Duration
	keyPrefix string
	group     singleflight.Group
	logger    logger.Logger
}

func NewDecisionCache(l1 *L1Cache, l2 valkey.ValkeyCluster, l2TTL time.Duration, keyPrefix string, log logger.Logger) *DecisionCache {
	return &DecisionCache{
		l1:        l1,
		l2:        l2,
		l2TTL:     l2TTL,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

// cachedResult distinguishes a served-from-cache decision for callers that
// want to report the layer.
type cachedResult struct {
	decision *models.Decision
	layer    string
}

// GetOrCompute serves the decision for fingerprint, consulting L1 then L2
// then evaluate. Layer is "l1", "l2", or "" when freshly evaluated.
func (c *DecisionCache) GetOrCompute(ctx context.Context, fingerprint string, evaluate EvaluateFunc) (*models.Decision, string, error) {
	if cached, ok := c.l1.Get(fingerprint); ok {
		return cached.ToDecision(), "l1", nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		// Re-check L1: another flight may have populated it while we queued.
		if cached, ok := c.l1.Get(fingerprint); ok {
			return cachedResult{decision: cached.ToDecision(), layer: "l1"}, nil
		}

		if cached := c.lookupL2(ctx, fingerprint); cached != nil {
			c.l1.Set(fingerprint, cached)
			return cachedResult{decision: cached.ToDecision(), layer: "l2"}, nil
		}

		decision, err := evaluate(ctx)
		if err != nil {
			return nil, err
		}
		// Degraded decisions ignored the policy engine; caching them would
		// outlive the outage.
		if decision.Cacheable() && !decision.Degraded {
			record := models.NewCachedDecision(decision, time.Now())
			c.l1.Set(fingerprint, record)
			c.storeL2(ctx, fingerprint, record)
		}
		return cachedResult{decision: decision}, nil
	})
	if err != nil {
		return nil, "", err
	}
	res := v.(cachedResult)
	return res.decision, res.layer, nil
}

func (c *DecisionCache) lookupL2(ctx context.Context, fingerprint string) *models.CachedDecision {
	b, err := c.l2.Get(ctx, c.keyPrefix+fingerprint)
	if err != nil {
		monitoring.RecordCacheMiss("l2")
		if !errors.Is(err, valkey.ErrCacheMiss) {
			c.logger.Warn("L2 cache read failed; continuing without it", "error", err)
		}
		return nil
	}
	var cached models.CachedDecision
	if err := json.Unmarshal(b, &cached); err != nil {
		monitoring.RecordCacheMiss("l2")
		c.logger.Warn("L2 cache entry unreadable; discarding", "fingerprint", fingerprint, "error", err)
		_ = c.l2.Delete(ctx, c.keyPrefix+fingerprint)
		return nil
	}
	monitoring.RecordCacheHit("l2")
	return &cached
}

func (c *DecisionCache) storeL2(ctx context.Context, fingerprint string, record *models.CachedDecision) {
	if err := c.l2.Set(ctx, c.keyPrefix+fingerprint, record, c.l2TTL); err != nil {
		c.logger.Warn("L2 cache write failed; decision served uncached downstream", "error", err)
	}
}

// InvalidatePrefix purges both tiers for a fingerprint prefix and returns
// the per-tier removal counts. An L2 scan failure falls back to clearing the
// tenant namespace so stale entries cannot outlive a mutation.
func (c *DecisionCache) InvalidatePrefix(ctx context.Context, prefix, tenantID string) (int, int64) {
	l1Removed := c.l1.DeleteByPrefix(prefix)
	l2Removed, err := c.l2.DeleteByPrefix(ctx, c.keyPrefix+prefix)
	if err != nil {
		c.logger.Warn("L2 prefix purge failed; clearing tenant namespace", "prefix", prefix, "error", err)
		if n, ferr := c.l2.DeleteByPrefix(ctx, c.keyPrefix+TenantPrefix(tenantID)); ferr == nil {
			l2Removed = n
		}
	}
	return l1Removed, l2Removed
}

// Stats exposes counters for the admin surface.
func (c *DecisionCache) Stats(ctx context.Context) CacheStats {
	stats := CacheStats{L1: c.l1.Stats()}
	stats.L2Healthy = c.l2.HealthCheck(ctx) == nil
	return stats
}

type CacheStats struct {
	L1        L1Stats `json:"l1"`
	L2Healthy bool    `json:"l2Healthy"`
}
