package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

// autoSwapCache wraps a ValkeyCluster implementation and swaps from a
// fallback (the in-memory noop) to a real Valkey client once it becomes
// reachable. All calls delegate to the currently active implementation.
type autoSwapCache struct {
	mu      sync.RWMutex
	current ValkeyCluster
	logger  logger.Logger

	// redial rebuilds the real client against a new node list; nil for
	// single-node setups where discovery does not apply.
	redial func(nodes []string) (ValkeyCluster, error)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// newAutoSwapCache starts with `fallback` and keeps trying `dialReal` until
// it succeeds, then atomically swaps.
func newAutoSwapCache(fallback ValkeyCluster, log logger.Logger, dialReal func() (ValkeyCluster, error)) *autoSwapCache {
	a := &autoSwapCache{
		current: fallback,
		logger:  log,
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				real, err := dialReal()
				if err != nil {
					a.logger.Warn("Valkey connection attempt failed; will retry", "error", err)
					continue
				}
				a.mu.Lock()
				a.current = real
				a.mu.Unlock()
				a.logger.Info("Valkey connection established; switched from in-memory to real cache")
				return // stop after first successful swap
			}
		}
	}()

	return a
}

func (a *autoSwapCache) active() ValkeyCluster {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *autoSwapCache) Get(ctx context.Context, key string) ([]byte, error) {
	return a.active().Get(ctx, key)
}

func (a *autoSwapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return a.active().Set(ctx, key, value, ttl)
}

func (a *autoSwapCache) Delete(ctx context.Context, key string) error {
	return a.active().Delete(ctx, key)
}

func (a *autoSwapCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	return a.active().DeleteByPrefix(ctx, prefix)
}

func (a *autoSwapCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return a.active().Incr(ctx, key, ttl)
}

func (a *autoSwapCache) HealthCheck(ctx context.Context) error {
	return a.active().HealthCheck(ctx)
}

func (a *autoSwapCache) Close() error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	return a.active().Close()
}

// ReplaceEndpoints rebuilds the real client against a fresh node list. DNS
// discovery calls this when the cache's pod IPs change; the old client keeps
// serving until the new one dials successfully.
func (a *autoSwapCache) ReplaceEndpoints(nodes []string) {
	if a.redial == nil || len(nodes) == 0 {
		return
	}
	next, err := a.redial(nodes)
	if err != nil {
		a.logger.Warn("Valkey redial with discovered nodes failed; keeping current client",
			"nodes", len(nodes), "error", err)
		return
	}
	a.mu.Lock()
	prev := a.current
	a.current = next
	a.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	a.logger.Info("Valkey client rebuilt from discovered nodes", "nodes", len(nodes))
}

// NewAutoSwapForSingle upgrades from in-memory to a single-node Valkey
// client when reachable.
func NewAutoSwapForSingle(addr string, db int, password string, ttl time.Duration, log logger.Logger, fallback ValkeyCluster) ValkeyCluster {
	return newAutoSwapCache(fallback, log, func() (ValkeyCluster, error) {
		return NewValkeySingle(addr, db, password, ttl, log)
	})
}

// NewAutoSwapForCluster upgrades from in-memory to a Valkey cluster client
// when reachable. The returned cache accepts endpoint replacement from DNS
// discovery.
func NewAutoSwapForCluster(nodes []string, password string, ttl time.Duration, log logger.Logger, fallback ValkeyCluster) ValkeyCluster {
	a := newAutoSwapCache(fallback, log, func() (ValkeyCluster, error) {
		return NewValkeyCluster(nodes, password, ttl, log)
	})
	a.redial = func(next []string) (ValkeyCluster, error) {
		return NewValkeyCluster(next, password, ttl, log)
	}
	return a
}
