package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

// noopValkeyCache is an in-memory, process-local fallback satisfying
// ValkeyCluster when the external cache is unavailable. Data is not shared
// across replicas and is lost on restart; decisions served from it are still
// correct because invalidation purges it like any other tier.
type noopValkeyCache struct {
	mu     sync.RWMutex
	m      map[string]noopEntry
	logger logger.Logger
}

type noopEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

func NewNoopValkeyCache(log logger.Logger) ValkeyCluster {
	log.Warn("Valkey cache unavailable; using in-memory fallback (noop)")
	return &noopValkeyCache{m: make(map[string]noopEntry), logger: log}
}

func (n *noopValkeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	e, ok := n.m[key]
	n.mu.RUnlock()
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return e.value, nil
}

func (n *noopValkeyCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encodeValue(key, value)
	if err != nil {
		return err
	}
	e := noopEntry{value: b}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	n.mu.Lock()
	n.m[key] = e
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	return nil
}

func (n *noopValkeyCache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var deleted int64
	for k := range n.m {
		if strings.HasPrefix(k, prefix) {
			delete(n.m, k)
			deleted++
		}
	}
	return deleted, nil
}

func (n *noopValkeyCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var count int64
	if e, ok := n.m[key]; ok && (e.expiresAt.IsZero() || time.Now().Before(e.expiresAt)) {
		_, _ = fmt.Sscan(string(e.value), &count)
	}
	count++
	e := noopEntry{value: []byte(fmt.Sprint(count))}
	if count == 1 && ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	} else if prev, ok := n.m[key]; ok {
		e.expiresAt = prev.expiresAt
	}
	n.m[key] = e
	return count, nil
}

// HealthCheck returns an error to indicate no external Valkey connectivity.
func (n *noopValkeyCache) HealthCheck(ctx context.Context) error {
	return fmt.Errorf("valkey noop cache in use (external cache not connected)")
}

func (n *noopValkeyCache) Close() error { return nil }
