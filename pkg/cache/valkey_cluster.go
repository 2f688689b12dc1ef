// Package cache provides the shared L2 tier of the decision cache: a thin
// Valkey/Redis client with single-node, cluster, in-memory fallback, and
// auto-upgrading implementations.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

// ErrCacheMiss marks a lookup that found no value. Callers distinguish it
// from transport failures, which degrade the tier instead.
var ErrCacheMiss = errors.New("cache: key not found")

// ValkeyCluster is the L2 cache surface used across WARDEN-CORE. Values are
// stored as JSON unless already raw bytes; TTL <= 0 falls back to the
// client's default.
type ValkeyCluster interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key under the prefix via SCAN and returns
	// the number of keys deleted. Tenant-wide invalidation depends on it.
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)

	// Incr atomically increments a counter key, stamping the TTL on first
	// increment. The distributed rate limiter uses it as a shared window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// encodeValue normalizes a value for storage.
func encodeValue(key string, value interface{}) ([]byte, error) {
	switch x := value.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %s: %w", key, err)
		}
		return b, nil
	}
}

// valkeyClusterImpl implements ValkeyCluster against a Valkey/Redis cluster.
type valkeyClusterImpl struct {
	client *redis.ClusterClient
	logger logger.Logger
	ttl    time.Duration
}

func NewValkeyCluster(nodes []string, password string, defaultTTL time.Duration, log logger.Logger) (ValkeyCluster, error) {
	client := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:        nodes,
		Password:     password,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey cluster: %w", err)
	}

	return &valkeyClusterImpl{client: client, logger: log, ttl: defaultTTL}, nil
}

func (v *valkeyClusterImpl) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := v.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (v *valkeyClusterImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(key, value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = v.ttl
	}
	return v.client.Set(ctx, key, data, ttl).Err()
}

func (v *valkeyClusterImpl) Delete(ctx context.Context, key string) error {
	return v.client.Del(ctx, key).Err()
}

func (v *valkeyClusterImpl) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	// SCAN must run on every master in a cluster.
	err := v.client.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
		iter := shard.Scan(ctx, 0, prefix+"*", 256).Iterator()
		for iter.Next(ctx) {
			if err := shard.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
			deleted++
		}
		return iter.Err()
	})
	return deleted, err
}

func (v *valkeyClusterImpl) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := v.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		_ = v.client.Expire(ctx, key, ttl).Err()
	}
	return n, nil
}

func (v *valkeyClusterImpl) HealthCheck(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *valkeyClusterImpl) Close() error {
	return v.client.Close()
}
