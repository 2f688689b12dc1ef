package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

func newSingleForTest(t *testing.T) (ValkeyCluster, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewValkeySingle(mr.Addr(), 0, "", time.Minute, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestValkeySingle_SetGetDelete(t *testing.T) {
	c, _ := newSingleForTest(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))
	b, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestValkeySingle_SetMarshalsStructs(t *testing.T) {
	c, _ := newSingleForTest(t)
	ctx := context.Background()

	type record struct {
		Decision string `json:"decision"`
	}
	require.NoError(t, c.Set(ctx, "k", record{Decision: "allow"}, time.Minute))
	b, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"allow"}`, string(b))
}

func TestValkeySingle_DeleteByPrefix(t *testing.T) {
	c, _ := newSingleForTest(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "warden:authz:T1:u1:read:document:d1", "allow", time.Minute))
	require.NoError(t, c.Set(ctx, "warden:authz:T1:u2:read:document:d2", "deny", time.Minute))
	require.NoError(t, c.Set(ctx, "warden:authz:T2:u1:read:document:d1", "allow", time.Minute))

	deleted, err := c.DeleteByPrefix(ctx, "warden:authz:T1:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = c.Get(ctx, "warden:authz:T1:u1:read:document:d1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "warden:authz:T2:u1:read:document:d1")
	assert.NoError(t, err)
}

func TestValkeySingle_TTLExpires(t *testing.T) {
	c, mr := newSingleForTest(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 5*time.Second))
	mr.FastForward(6 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestValkeySingle_IncrStampsTTLOnce(t *testing.T) {
	c, mr := newSingleForTest(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "bucket", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.Incr(ctx, "bucket", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(31 * time.Second)
	n, err = c.Incr(ctx, "bucket", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNoopCache_BehavesLikeValkey(t *testing.T) {
	c := NewNoopValkeyCache(logger.NewNop())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "t1:a", "1", 0))
	require.NoError(t, c.Set(ctx, "t1:b", "2", 0))
	require.NoError(t, c.Set(ctx, "t2:a", "3", 0))

	deleted, err := c.DeleteByPrefix(ctx, "t1:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = c.Get(ctx, "t1:a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Noop reports unhealthy so readiness shows the degraded tier.
	assert.Error(t, c.HealthCheck(ctx))
}

func TestNoopCache_Incr(t *testing.T) {
	c := NewNoopValkeyCache(logger.NewNop())
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "bucket", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestAutoSwap_DelegatesToFallbackUntilSwap(t *testing.T) {
	fallback := NewNoopValkeyCache(logger.NewNop())
	swap := newAutoSwapCache(fallback, logger.NewNop(), func() (ValkeyCluster, error) {
		return nil, errors.New("still unreachable")
	})
	defer swap.Close()
	ctx := context.Background()

	require.NoError(t, swap.Set(ctx, "k", "v", time.Minute))
	b, err := swap.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}
