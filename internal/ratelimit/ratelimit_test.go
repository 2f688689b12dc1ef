package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/models"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func TestTokenBucket_ExhaustsAtCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucketLimiter(3, 0, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "org-1"))
	}
	err := l.Allow(ctx, "org-1")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrRateLimited))
}

func TestTokenBucket_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucketLimiter(1, 0, time.Minute)

	// Separate credentials inside the same tenant carry separate budgets.
	require.NoError(t, l.Allow(ctx, "apikey:key-a"))
	require.Error(t, l.Allow(ctx, "apikey:key-a"))
	assert.NoError(t, l.Allow(ctx, "apikey:key-b"))
}

func TestTokenBucket_ReportsLimitAndReset(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucketLimiter(2, 2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow(ctx, "org-1"))
	require.NoError(t, l.Allow(ctx, "org-1"))
	err := l.Allow(ctx, "org-1")
	require.Error(t, err)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 2, appErr.Details["limit"])
	// One token refills in half a period.
	assert.Equal(t, now.Add(30*time.Second).Unix(), appErr.Details["reset"])
}

func TestTokenBucket_Refills(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucketLimiter(2, 2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow(ctx, "org-1"))
	require.NoError(t, l.Allow(ctx, "org-1"))
	require.Error(t, l.Allow(ctx, "org-1"))

	now = now.Add(30 * time.Second) // half a period restores one token
	require.NoError(t, l.Allow(ctx, "org-1"))
	require.Error(t, l.Allow(ctx, "org-1"))
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewTokenBucketLimiter(2, 10, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow(ctx, "org-1"))
	now = now.Add(time.Hour)

	require.NoError(t, l.Allow(ctx, "org-1"))
	require.NoError(t, l.Allow(ctx, "org-1"))
	assert.Error(t, l.Allow(ctx, "org-1"))
}

func TestDistributedLimiter_SharedWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c, err := valkey.NewValkeySingle(mr.Addr(), 0, "", time.Minute, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	l := NewDistributedLimiter(c, 2, time.Minute, "warden:authz:", logger.NewNop())
	require.NoError(t, l.Allow(ctx, "org-1"))
	require.NoError(t, l.Allow(ctx, "org-1"))
	err = l.Allow(ctx, "org-1")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrRateLimited))

	mr.FastForward(61 * time.Second)
	assert.NoError(t, l.Allow(ctx, "org-1"))
}

func TestDistributedLimiter_FailsOpenOnCacheOutage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c, err := valkey.NewValkeySingle(mr.Addr(), 0, "", time.Minute, logger.NewNop())
	require.NoError(t, err)
	mr.Close()

	l := NewDistributedLimiter(c, 1, time.Minute, "warden:authz:", logger.NewNop())
	assert.NoError(t, l.Allow(ctx, "org-1"))
}
