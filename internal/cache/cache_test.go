package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/internal/models"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func newCacheForTest(t *testing.T) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l2, err := valkey.NewValkeySingle(mr.Addr(), 0, "", time.Minute, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l2.Close() })

	l1 := NewL1Cache(1000, 10*time.Second)
	return NewDecisionCache(l1, l2, 5*time.Minute, "warden:authz:", logger.NewNop()), mr
}

func allowDecision() *models.Decision {
	return &models.Decision{
		Decision:          models.DecisionAllow,
		Reason:            "editor: document-write",
		ContributingRoles: []string{"editor"},
	}
}

func testRequest(principal string) *models.DecisionRequest {
	return &models.DecisionRequest{
		Tenant:    "org-1",
		Principal: models.PrincipalRef{ID: principal},
		Action:    "write",
		Resource:  models.ResourceRef{Type: "document", ID: "doc-7"},
	}
}

func TestFingerprint_Layout(t *testing.T) {
	fp := Fingerprint(testRequest("u-1"))
	assert.Equal(t, "org-1:u-1:write:document:doc-7", fp)
}

func TestGetOrCompute_PopulatesBothTiers(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	fp := Fingerprint(testRequest("u-1"))

	var calls int32
	evaluate := func(ctx context.Context) (*models.Decision, error) {
		atomic.AddInt32(&calls, 1)
		return allowDecision(), nil
	}

	d, layer, err := c.GetOrCompute(ctx, fp, evaluate)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, d.Decision)
	assert.Empty(t, layer)

	d, layer, err = c.GetOrCompute(ctx, fp, evaluate)
	require.NoError(t, err)
	assert.True(t, d.Allowed())
	assert.Equal(t, "l1", layer)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_L2ServesAfterL1Eviction(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	fp := Fingerprint(testRequest("u-1"))

	_, _, err := c.GetOrCompute(ctx, fp, func(ctx context.Context) (*models.Decision, error) {
		return allowDecision(), nil
	})
	require.NoError(t, err)

	c.l1.Purge()

	d, layer, err := c.GetOrCompute(ctx, fp, func(ctx context.Context) (*models.Decision, error) {
		t.Fatal("evaluate must not run when L2 holds the decision")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "l2", layer)
	assert.True(t, d.Allowed())
}

func TestGetOrCompute_NeverCachesErrorDecisions(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	fp := Fingerprint(testRequest("u-1"))

	var calls int32
	evaluate := func(ctx context.Context) (*models.Decision, error) {
		atomic.AddInt32(&calls, 1)
		return &models.Decision{Decision: models.DecisionError, Reason: "store unavailable"}, nil
	}

	for i := 0; i < 2; i++ {
		d, _, err := c.GetOrCompute(ctx, fp, evaluate)
		require.NoError(t, err)
		assert.Equal(t, models.DecisionError, d.Decision)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_CollapsesConcurrentMisses(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	fp := Fingerprint(testRequest("u-1"))

	var calls int32
	release := make(chan struct{})
	evaluate := func(ctx context.Context) (*models.Decision, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return allowDecision(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _, err := c.GetOrCompute(ctx, fp, evaluate)
			assert.NoError(t, err)
			assert.True(t, d.Allowed())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_SurvivesL2Outage(t *testing.T) {
	c, mr := newCacheForTest(t)
	ctx := context.Background()
	mr.Close()

	d, _, err := c.GetOrCompute(ctx, Fingerprint(testRequest("u-1")), func(ctx context.Context) (*models.Decision, error) {
		return allowDecision(), nil
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed())
}

func TestInvalidator_PrincipalScopedPurge(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	b := bus.New(logger.NewNop())
	defer b.Close()
	NewInvalidator(c, logger.NewNop()).Register(b)

	seed := func(principal string) string {
		fp := Fingerprint(testRequest(principal))
		_, _, err := c.GetOrCompute(ctx, fp, func(ctx context.Context) (*models.Decision, error) {
			return allowDecision(), nil
		})
		require.NoError(t, err)
		return fp
	}
	fpTarget := seed("u-1")
	fpOther := seed("u-2")

	b.Publish(ctx, bus.Event{
		Type:       bus.EventUserRoleChanged,
		TenantID:   "org-1",
		Principals: []string{"u-1"},
	})

	_, ok := c.l1.Get(fpTarget)
	assert.False(t, ok, "mutated principal must be purged")
	_, ok = c.l1.Get(fpOther)
	assert.True(t, ok, "unrelated principal survives")
}

func TestInvalidator_TenantWidePurgeOnRoleChange(t *testing.T) {
	c, _ := newCacheForTest(t)
	ctx := context.Background()
	b := bus.New(logger.NewNop())
	defer b.Close()
	NewInvalidator(c, logger.NewNop()).Register(b)

	fp := Fingerprint(testRequest("u-1"))
	_, _, err := c.GetOrCompute(ctx, fp, func(ctx context.Context) (*models.Decision, error) {
		return allowDecision(), nil
	})
	require.NoError(t, err)

	b.Publish(ctx, bus.Event{Type: bus.EventRolePermissionChanged, TenantID: "org-1"})

	_, ok := c.l1.Get(fp)
	assert.False(t, ok)
}

func TestL1_DeleteByPrefix(t *testing.T) {
	l1 := NewL1Cache(100, time.Minute)
	l1.Set("org-1:u-1:read:document:a", &models.CachedDecision{Decision: models.DecisionAllow})
	l1.Set("org-1:u-2:read:document:a", &models.CachedDecision{Decision: models.DecisionDeny})
	l1.Set("org-2:u-1:read:document:a", &models.CachedDecision{Decision: models.DecisionAllow})

	removed := l1.DeleteByPrefix("org-1:")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, l1.Len())
}
