package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/cache"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/policy"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// stubEngine scripts the policy engine verdict.
type stubEngine struct {
	enabled bool
	result  *policy.Result
	err     error
	calls   int
}

func (e *stubEngine) Enabled() bool { return e.enabled }
func (e *stubEngine) Evaluate(ctx context.Context, input map[string]interface{}) (*policy.Result, error) {
	e.calls++
	return e.result, e.err
}
func (e *stubEngine) Compile(ctx context.Context, content string) ([]models.ValidationIssue, error) {
	return nil, nil
}
func (e *stubEngine) HealthCheck(ctx context.Context) error { return nil }

type decisionFixture struct {
	*evaluatorFixture
	engine  *stubEngine
	audit   *AuditService
	service *DecisionService
}

func newDecisionFixture(t *testing.T, engine *stubEngine) *decisionFixture {
	t.Helper()
	ef := newEvaluatorFixture(t, 5)

	mr := miniredis.RunT(t)
	l2, err := valkey.NewValkeySingle(mr.Addr(), 0, "", time.Minute, logger.NewNop())
	require.NoError(t, err)
	dc := cache.NewDecisionCache(cache.NewL1Cache(128, time.Minute), l2, time.Minute, "warden:authz:", logger.NewNop())

	auditStore := &mockAuditRepo{}
	auditStore.On("Insert", mock.Anything, mock.Anything).Return(nil).Maybe()
	audit := NewAuditService(auditStore, 64, 1, logger.NewNop())

	return &decisionFixture{
		evaluatorFixture: ef,
		engine:           engine,
		audit:            audit,
		service:          NewDecisionService(ef.evaluator, dc, engine, audit, logger.NewNop()),
	}
}

func (f *decisionFixture) expectAllow(principal string) {
	f.users.On("GetByPrincipal", mock.Anything, "org-1", principal).Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-editor"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-editor"}).Return([]*models.Role{
		{ID: "r-editor", OrgID: "org-1", Name: "editor"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-editor": {{ID: "p-1", Name: "document-write", ResourceType: "document", Action: "write", Effect: models.EffectAllow}},
	}, nil)
}

func TestCheckRejectsInvalidRequestAsErrorDecision(t *testing.T) {
	f := newDecisionFixture(t, &stubEngine{})

	d := f.service.Check(context.Background(), &models.DecisionRequest{}, RequestMeta{})
	assert.Equal(t, models.DecisionError, d.Decision)
	assert.Contains(t, d.Reason, "tenant is required")
}

func TestCheckCachesAllowDecisions(t *testing.T) {
	f := newDecisionFixture(t, &stubEngine{})
	f.expectAllow("alice")

	req := checkRequest("alice", "write", "document", "doc-1")
	first := f.service.Check(context.Background(), req, RequestMeta{})
	assert.Equal(t, models.DecisionAllow, first.Decision)

	second := f.service.Check(context.Background(), req, RequestMeta{})
	assert.Equal(t, models.DecisionAllow, second.Decision)
	assert.Equal(t, first.Reason, second.Reason)

	// One evaluation total: the second request was served from cache.
	f.users.AssertNumberOfCalls(t, "GetByPrincipal", 1)
}

func TestCheckEmitsDecisionAuditEntries(t *testing.T) {
	f := newDecisionFixture(t, &stubEngine{})
	f.expectAllow("alice")

	tail, cancel := f.audit.Subscribe("org-1", 4)
	defer cancel()

	f.service.Check(context.Background(), checkRequest("alice", "write", "document", "doc-1"),
		RequestMeta{ActorSubject: "alice", IP: "10.0.0.9"})

	select {
	case entry := <-tail:
		assert.Equal(t, models.AuditEventDecision, entry.EventType)
		assert.Equal(t, "write", entry.Action)
		require.NotNil(t, entry.Decision)
		assert.Equal(t, string(models.DecisionAllow), *entry.Decision)
		require.NotNil(t, entry.IP)
		assert.Equal(t, "10.0.0.9", *entry.IP)
	case <-time.After(time.Second):
		t.Fatal("no audit entry broadcast")
	}
}

func TestCheckEngineDenyOverridesRBACAllow(t *testing.T) {
	engine := &stubEngine{enabled: true, result: &policy.Result{Deny: true, Reason: "after hours"}}
	f := newDecisionFixture(t, engine)
	f.expectAllow("alice")

	d := f.service.Check(context.Background(), checkRequest("alice", "write", "document", "doc-1"), RequestMeta{})
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "after hours", d.Reason)
	assert.Equal(t, 1, engine.calls)
}

func TestCheckEngineAllowNeverOverridesRBACDeny(t *testing.T) {
	engine := &stubEngine{enabled: true, result: &policy.Result{Allow: true}}
	f := newDecisionFixture(t, engine)

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "ghost").
		Return(nil, models.E(models.ErrNotFound, "user not found"))

	d := f.service.Check(context.Background(), checkRequest("ghost", "write", "document", "doc-1"), RequestMeta{})
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "user not found", d.Reason)
}

func TestCheckEngineOutageDegradesAndSkipsCache(t *testing.T) {
	engine := &stubEngine{enabled: true, err: errors.New("connection refused")}
	f := newDecisionFixture(t, engine)
	f.expectAllow("alice")

	req := checkRequest("alice", "write", "document", "doc-1")
	d := f.service.Check(context.Background(), req, RequestMeta{})
	assert.Equal(t, models.DecisionAllow, d.Decision)
	assert.True(t, d.Degraded)

	// Degraded results are not cached: a second check evaluates again.
	f.service.Check(context.Background(), req, RequestMeta{})
	assert.Equal(t, 2, engine.calls)
}

func TestCheckBatchOrderAndBounds(t *testing.T) {
	f := newDecisionFixture(t, &stubEngine{})
	f.expectAllow("alice")
	f.users.On("GetByPrincipal", mock.Anything, "org-1", "ghost").
		Return(nil, models.E(models.ErrNotFound, "user not found"))

	out, err := f.service.CheckBatch(context.Background(), &models.BatchDecisionRequest{
		Requests: []models.DecisionRequest{
			*checkRequest("alice", "write", "document", "doc-1"),
			*checkRequest("ghost", "write", "document", "doc-1"),
		},
	}, RequestMeta{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, models.DecisionAllow, out[0].Decision)
	assert.Equal(t, models.DecisionDeny, out[1].Decision)

	_, err = f.service.CheckBatch(context.Background(), &models.BatchDecisionRequest{}, RequestMeta{})
	assert.True(t, models.IsKind(err, models.ErrValidationFailed))

	oversized := &models.BatchDecisionRequest{Requests: make([]models.DecisionRequest, MaxBatchSize+1)}
	_, err = f.service.CheckBatch(context.Background(), oversized, RequestMeta{})
	assert.True(t, models.IsKind(err, models.ErrValidationFailed))
}

func TestCheckErrorDecisionsAreNotCached(t *testing.T) {
	f := newDecisionFixture(t, &stubEngine{})
	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").
		Return(nil, models.Wrap(models.ErrStorageError, "query users", errors.New("down")))

	req := checkRequest("alice", "write", "document", "doc-1")
	d := f.service.Check(context.Background(), req, RequestMeta{})
	assert.Equal(t, models.DecisionError, d.Decision)
	assert.Equal(t, "authorization store unavailable", d.Reason)

	f.service.Check(context.Background(), req, RequestMeta{})
	f.users.AssertNumberOfCalls(t, "GetByPrincipal", 2)
}
