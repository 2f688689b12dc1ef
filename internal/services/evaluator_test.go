package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

type evaluatorFixture struct {
	users     *mockUserRepo
	roles     *mockRoleRepo
	grants    *mockUserRoleRepo
	rolePerms *mockRolePermissionRepo
	evaluator *Evaluator
	now       time.Time
}

func newEvaluatorFixture(t *testing.T, maxDepth int) *evaluatorFixture {
	t.Helper()
	f := &evaluatorFixture{
		users:     &mockUserRepo{},
		roles:     &mockRoleRepo{},
		grants:    &mockUserRoleRepo{},
		rolePerms: &mockRolePermissionRepo{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.evaluator = NewEvaluator(f.users, f.roles, f.grants, f.rolePerms, maxDepth, logger.NewNop())
	f.evaluator.now = func() time.Time { return f.now }
	return f
}

func checkRequest(principal, action, resourceType, resourceID string) *models.DecisionRequest {
	return &models.DecisionRequest{
		Tenant:    "org-1",
		Principal: models.PrincipalRef{ID: principal},
		Action:    action,
		Resource:  models.ResourceRef{Type: resourceType, ID: resourceID},
	}
}

func activeUser(id string) *models.User {
	ext := id + "-ext"
	return &models.User{ID: id, OrgID: "org-1", Email: id + "@example.com", ExternalID: &ext, Status: models.UserActive}
}

func TestEvaluatorAllowsThroughDirectRole(t *testing.T) {
	f := newEvaluatorFixture(t, 5)

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-editor"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-editor"}).Return([]*models.Role{
		{ID: "r-editor", OrgID: "org-1", Name: "editor"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-editor": {{ID: "p-1", Name: "document-write", ResourceType: "document", Action: "write", Effect: models.EffectAllow}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "write", "document", "doc-9"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, d.Decision)
	assert.Equal(t, "editor: document-write", d.Reason)
	assert.Equal(t, []string{"editor"}, d.ContributingRoles)
}

func TestEvaluatorDenyOverridesAllow(t *testing.T) {
	f := newEvaluatorFixture(t, 5)

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-editor"},
		{ID: "g-2", UserID: "u-1", RoleID: "r-restricted"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", mock.Anything).Return([]*models.Role{
		{ID: "r-editor", OrgID: "org-1", Name: "editor"},
		{ID: "r-restricted", OrgID: "org-1", Name: "restricted"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-editor":     {{ID: "p-1", Name: "document-write", ResourceType: "document", Action: "write", Effect: models.EffectAllow}},
		"r-restricted": {{ID: "p-2", Name: "document-write-deny", ResourceType: "document", Action: "write", Effect: models.EffectDeny}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "write", "document", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "restricted: document-write-deny", d.Reason)
}

func TestEvaluatorInheritsParentPermissions(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	parent := "r-admin"

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-junior"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-junior"}).Return([]*models.Role{
		{ID: "r-junior", OrgID: "org-1", Name: "junior", ParentID: &parent, Level: 1},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-admin"}).Return([]*models.Role{
		{ID: "r-admin", OrgID: "org-1", Name: "admin", Level: 0},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-admin": {{ID: "p-1", Name: "server-restart", ResourceType: "server", Action: "restart", Effect: models.EffectAllow}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "restart", "server", "srv-1"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, d.Decision)
	assert.Equal(t, "admin: server-restart", d.Reason)
}

func TestEvaluatorScopeFiltering(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	projType := "project"
	projID := "proj-1"

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-lead", ResourceType: &projType, ResourceID: &projID},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-lead"}).Return([]*models.Role{
		{ID: "r-lead", OrgID: "org-1", Name: "lead"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-lead": {{ID: "p-1", Name: "project-write", ResourceType: "project", Action: "write", Effect: models.EffectAllow}},
	}, nil)

	// Instance scope covers only proj-1; requesting proj-2 leaves the allow
	// without a scoped role.
	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "write", "project", "proj-2"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "role not scoped to resource", d.Reason)
}

func TestEvaluatorOutOfScopeDenyStillDenies(t *testing.T) {
	// A deny attached to a role scoped elsewhere must override a global
	// allow: scope narrows allows, never denies.
	f := newEvaluatorFixture(t, 5)
	docType := "document"
	doc2 := "doc-2"

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-viewer"},
		{ID: "g-2", UserID: "u-1", RoleID: "r-banned", ResourceType: &docType, ResourceID: &doc2},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", mock.Anything).Return([]*models.Role{
		{ID: "r-viewer", OrgID: "org-1", Name: "viewer"},
		{ID: "r-banned", OrgID: "org-1", Name: "banned"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-viewer": {{ID: "p-1", Name: "document-read", ResourceType: "document", Action: "read", Effect: models.EffectAllow}},
		"r-banned": {{ID: "p-2", Name: "document-read-deny", ResourceType: "document", Action: "read", Effect: models.EffectDeny}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "read", "document", "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "banned: document-read-deny", d.Reason)
}

func TestEvaluatorInstanceScopeMatch(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	projType := "project"
	projID := "proj-1"

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-lead", ResourceType: &projType, ResourceID: &projID},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-lead"}).Return([]*models.Role{
		{ID: "r-lead", OrgID: "org-1", Name: "lead"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-lead": {{ID: "p-1", Name: "project-write", ResourceType: "project", Action: "write", Effect: models.EffectAllow}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "write", "project", "proj-1"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, d.Decision)
}

func TestEvaluatorDeniesWithoutActiveRoles(t *testing.T) {
	f := newEvaluatorFixture(t, 5)

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	// Expired assignments never come back from ActiveByUser.
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "read", "document", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "no roles", d.Reason)
}

func TestEvaluatorDeniesUnknownPrincipal(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	f.users.On("GetByPrincipal", mock.Anything, "org-1", "ghost").
		Return(nil, models.E(models.ErrNotFound, "user not found"))

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("ghost", "read", "document", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "user not found", d.Reason)
}

func TestEvaluatorDeniesInactiveUser(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	u := activeUser("u-1")
	u.Status = models.UserSuspended
	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(u, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "read", "document", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "user inactive", d.Reason)
}

func TestEvaluatorDeniesWithoutMatchingPermission(t *testing.T) {
	f := newEvaluatorFixture(t, 5)

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-viewer"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-viewer"}).Return([]*models.Role{
		{ID: "r-viewer", OrgID: "org-1", Name: "viewer"},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.Anything).Return(map[string][]*models.Permission{
		"r-viewer": {{ID: "p-1", Name: "document-read", ResourceType: "document", Action: "read", Effect: models.EffectAllow}},
	}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "delete", "document", "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
	assert.Equal(t, "lacks document:delete", d.Reason)
}

func TestEvaluatorHierarchyDepthBound(t *testing.T) {
	// Chain r-0 <- r-1 <- r-2 with maxDepth 1: only r-0 and r-1 resolve, so
	// the permission attached at r-2 never contributes.
	f := newEvaluatorFixture(t, 1)
	p1 := "r-1"
	p2 := "r-2"

	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").Return(activeUser("u-1"), nil)
	f.grants.On("ActiveByUser", mock.Anything, "u-1", f.now).Return([]*models.UserRole{
		{ID: "g-1", UserID: "u-1", RoleID: "r-0"},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-0"}).Return([]*models.Role{
		{ID: "r-0", OrgID: "org-1", Name: "leaf", ParentID: &p1, Level: 2},
	}, nil)
	f.roles.On("GetByIDs", mock.Anything, "org-1", []string{"r-1"}).Return([]*models.Role{
		{ID: "r-1", OrgID: "org-1", Name: "middle", ParentID: &p2, Level: 1},
	}, nil)
	f.rolePerms.On("PermissionsByRole", mock.Anything, mock.MatchedBy(func(ids []string) bool {
		for _, id := range ids {
			if id == "r-2" {
				return false
			}
		}
		return true
	})).Return(map[string][]*models.Permission{}, nil)

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "read", "document", ""))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionDeny, d.Decision)
}

func TestEvaluatorSurfacesStorageErrors(t *testing.T) {
	f := newEvaluatorFixture(t, 5)
	f.users.On("GetByPrincipal", mock.Anything, "org-1", "alice").
		Return(nil, models.Wrap(models.ErrStorageError, "query users", errors.New("connection refused")))

	d, err := f.evaluator.Evaluate(context.Background(), checkRequest("alice", "read", "document", ""))
	require.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, models.IsKind(err, models.ErrStorageError))
}
