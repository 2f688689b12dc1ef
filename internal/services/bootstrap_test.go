package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func notFound() error { return models.E(models.ErrNotFound, "not found") }

func TestBootstrapSeedsFreshDeployment(t *testing.T) {
	orgs := &mockOrgRepo{}
	roles := &mockRoleRepo{}
	perms := &mockPermissionRepo{}
	rolePerms := &mockRolePermissionRepo{}
	keys := &mockAPIKeyRepo{}

	orgs.On("GetByName", mock.Anything, "default").Return(nil, notFound()).Once()
	orgs.On("Create", mock.Anything, mock.Anything).Return(nil)

	roles.On("GetByName", mock.Anything, mock.Anything, mock.Anything).Return(nil, notFound())
	var seededRoles []*models.Role
	roles.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		seededRoles = append(seededRoles, args.Get(1).(*models.Role))
	}).Return(nil)

	perms.On("GetByName", mock.Anything, mock.Anything, mock.Anything).Return(nil, notFound())
	perms.On("Create", mock.Anything, mock.Anything).Return(nil)
	rolePerms.On("Attach", mock.Anything, mock.Anything).Return(nil)

	keys.On("ListByOrg", mock.Anything, mock.Anything).Return([]*models.APIKey{}, nil)
	keys.On("Create", mock.Anything, mock.Anything).Return(nil)

	svc := NewBootstrapService(orgs, roles, perms, rolePerms, keys, logger.NewNop())
	res, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.NotEmpty(t, res.AdminToken, "fresh deployment mints the admin credential")

	require.Len(t, seededRoles, 2)
	for _, r := range seededRoles {
		assert.True(t, r.IsSystem)
	}

	// read+write across the eight platform resource types.
	perms.AssertNumberOfCalls(t, "Create", 16)
	rolePerms.AssertNumberOfCalls(t, "Attach", 16)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	orgs := &mockOrgRepo{}
	roles := &mockRoleRepo{}
	perms := &mockPermissionRepo{}
	rolePerms := &mockRolePermissionRepo{}
	keys := &mockAPIKeyRepo{}

	orgs.On("GetByName", mock.Anything, "default").Return(&models.Organization{
		ID: "org-1", Name: "default", Status: models.OrgActive,
	}, nil)
	roles.On("GetByName", mock.Anything, "org-1", mock.Anything).Return(&models.Role{
		ID: "r-1", OrgID: "org-1", Name: "org-admin", IsSystem: true,
	}, nil)
	perms.On("GetByName", mock.Anything, "org-1", mock.Anything).Return(&models.Permission{
		ID: "p-1", OrgID: "org-1", Name: "user:read", ResourceType: "user", Action: "read", Effect: models.EffectAllow,
	}, nil)
	// Attach hits the unique constraint on re-runs; conflict is ignored.
	rolePerms.On("Attach", mock.Anything, mock.Anything).Return(models.E(models.ErrConflict, "duplicate"))
	keys.On("ListByOrg", mock.Anything, "org-1").Return([]*models.APIKey{
		{ID: "key-1", OrgID: "org-1", Name: "bootstrap-admin", Status: models.APIKeyActive},
	}, nil)

	svc := NewBootstrapService(orgs, roles, perms, rolePerms, keys, logger.NewNop())
	res, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Empty(t, res.AdminToken, "existing bootstrap key is never re-minted")
	orgs.AssertNotCalled(t, "Create")
	roles.AssertNotCalled(t, "Create")
	perms.AssertNotCalled(t, "Create")
	keys.AssertNotCalled(t, "Create")
}

func TestBootstrapLosesCreateRaceGracefully(t *testing.T) {
	orgs := &mockOrgRepo{}
	roles := &mockRoleRepo{}
	perms := &mockPermissionRepo{}
	rolePerms := &mockRolePermissionRepo{}
	keys := &mockAPIKeyRepo{}

	org := &models.Organization{ID: "org-1", Name: "default", Status: models.OrgActive}
	orgs.On("GetByName", mock.Anything, "default").Return(nil, notFound()).Once()
	orgs.On("Create", mock.Anything, mock.Anything).Return(models.E(models.ErrConflict, "duplicate"))
	orgs.On("GetByName", mock.Anything, "default").Return(org, nil)

	roles.On("GetByName", mock.Anything, "org-1", mock.Anything).Return(&models.Role{
		ID: "r-1", OrgID: "org-1", Name: "org-admin", IsSystem: true,
	}, nil)
	perms.On("GetByName", mock.Anything, "org-1", mock.Anything).Return(&models.Permission{
		ID: "p-1", OrgID: "org-1", Name: "user:read", ResourceType: "user", Action: "read", Effect: models.EffectAllow,
	}, nil)
	rolePerms.On("Attach", mock.Anything, mock.Anything).Return(nil)
	keys.On("ListByOrg", mock.Anything, "org-1").Return([]*models.APIKey{
		{ID: "key-1", OrgID: "org-1", Name: "bootstrap-admin", Status: models.APIKeyActive},
	}, nil)

	svc := NewBootstrapService(orgs, roles, perms, rolePerms, keys, logger.NewNop())
	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "org-1", res.OrgID)
	assert.False(t, res.Created)
}
