package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
)

// Testify mocks over the persistence interfaces. Return-value helpers keep
// nil-pointer handling in one place.

func userOrNil(args mock.Arguments, i int) *models.User {
	if v := args.Get(i); v != nil {
		return v.(*models.User)
	}
	return nil
}

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *mockUserRepo) GetByID(ctx context.Context, orgID, id string) (*models.User, error) {
	args := m.Called(ctx, orgID, id)
	return userOrNil(args, 0), args.Error(1)
}
func (m *mockUserRepo) GetByEmail(ctx context.Context, orgID, email string) (*models.User, error) {
	args := m.Called(ctx, orgID, email)
	return userOrNil(args, 0), args.Error(1)
}
func (m *mockUserRepo) GetByPrincipal(ctx context.Context, orgID, principalID string) (*models.User, error) {
	args := m.Called(ctx, orgID, principalID)
	return userOrNil(args, 0), args.Error(1)
}
func (m *mockUserRepo) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	args := m.Called(ctx, subject)
	return userOrNil(args, 0), args.Error(1)
}
func (m *mockUserRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.User, error) {
	args := m.Called(ctx, orgID, opts)
	if v := args.Get(0); v != nil {
		return v.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *mockUserRepo) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}
func (m *mockUserRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockRoleRepo struct{ mock.Mock }

func roleOrNil(args mock.Arguments, i int) *models.Role {
	if v := args.Get(i); v != nil {
		return v.(*models.Role)
	}
	return nil
}

func (m *mockRoleRepo) Create(ctx context.Context, role *models.Role) error {
	return m.Called(ctx, role).Error(0)
}
func (m *mockRoleRepo) GetByID(ctx context.Context, orgID, id string) (*models.Role, error) {
	args := m.Called(ctx, orgID, id)
	return roleOrNil(args, 0), args.Error(1)
}
func (m *mockRoleRepo) GetByName(ctx context.Context, orgID, name string) (*models.Role, error) {
	args := m.Called(ctx, orgID, name)
	return roleOrNil(args, 0), args.Error(1)
}
func (m *mockRoleRepo) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*models.Role, error) {
	args := m.Called(ctx, orgID, ids)
	if v := args.Get(0); v != nil {
		return v.([]*models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRoleRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Role, error) {
	args := m.Called(ctx, orgID, opts)
	if v := args.Get(0); v != nil {
		return v.([]*models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRoleRepo) ListChildren(ctx context.Context, orgID, parentID string) ([]*models.Role, error) {
	args := m.Called(ctx, orgID, parentID)
	if v := args.Get(0); v != nil {
		return v.([]*models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRoleRepo) Update(ctx context.Context, role *models.Role) error {
	return m.Called(ctx, role).Error(0)
}
func (m *mockRoleRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockPermissionRepo struct{ mock.Mock }

func permOrNil(args mock.Arguments, i int) *models.Permission {
	if v := args.Get(i); v != nil {
		return v.(*models.Permission)
	}
	return nil
}

func (m *mockPermissionRepo) Create(ctx context.Context, perm *models.Permission) error {
	return m.Called(ctx, perm).Error(0)
}
func (m *mockPermissionRepo) GetByID(ctx context.Context, orgID, id string) (*models.Permission, error) {
	args := m.Called(ctx, orgID, id)
	return permOrNil(args, 0), args.Error(1)
}
func (m *mockPermissionRepo) GetByName(ctx context.Context, orgID, name string) (*models.Permission, error) {
	args := m.Called(ctx, orgID, name)
	return permOrNil(args, 0), args.Error(1)
}
func (m *mockPermissionRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Permission, error) {
	args := m.Called(ctx, orgID, opts)
	if v := args.Get(0); v != nil {
		return v.([]*models.Permission), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockPermissionRepo) Update(ctx context.Context, perm *models.Permission) error {
	return m.Called(ctx, perm).Error(0)
}
func (m *mockPermissionRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockRolePermissionRepo struct{ mock.Mock }

func (m *mockRolePermissionRepo) Attach(ctx context.Context, rp *models.RolePermission) error {
	return m.Called(ctx, rp).Error(0)
}
func (m *mockRolePermissionRepo) Detach(ctx context.Context, roleID, permissionID string) error {
	return m.Called(ctx, roleID, permissionID).Error(0)
}
func (m *mockRolePermissionRepo) ListByRole(ctx context.Context, roleID string) ([]*models.RolePermission, error) {
	args := m.Called(ctx, roleID)
	if v := args.Get(0); v != nil {
		return v.([]*models.RolePermission), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRolePermissionRepo) PermissionsByRole(ctx context.Context, roleIDs []string) (map[string][]*models.Permission, error) {
	args := m.Called(ctx, roleIDs)
	if v := args.Get(0); v != nil {
		return v.(map[string][]*models.Permission), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserRoleRepo struct{ mock.Mock }

func (m *mockUserRoleRepo) Grant(ctx context.Context, ur *models.UserRole) error {
	return m.Called(ctx, ur).Error(0)
}
func (m *mockUserRoleRepo) Revoke(ctx context.Context, id string) (*models.UserRole, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserRoleRepo) Get(ctx context.Context, id string) (*models.UserRole, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserRoleRepo) ListByUser(ctx context.Context, userID string) ([]*models.UserRole, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.([]*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserRoleRepo) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.UserRole, error) {
	args := m.Called(ctx, userID, now)
	if v := args.Get(0); v != nil {
		return v.([]*models.UserRole), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserRoleRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockAuditRepo struct{ mock.Mock }

func (m *mockAuditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	return m.Called(ctx, entry).Error(0)
}
func (m *mockAuditRepo) Query(ctx context.Context, q repo.AuditQuery) ([]*models.AuditLog, error) {
	args := m.Called(ctx, q)
	if v := args.Get(0); v != nil {
		return v.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuditRepo) Count(ctx context.Context, q repo.AuditQuery) (int64, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockAuditRepo) EnsurePartitions(ctx context.Context, monthsAhead int) error {
	return m.Called(ctx, monthsAhead).Error(0)
}
func (m *mockAuditRepo) DropExpiredPartitions(ctx context.Context, retentionDays int) ([]string, error) {
	args := m.Called(ctx, retentionDays)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuditRepo) ListPartitions(ctx context.Context) ([]repo.PartitionInfo, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]repo.PartitionInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPolicyRepo struct{ mock.Mock }

func policyOrNil(args mock.Arguments, i int) *models.Policy {
	if v := args.Get(i); v != nil {
		return v.(*models.Policy)
	}
	return nil
}

func versionOrNil(args mock.Arguments, i int) *models.PolicyVersion {
	if v := args.Get(i); v != nil {
		return v.(*models.PolicyVersion)
	}
	return nil
}

func (m *mockPolicyRepo) Create(ctx context.Context, policy *models.Policy) error {
	return m.Called(ctx, policy).Error(0)
}
func (m *mockPolicyRepo) GetByID(ctx context.Context, orgID, id string) (*models.Policy, error) {
	args := m.Called(ctx, orgID, id)
	return policyOrNil(args, 0), args.Error(1)
}
func (m *mockPolicyRepo) GetByName(ctx context.Context, orgID, name string) (*models.Policy, error) {
	args := m.Called(ctx, orgID, name)
	return policyOrNil(args, 0), args.Error(1)
}
func (m *mockPolicyRepo) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Policy, error) {
	args := m.Called(ctx, orgID, opts)
	if v := args.Get(0); v != nil {
		return v.([]*models.Policy), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockPolicyRepo) Update(ctx context.Context, policy *models.Policy) error {
	return m.Called(ctx, policy).Error(0)
}
func (m *mockPolicyRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockPolicyRepo) CreateVersion(ctx context.Context, version *models.PolicyVersion) error {
	return m.Called(ctx, version).Error(0)
}
func (m *mockPolicyRepo) GetVersion(ctx context.Context, policyID string, version int) (*models.PolicyVersion, error) {
	args := m.Called(ctx, policyID, version)
	return versionOrNil(args, 0), args.Error(1)
}
func (m *mockPolicyRepo) ListVersions(ctx context.Context, policyID string) ([]*models.PolicyVersion, error) {
	args := m.Called(ctx, policyID)
	if v := args.Get(0); v != nil {
		return v.([]*models.PolicyVersion), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockPolicyRepo) MaxVersion(ctx context.Context, policyID string) (int, error) {
	args := m.Called(ctx, policyID)
	return args.Int(0), args.Error(1)
}
func (m *mockPolicyRepo) FindByChecksum(ctx context.Context, policyID, checksum string) (*models.PolicyVersion, error) {
	args := m.Called(ctx, policyID, checksum)
	return versionOrNil(args, 0), args.Error(1)
}
func (m *mockPolicyRepo) SetValidation(ctx context.Context, versionID string, status models.ValidationStatus, issues []models.ValidationIssue) error {
	return m.Called(ctx, versionID, status, issues).Error(0)
}
func (m *mockPolicyRepo) MarkPublished(ctx context.Context, versionID string, at time.Time) error {
	return m.Called(ctx, versionID, at).Error(0)
}

type mockOrgRepo struct{ mock.Mock }

func orgOrNil(args mock.Arguments, i int) *models.Organization {
	if v := args.Get(i); v != nil {
		return v.(*models.Organization)
	}
	return nil
}

func (m *mockOrgRepo) Create(ctx context.Context, org *models.Organization) error {
	return m.Called(ctx, org).Error(0)
}
func (m *mockOrgRepo) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	args := m.Called(ctx, id)
	return orgOrNil(args, 0), args.Error(1)
}
func (m *mockOrgRepo) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	args := m.Called(ctx, name)
	return orgOrNil(args, 0), args.Error(1)
}
func (m *mockOrgRepo) List(ctx context.Context, opts repo.ListOptions) ([]*models.Organization, error) {
	args := m.Called(ctx, opts)
	if v := args.Get(0); v != nil {
		return v.([]*models.Organization), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOrgRepo) Update(ctx context.Context, org *models.Organization) error {
	return m.Called(ctx, org).Error(0)
}
func (m *mockOrgRepo) SetStatus(ctx context.Context, id string, status models.OrgStatus) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockOrgRepo) SoftDelete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockAPIKeyRepo struct{ mock.Mock }

func (m *mockAPIKeyRepo) Create(ctx context.Context, key *models.APIKey) error {
	return m.Called(ctx, key).Error(0)
}
func (m *mockAPIKeyRepo) GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error) {
	args := m.Called(ctx, keyID)
	if v := args.Get(0); v != nil {
		return v.(*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAPIKeyRepo) ListByOrg(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	args := m.Called(ctx, orgID)
	if v := args.Get(0); v != nil {
		return v.([]*models.APIKey), args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAPIKeyRepo) Revoke(ctx context.Context, orgID, id string, at time.Time) error {
	return m.Called(ctx, orgID, id, at).Error(0)
}
func (m *mockAPIKeyRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

// fakeStore runs transactional closures inline; tests assert on the
// repository calls made inside.
type fakeStore struct{}

func (fakeStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (fakeStore) Close()                                {}
