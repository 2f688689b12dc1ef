// Package repo defines the persistence interfaces the services depend on.
// Implementations live in internal/storage/postgres; tests substitute
// testify mocks.
package repo

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
)

// ListOptions pages list queries. IncludeDeleted surfaces soft-deleted rows
// for administrative views.
type ListOptions struct {
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// Store is the top-level handle over the relational store. WithinTx runs fn
// inside one transaction; repository calls made with the ctx it passes join
// that transaction.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	HealthCheck(ctx context.Context) error
	Close()
}

type OrganizationRepo interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetByName(ctx context.Context, name string) (*models.Organization, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	SetStatus(ctx context.Context, id string, status models.OrgStatus) error
	SoftDelete(ctx context.Context, id string) error
}

type UserRepo interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, orgID, id string) (*models.User, error)
	GetByEmail(ctx context.Context, orgID, email string) (*models.User, error)
	// GetByPrincipal resolves a decision principal inside a tenant: the id
	// matches either external-identity-id or bearer-subject.
	GetByPrincipal(ctx context.Context, orgID, principalID string) (*models.User, error)
	// GetBySubject resolves a bearer subject across tenants (JIT lookup;
	// bearer-subject is globally unique).
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
	List(ctx context.Context, orgID string, opts ListOptions) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	TouchLastSync(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, id string) error
}

type RoleRepo interface {
	Create(ctx context.Context, role *models.Role) error
	GetByID(ctx context.Context, orgID, id string) (*models.Role, error)
	GetByName(ctx context.Context, orgID, name string) (*models.Role, error)
	GetByIDs(ctx context.Context, orgID string, ids []string) ([]*models.Role, error)
	List(ctx context.Context, orgID string, opts ListOptions) ([]*models.Role, error)
	// ListChildren returns the live roles directly parented to parentID.
	ListChildren(ctx context.Context, orgID, parentID string) ([]*models.Role, error)
	Update(ctx context.Context, role *models.Role) error
	SoftDelete(ctx context.Context, id string) error
}

type PermissionRepo interface {
	Create(ctx context.Context, perm *models.Permission) error
	GetByID(ctx context.Context, orgID, id string) (*models.Permission, error)
	GetByName(ctx context.Context, orgID, name string) (*models.Permission, error)
	List(ctx context.Context, orgID string, opts ListOptions) ([]*models.Permission, error)
	Update(ctx context.Context, perm *models.Permission) error
	Delete(ctx context.Context, id string) error
}

type RolePermissionRepo interface {
	Attach(ctx context.Context, rp *models.RolePermission) error
	Detach(ctx context.Context, roleID, permissionID string) error
	ListByRole(ctx context.Context, roleID string) ([]*models.RolePermission, error)
	// PermissionsByRole loads the permissions attached to the given roles in
	// one round trip, grouped by role id so the evaluator can name which
	// role contributed a grant.
	PermissionsByRole(ctx context.Context, roleIDs []string) (map[string][]*models.Permission, error)
}

type UserRoleRepo interface {
	Grant(ctx context.Context, ur *models.UserRole) error
	Revoke(ctx context.Context, id string) (*models.UserRole, error)
	Get(ctx context.Context, id string) (*models.UserRole, error)
	ListByUser(ctx context.Context, userID string) ([]*models.UserRole, error)
	// ActiveByUser returns assignments with expires-at > now or null.
	ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.UserRole, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type PolicyRepo interface {
	Create(ctx context.Context, policy *models.Policy) error
	GetByID(ctx context.Context, orgID, id string) (*models.Policy, error)
	GetByName(ctx context.Context, orgID, name string) (*models.Policy, error)
	List(ctx context.Context, orgID string, opts ListOptions) ([]*models.Policy, error)
	Update(ctx context.Context, policy *models.Policy) error
	SoftDelete(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, version *models.PolicyVersion) error
	GetVersion(ctx context.Context, policyID string, version int) (*models.PolicyVersion, error)
	ListVersions(ctx context.Context, policyID string) ([]*models.PolicyVersion, error)
	MaxVersion(ctx context.Context, policyID string) (int, error)
	// FindByChecksum surfaces prior versions with identical content.
	FindByChecksum(ctx context.Context, policyID, checksum string) (*models.PolicyVersion, error)
	SetValidation(ctx context.Context, versionID string, status models.ValidationStatus, issues []models.ValidationIssue) error
	MarkPublished(ctx context.Context, versionID string, at time.Time) error
}

type APIKeyRepo interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByKeyID(ctx context.Context, keyID string) (*models.APIKey, error)
	ListByOrg(ctx context.Context, orgID string) ([]*models.APIKey, error)
	Revoke(ctx context.Context, orgID, id string, at time.Time) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// AuditQuery filters the append-only log. TenantID, From, and To are
// mandatory; everything else narrows. Search carries a Lucene-style
// expression translated to SQL predicates over the whitelisted columns.
type AuditQuery struct {
	TenantID     string
	From         time.Time
	To           time.Time
	EventType    string
	Actor        string
	ResourceType string
	ResourceID   string
	Action       string
	Decision     string
	IP           string
	Search       string
	Limit        int
	Offset       int
}

// PartitionInfo describes one monthly audit partition.
type PartitionInfo struct {
	Name  string
	From  time.Time
	To    time.Time
	Bytes int64
}

type AuditRepo interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	Query(ctx context.Context, q AuditQuery) ([]*models.AuditLog, error)
	Count(ctx context.Context, q AuditQuery) (int64, error)

	// EnsurePartitions creates monthly partitions covering now through
	// now+monthsAhead.
	EnsurePartitions(ctx context.Context, monthsAhead int) error
	// DropExpiredPartitions drops partitions whose exclusive upper bound is
	// older than now minus retentionDays. Rows inside a partially expired
	// month survive until the whole month ages out.
	DropExpiredPartitions(ctx context.Context, retentionDays int) ([]string, error)
	ListPartitions(ctx context.Context) ([]PartitionInfo, error)
}
