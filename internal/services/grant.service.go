package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// GrantService manages the two attachment tables: permissions onto roles
// and roles onto users. Role-permission changes purge the tenant; user-role
// changes purge only the affected principal's aliases.
type GrantService struct {
	users     repo.UserRepo
	roles     repo.RoleRepo
	perms     repo.PermissionRepo
	rolePerms repo.RolePermissionRepo
	userRoles repo.UserRoleRepo
	bus       *bus.Bus
	audit     *AuditService
	logger    logger.Logger
	now       func() time.Time
}

func NewGrantService(users repo.UserRepo, roles repo.RoleRepo, perms repo.PermissionRepo,
	rolePerms repo.RolePermissionRepo, userRoles repo.UserRoleRepo,
	b *bus.Bus, audit *AuditService, log logger.Logger) *GrantService {
	return &GrantService{
		users:     users,
		roles:     roles,
		perms:     perms,
		rolePerms: rolePerms,
		userRoles: userRoles,
		bus:       b,
		audit:     audit,
		logger:    log,
		now:       time.Now,
	}
}

// AttachPermission links a permission to a role. Both must exist in the
// same tenant.
func (s *GrantService) AttachPermission(ctx context.Context, orgID, roleID, permissionID string, meta RequestMeta) (*models.RolePermission, error) {
	if _, err := s.roles.GetByID(ctx, orgID, roleID); err != nil {
		return nil, err
	}
	if _, err := s.perms.GetByID(ctx, orgID, permissionID); err != nil {
		return nil, err
	}

	rp := &models.RolePermission{
		ID:           uuid.NewString(),
		RoleID:       roleID,
		PermissionID: permissionID,
		CreatedAt:    s.now(),
	}
	if err := s.rolePerms.Attach(ctx, rp); err != nil {
		return nil, err
	}

	s.publishRolePerm(ctx, orgID, roleID, "attach")
	s.recordGrant(orgID, "permission:attach", roleID, meta)
	return rp, nil
}

func (s *GrantService) DetachPermission(ctx context.Context, orgID, roleID, permissionID string, meta RequestMeta) error {
	if _, err := s.roles.GetByID(ctx, orgID, roleID); err != nil {
		return err
	}
	if err := s.rolePerms.Detach(ctx, roleID, permissionID); err != nil {
		return err
	}

	s.publishRolePerm(ctx, orgID, roleID, "detach")
	s.recordGrant(orgID, "permission:detach", roleID, meta)
	return nil
}

func (s *GrantService) ListRolePermissions(ctx context.Context, orgID, roleID string) ([]*models.Permission, error) {
	if _, err := s.roles.GetByID(ctx, orgID, roleID); err != nil {
		return nil, err
	}
	byRole, err := s.rolePerms.PermissionsByRole(ctx, []string{roleID})
	if err != nil {
		return nil, err
	}
	return byRole[roleID], nil
}

// GrantRole assigns a role to a user, optionally scoped and expiring. An
// expiry in the past is rejected rather than silently inert.
func (s *GrantService) GrantRole(ctx context.Context, orgID string, grant *models.UserRole, meta RequestMeta) (*models.UserRole, error) {
	if errs := models.ValidateUserRole(grant); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}
	now := s.now()
	if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
		return nil, models.E(models.ErrValidationFailed, "expiresAt must be in the future")
	}

	user, err := s.users.GetByID(ctx, orgID, grant.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByID(ctx, orgID, grant.RoleID); err != nil {
		return nil, err
	}

	grant.ID = uuid.NewString()
	grant.GrantedAt = now
	if err := s.userRoles.Grant(ctx, grant); err != nil {
		return nil, err
	}

	s.publishUserRole(ctx, orgID, user, "grant")
	s.recordGrant(orgID, "role:grant", grant.ID, meta)
	return grant, nil
}

func (s *GrantService) RevokeRole(ctx context.Context, orgID, grantID string, meta RequestMeta) error {
	grant, err := s.userRoles.Get(ctx, grantID)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, orgID, grant.UserID)
	if err != nil {
		return err
	}
	if _, err := s.userRoles.Revoke(ctx, grantID); err != nil {
		return err
	}

	s.publishUserRole(ctx, orgID, user, "revoke")
	s.recordGrant(orgID, "role:revoke", grantID, meta)
	return nil
}

func (s *GrantService) ListUserRoles(ctx context.Context, orgID, userID string) ([]*models.UserRole, error) {
	if _, err := s.users.GetByID(ctx, orgID, userID); err != nil {
		return nil, err
	}
	return s.userRoles.ListByUser(ctx, userID)
}

// PurgeExpired removes aged-out assignments; they already stopped
// contributing to decisions at their expiry instant.
func (s *GrantService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.userRoles.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Purged expired role assignments", "count", n)
	}
	return n, nil
}

func (s *GrantService) publishRolePerm(ctx context.Context, orgID, roleID, action string) {
	s.bus.Publish(ctx, bus.Event{
		Type:     bus.EventRolePermissionChanged,
		TenantID: orgID,
		EntityID: roleID,
		Action:   action,
	})
}

func (s *GrantService) publishUserRole(ctx context.Context, orgID string, user *models.User, action string) {
	s.bus.Publish(ctx, bus.Event{
		Type:       bus.EventUserRoleChanged,
		TenantID:   orgID,
		Principals: user.PrincipalKeys(),
		EntityID:   user.ID,
		Action:     action,
	})
}

func (s *GrantService) recordGrant(orgID, action, entityID string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  orgID,
		EventType: models.AuditEventGrantMutation,
		Action:    action,
	}
	rt := "grant"
	entry.ResourceType = &rt
	entry.ResourceID = &entityID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
