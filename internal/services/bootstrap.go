package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// BootstrapService seeds a fresh deployment: the default organization, the
// system role pair, the platform permission catalog, and one admin API key.
// Every step is idempotent so multiple instances can race at startup.
type BootstrapService struct {
	orgs      repo.OrganizationRepo
	roles     repo.RoleRepo
	perms     repo.PermissionRepo
	rolePerms repo.RolePermissionRepo
	keys      repo.APIKeyRepo
	logger    logger.Logger
	now       func() time.Time
}

func NewBootstrapService(orgs repo.OrganizationRepo, roles repo.RoleRepo, perms repo.PermissionRepo,
	rolePerms repo.RolePermissionRepo, keys repo.APIKeyRepo, log logger.Logger) *BootstrapService {
	return &BootstrapService{
		orgs:      orgs,
		roles:     roles,
		perms:     perms,
		rolePerms: rolePerms,
		keys:      keys,
		logger:    log,
		now:       time.Now,
	}
}

// BootstrapResult reports what the run created. AdminToken is set only when
// this run minted the key; it is never recoverable afterwards.
type BootstrapResult struct {
	OrgID      string
	AdminToken string
	Created    bool
}

const (
	defaultOrgName  = "default"
	adminRoleName   = "org-admin"
	viewerRoleName  = "viewer"
	bootstrapKeyTag = "bootstrap-admin"
)

// seedResources is the platform's own catalog: what an org-admin can touch
// through the administrative API.
var seedResources = []string{"organization", "user", "role", "permission", "grant", "policy", "apikey", "audit"}

// Run seeds everything and returns the admin credential when one was minted.
func (s *BootstrapService) Run(ctx context.Context) (*BootstrapResult, error) {
	org, created, err := s.ensureOrg(ctx)
	if err != nil {
		return nil, err
	}

	adminRole, err := s.ensureRole(ctx, org.ID, adminRoleName, "Organization Administrator", nil)
	if err != nil {
		return nil, err
	}
	if _, err := s.ensureRole(ctx, org.ID, viewerRoleName, "Read-Only Viewer", nil); err != nil {
		return nil, err
	}

	if err := s.ensurePermissions(ctx, org.ID, adminRole.ID); err != nil {
		return nil, err
	}

	res := &BootstrapResult{OrgID: org.ID, Created: created}
	token, err := s.ensureAdminKey(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	res.AdminToken = token

	s.logger.Info("Bootstrap completed", "orgId", org.ID, "orgCreated", created, "keyMinted", token != "")
	return res, nil
}

func (s *BootstrapService) ensureOrg(ctx context.Context) (*models.Organization, bool, error) {
	org, err := s.orgs.GetByName(ctx, defaultOrgName)
	if err == nil {
		return org, false, nil
	}
	if !models.IsKind(err, models.ErrNotFound) {
		return nil, false, err
	}

	now := s.now()
	org = &models.Organization{
		ID:        uuid.NewString(),
		Name:      defaultOrgName,
		Status:    models.OrgActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		if models.IsKind(err, models.ErrConflict) {
			org, err = s.orgs.GetByName(ctx, defaultOrgName)
			return org, false, err
		}
		return nil, false, err
	}
	s.logger.Info("Created default organization", "orgId", org.ID)
	return org, true, nil
}

func (s *BootstrapService) ensureRole(ctx context.Context, orgID, name, displayName string, parentID *string) (*models.Role, error) {
	role, err := s.roles.GetByName(ctx, orgID, name)
	if err == nil {
		return role, nil
	}
	if !models.IsKind(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	role = &models.Role{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Name:        name,
		DisplayName: displayName,
		ParentID:    parentID,
		IsSystem:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if models.IsKind(err, models.ErrConflict) {
			return s.roles.GetByName(ctx, orgID, name)
		}
		return nil, err
	}
	s.logger.Info("Created system role", "orgId", orgID, "role", name)
	return role, nil
}

func (s *BootstrapService) ensurePermissions(ctx context.Context, orgID, adminRoleID string) error {
	for _, resource := range seedResources {
		for _, action := range []string{"read", "write"} {
			name := resource + ":" + action
			perm, err := s.perms.GetByName(ctx, orgID, name)
			if err != nil {
				if !models.IsKind(err, models.ErrNotFound) {
					return err
				}
				now := s.now()
				perm = &models.Permission{
					ID:           uuid.NewString(),
					OrgID:        orgID,
					Name:         name,
					ResourceType: resource,
					Action:       action,
					Effect:       models.EffectAllow,
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := s.perms.Create(ctx, perm); err != nil {
					if !models.IsKind(err, models.ErrConflict) {
						return err
					}
					perm, err = s.perms.GetByName(ctx, orgID, name)
					if err != nil {
						return err
					}
				}
			}

			err = s.rolePerms.Attach(ctx, &models.RolePermission{
				ID:           uuid.NewString(),
				RoleID:       adminRoleID,
				PermissionID: perm.ID,
				CreatedAt:    s.now(),
			})
			if err != nil && !models.IsKind(err, models.ErrConflict) {
				return err
			}
		}
	}
	return nil
}

// ensureAdminKey mints the bootstrap credential exactly once across the
// fleet: a key named bootstrap-admin that already exists means another
// instance won the race.
func (s *BootstrapService) ensureAdminKey(ctx context.Context, orgID string) (string, error) {
	existing, err := s.keys.ListByOrg(ctx, orgID)
	if err != nil {
		return "", err
	}
	for _, k := range existing {
		if k.Name == bootstrapKeyTag {
			return "", nil
		}
	}

	keyID, secret, token, err := models.NewAPIKeyToken()
	if err != nil {
		return "", models.Wrap(models.ErrInternal, "mint bootstrap key", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", models.Wrap(models.ErrInternal, "hash bootstrap key", err)
	}
	key := &models.APIKey{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Name:       bootstrapKeyTag,
		KeyID:      keyID,
		SecretHash: string(hash),
		Status:     models.APIKeyActive,
		CreatedAt:  s.now(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		if models.IsKind(err, models.ErrConflict) {
			return "", nil
		}
		return "", err
	}
	s.logger.Warn("Bootstrap admin API key minted; store the token now", "orgId", orgID, "keyId", keyID)
	return token, nil
}
