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

// PermissionService manages the (resource-type, action, effect) catalog.
// Permission changes invalidate tenant-wide: any role may reference them.
type PermissionService struct {
	perms  repo.PermissionRepo
	bus    *bus.Bus
	audit  *AuditService
	logger logger.Logger
	now    func() time.Time
}

func NewPermissionService(perms repo.PermissionRepo, b *bus.Bus, audit *AuditService, log logger.Logger) *PermissionService {
	return &PermissionService{perms: perms, bus: b, audit: audit, logger: log, now: time.Now}
}

func (s *PermissionService) Create(ctx context.Context, perm *models.Permission, meta RequestMeta) (*models.Permission, error) {
	if perm.Effect == "" {
		perm.Effect = models.EffectAllow
	}
	if errs := models.ValidatePermission(perm); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}

	now := s.now()
	perm.ID = uuid.NewString()
	perm.CreatedAt = now
	perm.UpdatedAt = now
	if err := s.perms.Create(ctx, perm); err != nil {
		return nil, err
	}

	s.publishAndRecord(ctx, perm, "create", meta)
	return perm, nil
}

func (s *PermissionService) Get(ctx context.Context, orgID, id string) (*models.Permission, error) {
	return s.perms.GetByID(ctx, orgID, id)
}

func (s *PermissionService) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Permission, error) {
	return s.perms.List(ctx, orgID, opts)
}

func (s *PermissionService) Update(ctx context.Context, orgID, id string, apply func(*models.Permission) error, meta RequestMeta) (*models.Permission, error) {
	perm, err := s.perms.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(perm); err != nil {
		return nil, err
	}
	if errs := models.ValidatePermission(perm); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}
	if err := s.perms.Update(ctx, perm); err != nil {
		return nil, err
	}

	s.publishAndRecord(ctx, perm, "update", meta)
	return perm, nil
}

func (s *PermissionService) Delete(ctx context.Context, orgID, id string, meta RequestMeta) error {
	perm, err := s.perms.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.perms.Delete(ctx, perm.ID); err != nil {
		return err
	}

	s.publishAndRecord(ctx, perm, "delete", meta)
	return nil
}

func (s *PermissionService) publishAndRecord(ctx context.Context, perm *models.Permission, action string, meta RequestMeta) {
	s.bus.Publish(ctx, bus.Event{
		Type:     bus.EventRolePermissionChanged,
		TenantID: perm.OrgID,
		EntityID: perm.ID,
		Action:   action,
	})

	entry := &models.AuditLog{
		TenantID:  perm.OrgID,
		EventType: models.AuditEventPermMutation,
		Action:    action,
	}
	rt := "permission"
	entry.ResourceType = &rt
	entry.ResourceID = &perm.ID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
