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

// OrganizationService manages the tenant lifecycle. Suspending or deleting
// an organization takes effect on the decision path immediately through the
// tenant-wide cache purge its event triggers.
type OrganizationService struct {
	orgs   repo.OrganizationRepo
	bus    *bus.Bus
	audit  *AuditService
	logger logger.Logger
	now    func() time.Time
}

func NewOrganizationService(orgs repo.OrganizationRepo, b *bus.Bus, audit *AuditService, log logger.Logger) *OrganizationService {
	return &OrganizationService{orgs: orgs, bus: b, audit: audit, logger: log, now: time.Now}
}

func (s *OrganizationService) Create(ctx context.Context, name string, settings map[string]interface{}, meta RequestMeta) (*models.Organization, error) {
	if errs := models.ValidateOrganizationName(name); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}

	now := s.now()
	org := &models.Organization{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    models.OrgActive,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}

	s.logger.Info("Organization created", "orgId", org.ID, "name", org.Name)
	s.recordMutation(org.ID, "create", org.ID, meta)
	return org, nil
}

func (s *OrganizationService) Get(ctx context.Context, id string) (*models.Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

func (s *OrganizationService) List(ctx context.Context, opts repo.ListOptions) ([]*models.Organization, error) {
	return s.orgs.List(ctx, opts)
}

func (s *OrganizationService) Update(ctx context.Context, id string, name *string, settings map[string]interface{}, meta RequestMeta) (*models.Organization, error) {
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.DeletedAt != nil {
		return nil, models.E(models.ErrPreconditionFailed, "organization is deleted")
	}
	if name != nil {
		if errs := models.ValidateOrganizationName(*name); len(errs) > 0 {
			return nil, models.ValidationError(errs)
		}
		org.Name = *name
	}
	if settings != nil {
		org.Settings = settings
	}
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, err
	}

	s.publish(ctx, id, "update")
	s.recordMutation(id, "update", id, meta)
	return org, nil
}

// SetStatus moves the organization between active and suspended. Deleted is
// reachable only through Delete.
func (s *OrganizationService) SetStatus(ctx context.Context, id string, status models.OrgStatus, meta RequestMeta) error {
	if status != models.OrgActive && status != models.OrgSuspended {
		return models.Ef(models.ErrValidationFailed, "cannot set organization status to %q", status)
	}
	if err := s.orgs.SetStatus(ctx, id, status); err != nil {
		return err
	}

	s.publish(ctx, id, "status")
	s.recordMutation(id, "status:"+string(status), id, meta)
	return nil
}

// Delete soft-deletes the tenant. Decisions for it deny from the next
// request on; its audit history stays queryable until retention ages it out.
func (s *OrganizationService) Delete(ctx context.Context, id string, meta RequestMeta) error {
	if err := s.orgs.SoftDelete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, id, "delete")
	s.recordMutation(id, "delete", id, meta)
	return nil
}

func (s *OrganizationService) publish(ctx context.Context, orgID, action string) {
	s.bus.Publish(ctx, bus.Event{
		Type:     bus.EventOrgChanged,
		TenantID: orgID,
		EntityID: orgID,
		Action:   action,
	})
}

func (s *OrganizationService) recordMutation(tenantID, action, entityID string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  tenantID,
		EventType: models.AuditEventOrgMutation,
		Action:    action,
	}
	rt := "organization"
	entry.ResourceType = &rt
	entry.ResourceID = &entityID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}

// applyMeta copies the request caller context onto an audit entry.
func applyMeta(entry *models.AuditLog, meta RequestMeta) {
	if meta.ActorSubject != "" {
		entry.Actor = &meta.ActorSubject
	}
	if meta.ActorEmail != "" {
		entry.ActorEmail = &meta.ActorEmail
	}
	if meta.IP != "" {
		entry.IP = &meta.IP
	}
	if meta.UserAgent != "" {
		entry.UserAgent = &meta.UserAgent
	}
}
