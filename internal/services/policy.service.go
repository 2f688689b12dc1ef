package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// PolicyService runs the policy lifecycle: draft heads, immutable content
// versions, validation, and publication. Only a validated version can
// activate; activation purges the tenant's cached decisions through the
// policy event.
type PolicyService struct {
	store     repo.Store
	policies  repo.PolicyRepo
	validator *PolicyValidator
	bus       *bus.Bus
	audit     *AuditService
	logger    logger.Logger
	now       func() time.Time
}

func NewPolicyService(store repo.Store, policies repo.PolicyRepo, validator *PolicyValidator,
	b *bus.Bus, audit *AuditService, log logger.Logger) *PolicyService {
	return &PolicyService{
		store:     store,
		policies:  policies,
		validator: validator,
		bus:       b,
		audit:     audit,
		logger:    log,
		now:       time.Now,
	}
}

func (s *PolicyService) Create(ctx context.Context, orgID, name, displayName string, policyType models.PolicyType, meta RequestMeta) (*models.Policy, error) {
	if errs := models.ValidateOrganizationName(name); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}
	if !policyType.Valid() {
		return nil, models.Ef(models.ErrValidationFailed, "unknown policy type %q", policyType)
	}

	now := s.now()
	p := &models.Policy{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		Name:        name,
		DisplayName: displayName,
		Type:        policyType,
		Status:      models.PolicyDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}

	s.recordMutation(orgID, "create", p.ID, meta)
	return p, nil
}

func (s *PolicyService) Get(ctx context.Context, orgID, id string) (*models.Policy, error) {
	return s.policies.GetByID(ctx, orgID, id)
}

func (s *PolicyService) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.Policy, error) {
	return s.policies.List(ctx, orgID, opts)
}

func (s *PolicyService) ListVersions(ctx context.Context, orgID, policyID string) ([]*models.PolicyVersion, error) {
	if _, err := s.policies.GetByID(ctx, orgID, policyID); err != nil {
		return nil, err
	}
	return s.policies.ListVersions(ctx, policyID)
}

func (s *PolicyService) GetVersion(ctx context.Context, orgID, policyID string, version int) (*models.PolicyVersion, error) {
	if _, err := s.policies.GetByID(ctx, orgID, policyID); err != nil {
		return nil, err
	}
	return s.policies.GetVersion(ctx, policyID, version)
}

// CreateVersion snapshots new content as version max+1 and validates it
// inline. Content identical to an earlier version is surfaced through
// DuplicateOf but still stored: version numbers stay dense and auditable.
func (s *PolicyService) CreateVersion(ctx context.Context, orgID, policyID, content string, meta RequestMeta) (*models.PolicyVersion, error) {
	p, err := s.policies.GetByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PolicyArchived || p.DeletedAt != nil {
		return nil, models.E(models.ErrPreconditionFailed, "policy is archived")
	}

	sum := sha256.Sum256([]byte(content))
	checksum := hex.EncodeToString(sum[:])

	status, issues := s.validator.Validate(ctx, p.Type, content)

	var created *models.PolicyVersion
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		max, err := s.policies.MaxVersion(ctx, policyID)
		if err != nil {
			return err
		}
		version := &models.PolicyVersion{
			ID:               uuid.NewString(),
			PolicyID:         policyID,
			Version:          max + 1,
			Content:          content,
			Checksum:         checksum,
			ValidationStatus: status,
			ValidationErrors: issues,
			CreatedAt:        s.now(),
		}
		prior, err := s.policies.FindByChecksum(ctx, policyID, checksum)
		if err != nil {
			return err
		}
		if prior != nil {
			dup := prior.Version
			version.DuplicateOf = &dup
		}
		if err := s.policies.CreateVersion(ctx, version); err != nil {
			return err
		}
		created = version
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordMutation(orgID, "version:create", policyID, meta)
	return created, nil
}

// Publish activates a validated version: the head moves to active with
// CurrentVersion pointing at it, and every cached decision of the tenant is
// invalidated.
func (s *PolicyService) Publish(ctx context.Context, orgID, policyID string, version int, meta RequestMeta) (*models.Policy, error) {
	p, err := s.policies.GetByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PolicyArchived || p.DeletedAt != nil {
		return nil, models.E(models.ErrPreconditionFailed, "policy is archived")
	}

	v, err := s.policies.GetVersion(ctx, policyID, version)
	if err != nil {
		return nil, err
	}
	if v.ValidationStatus != models.ValidationValid {
		return nil, models.Ef(models.ErrPreconditionFailed,
			"version %d is %s; only valid versions can be published", version, v.ValidationStatus)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.policies.MarkPublished(ctx, v.ID, s.now()); err != nil {
			return err
		}
		p.Status = models.PolicyActive
		p.CurrentVersion = version
		return s.policies.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Policy published", "orgId", orgID, "policyId", policyID, "version", version)
	s.publish(ctx, orgID, policyID, "publish")
	s.recordMutation(orgID, "publish", policyID, meta)
	return p, nil
}

// Archive retires an active policy head: the status flips to archived and
// the decision path stops consulting it immediately via the tenant purge.
// The row, its versions, and its audit trail all stay. Only active policies
// archive; a draft has never served decisions and has nothing to retire.
func (s *PolicyService) Archive(ctx context.Context, orgID, policyID string, meta RequestMeta) (*models.Policy, error) {
	p, err := s.policies.GetByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PolicyActive {
		return nil, models.Ef(models.ErrPreconditionFailed, "only active policies can be archived; policy is %s", p.Status)
	}

	p.Status = models.PolicyArchived
	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, orgID, policyID, "archive")
	s.recordMutation(orgID, "archive", policyID, meta)
	return p, nil
}

// Restore reverses an archive. The head returns to active when it still
// points at a published version, draft otherwise.
func (s *PolicyService) Restore(ctx context.Context, orgID, policyID string, meta RequestMeta) (*models.Policy, error) {
	p, err := s.policies.GetByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PolicyArchived {
		return nil, models.Ef(models.ErrPreconditionFailed, "only archived policies can be restored; policy is %s", p.Status)
	}

	if p.CurrentVersion >= 1 {
		p.Status = models.PolicyActive
	} else {
		p.Status = models.PolicyDraft
	}
	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, orgID, policyID, "restore")
	s.recordMutation(orgID, "restore", policyID, meta)
	return p, nil
}

// Delete soft-deletes the policy head. Unlike archive this removes it from
// every listing; versions and the audit trail remain on disk.
func (s *PolicyService) Delete(ctx context.Context, orgID, policyID string, meta RequestMeta) error {
	if _, err := s.policies.GetByID(ctx, orgID, policyID); err != nil {
		return err
	}
	if err := s.policies.SoftDelete(ctx, policyID); err != nil {
		return err
	}

	s.publish(ctx, orgID, policyID, "delete")
	s.recordMutation(orgID, "delete", policyID, meta)
	return nil
}

// Revalidate re-runs validation on a stored version, refreshing its verdict
// (used after engine upgrades).
func (s *PolicyService) Revalidate(ctx context.Context, orgID, policyID string, version int, meta RequestMeta) (*models.PolicyVersion, error) {
	p, err := s.policies.GetByID(ctx, orgID, policyID)
	if err != nil {
		return nil, err
	}
	v, err := s.policies.GetVersion(ctx, policyID, version)
	if err != nil {
		return nil, err
	}

	status, issues := s.validator.Validate(ctx, p.Type, v.Content)
	if err := s.policies.SetValidation(ctx, v.ID, status, issues); err != nil {
		return nil, err
	}
	v.ValidationStatus = status
	v.ValidationErrors = issues

	s.recordMutation(orgID, "version:revalidate", policyID, meta)
	return v, nil
}

func (s *PolicyService) publish(ctx context.Context, orgID, policyID, action string) {
	s.bus.Publish(ctx, bus.Event{
		Type:     bus.EventPolicyChanged,
		TenantID: orgID,
		EntityID: policyID,
		Action:   action,
	})
}

func (s *PolicyService) recordMutation(orgID, action, policyID string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  orgID,
		EventType: models.AuditEventPolicyMutation,
		Action:    action,
	}
	rt := "policy"
	entry.ResourceType = &rt
	entry.ResourceID = &policyID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
