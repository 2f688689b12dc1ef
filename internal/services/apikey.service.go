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

// APIKeyService mints and revokes managed machine credentials. The secret
// leaves the service exactly once, in the create response; only its bcrypt
// hash is stored.
type APIKeyService struct {
	keys   repo.APIKeyRepo
	audit  *AuditService
	logger logger.Logger
	now    func() time.Time
}

func NewAPIKeyService(keys repo.APIKeyRepo, audit *AuditService, log logger.Logger) *APIKeyService {
	return &APIKeyService{keys: keys, audit: audit, logger: log, now: time.Now}
}

func (s *APIKeyService) Create(ctx context.Context, orgID string, req *models.APIKeyCreateRequest, meta RequestMeta) (*models.APIKeyCreateResponse, error) {
	if req.Name == "" {
		return nil, models.E(models.ErrValidationFailed, "name is required")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, models.E(models.ErrValidationFailed, "expiresAt must be in the future")
	}

	keyID, secret, token, err := models.NewAPIKeyToken()
	if err != nil {
		return nil, models.Wrap(models.ErrInternal, "mint api key", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.Wrap(models.ErrInternal, "hash api key secret", err)
	}

	key := &models.APIKey{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Name:       req.Name,
		KeyID:      keyID,
		SecretHash: string(hash),
		Status:     models.APIKeyActive,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  s.now(),
	}
	if meta.ActorSubject != "" {
		key.CreatedBy = &meta.ActorSubject
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("API key created", "orgId", orgID, "keyId", keyID, "name", req.Name)
	s.record(orgID, "create", key.ID, meta)
	return &models.APIKeyCreateResponse{
		APIKey:  key,
		Token:   token,
		Warning: "store this token now; it cannot be retrieved again",
	}, nil
}

func (s *APIKeyService) List(ctx context.Context, orgID string) ([]*models.APIKey, error) {
	return s.keys.ListByOrg(ctx, orgID)
}

// Revoke disables a key. Cached verifications age out within the
// verification TTL; new requests fail immediately.
func (s *APIKeyService) Revoke(ctx context.Context, orgID, id string, meta RequestMeta) error {
	if err := s.keys.Revoke(ctx, orgID, id, s.now()); err != nil {
		return err
	}
	s.record(orgID, "revoke", id, meta)
	return nil
}

func (s *APIKeyService) record(orgID, action, keyID string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  orgID,
		EventType: models.AuditEventAPIKeyMutation,
		Action:    action,
	}
	rt := "apikey"
	entry.ResourceType = &rt
	entry.ResourceID = &keyID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
