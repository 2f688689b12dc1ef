package services

import (
	"context"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// TOTPService enrolls users for the step-up code required on destructive
// admin operations. Secrets live on the user row and never leave the service
// after enrollment.
type TOTPService struct {
	cfg    config.TOTPConfig
	users  repo.UserRepo
	audit  *AuditService
	logger logger.Logger
	now    func() time.Time
}

func NewTOTPService(cfg config.TOTPConfig, users repo.UserRepo, audit *AuditService, log logger.Logger) *TOTPService {
	return &TOTPService{cfg: cfg, users: users, audit: audit, logger: log, now: time.Now}
}

func (s *TOTPService) Enabled() bool { return s.cfg.Enabled }

// TOTPEnrollment is returned once at setup; the secret and URL are not
// retrievable afterwards.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// Setup generates a fresh secret for the user and returns the otpauth
// provisioning URL. Re-running setup rotates the secret.
func (s *TOTPService) Setup(ctx context.Context, orgID, userID string, meta RequestMeta) (*TOTPEnrollment, error) {
	user, err := s.users.GetByID(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	issuer := s.cfg.Issuer
	if issuer == "" {
		issuer = "warden"
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, models.Wrap(models.ErrInternal, "generate totp secret", err)
	}

	user.TOTPSecret = key.Secret()
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("TOTP enrolled", "orgId", orgID, "userId", userID)
	s.recordAdmin(orgID, "totp:setup", userID, meta)
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify checks a step-up code against the user's enrolled secret.
func (s *TOTPService) Verify(ctx context.Context, orgID, userID, code string) error {
	user, err := s.users.GetByID(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return models.E(models.ErrPreconditionFailed, "user is not enrolled for step-up verification")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return models.E(models.ErrAuthenticationFailed, "step-up code rejected")
	}
	return nil
}

// Disable clears the enrollment.
func (s *TOTPService) Disable(ctx context.Context, orgID, userID string, meta RequestMeta) error {
	user, err := s.users.GetByID(ctx, orgID, userID)
	if err != nil {
		return err
	}
	user.TOTPSecret = ""
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	s.recordAdmin(orgID, "totp:disable", userID, meta)
	return nil
}

func (s *TOTPService) recordAdmin(orgID, action, userID string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  orgID,
		EventType: models.AuditEventAdminAction,
		Action:    action,
	}
	rt := "user"
	entry.ResourceType = &rt
	entry.ResourceID = &userID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
