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

// UserService manages principals inside a tenant. Every mutation publishes a
// user event carrying all the principal's aliases so the cache invalidator
// can purge each of them.
type UserService struct {
	users  repo.UserRepo
	bus    *bus.Bus
	audit  *AuditService
	logger logger.Logger
	now    func() time.Time
}

func NewUserService(users repo.UserRepo, b *bus.Bus, audit *AuditService, log logger.Logger) *UserService {
	return &UserService{users: users, bus: b, audit: audit, logger: log, now: time.Now}
}

func (s *UserService) Create(ctx context.Context, user *models.User, meta RequestMeta) (*models.User, error) {
	if user.Status == "" {
		user.Status = models.UserActive
	}
	if errs := models.ValidateUser(user); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}

	now := s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User created", "orgId", user.OrgID, "userId", user.ID)
	s.recordMutation(user, "create", meta)
	return user, nil
}

func (s *UserService) Get(ctx context.Context, orgID, id string) (*models.User, error) {
	return s.users.GetByID(ctx, orgID, id)
}

func (s *UserService) List(ctx context.Context, orgID string, opts repo.ListOptions) ([]*models.User, error) {
	return s.users.List(ctx, orgID, opts)
}

// Update applies admin edits. Status changes flow to the decision path via
// the invalidation event; an inactive user denies on the next check.
func (s *UserService) Update(ctx context.Context, orgID, id string, apply func(*models.User) error, meta RequestMeta) (*models.User, error) {
	user, err := s.users.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := apply(user); err != nil {
		return nil, err
	}
	if errs := models.ValidateUser(user); len(errs) > 0 {
		return nil, models.ValidationError(errs)
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, user, "update")
	s.recordMutation(user, "update", meta)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, orgID, id string, meta RequestMeta) error {
	user, err := s.users.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, user.ID); err != nil {
		return err
	}

	s.publish(ctx, user, "delete")
	s.recordMutation(user, "delete", meta)
	return nil
}

func (s *UserService) publish(ctx context.Context, user *models.User, action string) {
	s.bus.Publish(ctx, bus.Event{
		Type:       bus.EventUserChanged,
		TenantID:   user.OrgID,
		Principals: user.PrincipalKeys(),
		EntityID:   user.ID,
		Action:     action,
	})
}

func (s *UserService) recordMutation(user *models.User, action string, meta RequestMeta) {
	entry := &models.AuditLog{
		TenantID:  user.OrgID,
		EventType: models.AuditEventUserMutation,
		Action:    action,
	}
	rt := "user"
	entry.ResourceType = &rt
	entry.ResourceID = &user.ID
	applyMeta(entry, meta)
	s.audit.Record(entry)
}
