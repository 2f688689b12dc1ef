package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Provisioner creates or links user rows for bearer principals on first
// sight (just-in-time provisioning). A subject already on file wins; an
// email match adopts the subject; otherwise a fresh active user is created
// with no role assignments.
type Provisioner struct {
	users  repo.UserRepo
	logger logger.Logger
	now    func() time.Time
}

func NewProvisioner(users repo.UserRepo, log logger.Logger) *Provisioner {
	return &Provisioner{users: users, logger: log, now: time.Now}
}

// Resolve maps an authenticated bearer principal to a user row in its
// tenant, provisioning one when needed.
func (p *Provisioner) Resolve(ctx context.Context, principal *Principal) (*models.User, error) {
	user, err := p.users.GetBySubject(ctx, principal.Subject)
	if err == nil {
		p.touch(ctx, user)
		return user, nil
	}
	if !models.IsKind(err, models.ErrNotFound) {
		return nil, err
	}

	if principal.Email != "" {
		user, err = p.users.GetByEmail(ctx, principal.TenantID, principal.Email)
		if err == nil {
			// Known user, first bearer login: adopt the subject.
			user.BearerSubject = &principal.Subject
			if err := p.users.Update(ctx, user); err != nil {
				return nil, err
			}
			p.logger.Info("Linked bearer subject to existing user",
				"tenant", principal.TenantID, "userId", user.ID)
			p.touch(ctx, user)
			return user, nil
		}
		if !models.IsKind(err, models.ErrNotFound) {
			return nil, err
		}
	}

	now := p.now()
	user = &models.User{
		ID:            uuid.NewString(),
		OrgID:         principal.TenantID,
		Email:         principal.Email,
		BearerSubject: &principal.Subject,
		Status:        models.UserActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.users.Create(ctx, user); err != nil {
		// A concurrent first login may have created the row; re-read.
		if models.IsKind(err, models.ErrConflict) {
			winner, err := p.users.GetBySubject(ctx, principal.Subject)
			if err != nil {
				return nil, err
			}
			p.touch(ctx, winner)
			return winner, nil
		}
		return nil, err
	}
	p.logger.Info("Provisioned user just-in-time",
		"tenant", principal.TenantID, "userId", user.ID)
	return user, nil
}

// touch records when the identity provider last vouched for the user. A
// failed touch never blocks login.
func (p *Provisioner) touch(ctx context.Context, user *models.User) {
	if err := p.users.TouchLastSync(ctx, user.ID, p.now()); err != nil {
		p.logger.Warn("Could not update last-sync timestamp", "userId", user.ID, "error", err)
	}
}
