package services

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/auth"
	"github.com/platformbuilds/warden-core/pkg/logger"

	"github.com/google/uuid"
)

// DirectorySource lists users from an external directory. pkg/auth's LDAP
// client is the production implementation.
type DirectorySource interface {
	Search() ([]*auth.DirectoryEntry, error)
	HealthCheck() error
}

// DirectorySyncService periodically upserts directory users into one tenant.
// The directory is authoritative for identity attributes only; role
// assignments and status changes stay with administrators.
type DirectorySyncService struct {
	cfg    config.DirectorySyncConfig
	source DirectorySource
	users  repo.UserRepo
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSync time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewDirectorySyncService(cfg config.DirectorySyncConfig, source DirectorySource, users repo.UserRepo, log logger.Logger) *DirectorySyncService {
	return &DirectorySyncService{
		cfg:    cfg,
		source: source,
		users:  users,
		logger: log,
		now:    time.Now,
	}
}

// Start launches the periodic sync loop. No-op when sync is disabled.
func (s *DirectorySyncService) Start() {
	if !s.cfg.Enabled {
		return
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(interval)
}

func (s *DirectorySyncService) loop(interval time.Duration) {
	defer close(s.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.SyncOnce(context.Background()); err != nil {
				s.logger.Error("Directory sync failed", "orgId", s.cfg.OrgID, "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *DirectorySyncService) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.stopCh = nil
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Seen    int `json:"seen"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// SyncOnce reads the directory and upserts every entry into the configured
// tenant. Entries are matched by external id first, then by email; matches
// adopt the directory's identity attributes. Per-entry failures are logged
// and counted, never fatal for the pass.
func (s *DirectorySyncService) SyncOnce(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	entries, err := s.source.Search()
	if err != nil {
		return nil, models.Wrap(models.ErrInternal, "directory search", err)
	}

	res := &SyncResult{Seen: len(entries)}
	for _, entry := range entries {
		created, err := s.upsert(ctx, entry)
		if err != nil {
			res.Failed++
			s.logger.Error("Directory upsert failed", "dn", entry.DN, "error", err)
			continue
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	s.lastSync = started
	s.logger.Info("Directory sync completed",
		"orgId", s.cfg.OrgID,
		"seen", res.Seen, "created", res.Created, "updated", res.Updated, "failed", res.Failed,
		"tookMs", s.now().Sub(started).Milliseconds())
	return res, nil
}

func (s *DirectorySyncService) upsert(ctx context.Context, entry *auth.DirectoryEntry) (created bool, err error) {
	now := s.now()

	user, err := s.users.GetByPrincipal(ctx, s.cfg.OrgID, entry.ExternalID)
	if err != nil && models.IsKind(err, models.ErrNotFound) && entry.Email != "" {
		user, err = s.users.GetByEmail(ctx, s.cfg.OrgID, entry.Email)
	}
	switch {
	case err == nil:
		changed := false
		if user.ExternalID == nil || *user.ExternalID != entry.ExternalID {
			ext := entry.ExternalID
			user.ExternalID = &ext
			changed = true
		}
		if entry.Email != "" && user.Email != entry.Email {
			user.Email = entry.Email
			changed = true
		}
		if entry.Username != "" && (user.Username == nil || *user.Username != entry.Username) {
			name := entry.Username
			user.Username = &name
			changed = true
		}
		if changed {
			user.UpdatedAt = now
			if err := s.users.Update(ctx, user); err != nil {
				return false, err
			}
		}
		return false, s.users.TouchLastSync(ctx, user.ID, now)

	case models.IsKind(err, models.ErrNotFound):
		ext := entry.ExternalID
		username := entry.Username
		user := &models.User{
			ID:         uuid.NewString(),
			OrgID:      s.cfg.OrgID,
			Email:      entry.Email,
			Username:   &username,
			ExternalID: &ext,
			Status:     models.UserActive,
			LastSyncAt: &now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			// Another instance may have created the user between our lookup
			// and the insert.
			if models.IsKind(err, models.ErrConflict) {
				return false, nil
			}
			return false, err
		}
		return true, nil

	default:
		return false, err
	}
}

// LastSync returns the start time of the last successful pass.
func (s *DirectorySyncService) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// Healthy reports whether the directory is reachable and the bind succeeds.
func (s *DirectorySyncService) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	if err := s.source.HealthCheck(); err != nil {
		s.logger.Warn("Directory health check failed", "error", err)
		return false
	}
	return true
}
