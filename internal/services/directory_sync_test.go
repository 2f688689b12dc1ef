package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/auth"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

type stubDirectory struct {
	entries []*auth.DirectoryEntry
	err     error
}

func (s *stubDirectory) Search() ([]*auth.DirectoryEntry, error) { return s.entries, s.err }
func (s *stubDirectory) HealthCheck() error                      { return s.err }

func newSyncFixture(t *testing.T, dir *stubDirectory) (*DirectorySyncService, *mockUserRepo) {
	t.Helper()
	users := &mockUserRepo{}
	cfg := config.DirectorySyncConfig{Enabled: true, OrgID: "org-1", Interval: time.Hour}
	svc := NewDirectorySyncService(cfg, dir, users, logger.NewNop())
	return svc, users
}

func TestDirectorySyncCreatesNewUsers(t *testing.T) {
	dir := &stubDirectory{entries: []*auth.DirectoryEntry{
		{DN: "uid=jdoe,dc=corp", Username: "jdoe", Email: "jdoe@corp.example", ExternalID: "uuid-jdoe"},
	}}
	svc, users := newSyncFixture(t, dir)

	users.On("GetByPrincipal", mock.Anything, "org-1", "uuid-jdoe").Return(nil, notFound())
	users.On("GetByEmail", mock.Anything, "org-1", "jdoe@corp.example").Return(nil, notFound())

	var created *models.User
	users.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.User)
	}).Return(nil)

	res, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Failed)

	require.NotNil(t, created)
	assert.Equal(t, "org-1", created.OrgID)
	assert.Equal(t, models.UserActive, created.Status)
	require.NotNil(t, created.ExternalID)
	assert.Equal(t, "uuid-jdoe", *created.ExternalID)
	require.NotNil(t, created.LastSyncAt)
}

func TestDirectorySyncAdoptsEmailMatches(t *testing.T) {
	dir := &stubDirectory{entries: []*auth.DirectoryEntry{
		{DN: "uid=jdoe,dc=corp", Username: "jdoe", Email: "jdoe@corp.example", ExternalID: "uuid-jdoe"},
	}}
	svc, users := newSyncFixture(t, dir)

	existing := &models.User{ID: "u-1", OrgID: "org-1", Email: "jdoe@corp.example", Status: models.UserActive}
	users.On("GetByPrincipal", mock.Anything, "org-1", "uuid-jdoe").Return(nil, notFound())
	users.On("GetByEmail", mock.Anything, "org-1", "jdoe@corp.example").Return(existing, nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)
	users.On("TouchLastSync", mock.Anything, "u-1", mock.Anything).Return(nil)

	res, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	require.NotNil(t, existing.ExternalID)
	assert.Equal(t, "uuid-jdoe", *existing.ExternalID, "email match adopts the directory id")
}

func TestDirectorySyncUnchangedUserOnlyTouches(t *testing.T) {
	ext := "uuid-jdoe"
	uname := "jdoe"
	dir := &stubDirectory{entries: []*auth.DirectoryEntry{
		{DN: "uid=jdoe,dc=corp", Username: "jdoe", Email: "jdoe@corp.example", ExternalID: "uuid-jdoe"},
	}}
	svc, users := newSyncFixture(t, dir)

	existing := &models.User{
		ID: "u-1", OrgID: "org-1", Email: "jdoe@corp.example",
		Username: &uname, ExternalID: &ext, Status: models.UserActive,
	}
	users.On("GetByPrincipal", mock.Anything, "org-1", "uuid-jdoe").Return(existing, nil)
	users.On("TouchLastSync", mock.Anything, "u-1", mock.Anything).Return(nil)

	_, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	users.AssertNotCalled(t, "Update")
}

func TestDirectorySyncCountsPerEntryFailures(t *testing.T) {
	dir := &stubDirectory{entries: []*auth.DirectoryEntry{
		{DN: "uid=a,dc=corp", Username: "a", Email: "a@corp.example", ExternalID: "uuid-a"},
		{DN: "uid=b,dc=corp", Username: "b", Email: "b@corp.example", ExternalID: "uuid-b"},
	}}
	svc, users := newSyncFixture(t, dir)

	users.On("GetByPrincipal", mock.Anything, "org-1", "uuid-a").
		Return(nil, models.Wrap(models.ErrStorageError, "query", errors.New("down")))
	users.On("GetByPrincipal", mock.Anything, "org-1", "uuid-b").Return(nil, notFound())
	users.On("GetByEmail", mock.Anything, "org-1", "b@corp.example").Return(nil, notFound())
	users.On("Create", mock.Anything, mock.Anything).Return(nil)

	res, err := svc.SyncOnce(context.Background())
	require.NoError(t, err, "one bad entry never fails the pass")
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Created)
}

func TestDirectorySyncSearchFailureAborts(t *testing.T) {
	svc, users := newSyncFixture(t, &stubDirectory{err: errors.New("connection refused")})

	_, err := svc.SyncOnce(context.Background())
	require.Error(t, err)
	users.AssertNotCalled(t, "Create")
}
