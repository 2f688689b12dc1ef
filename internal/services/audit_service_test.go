package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func decisionEntry(tenant string) *models.AuditLog {
	d := string(models.DecisionAllow)
	return &models.AuditLog{
		TenantID:  tenant,
		EventType: models.AuditEventDecision,
		Action:    "read",
		Decision:  &d,
	}
}

func TestAuditRecordPersistsThroughWorkers(t *testing.T) {
	store := &mockAuditRepo{}
	persisted := make(chan *models.AuditLog, 1)
	store.On("Insert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted <- args.Get(1).(*models.AuditLog)
	}).Return(nil)

	svc := NewAuditService(store, 16, 2, logger.NewNop())
	svc.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, svc.Shutdown(ctx))
	}()

	svc.Record(decisionEntry("org-1"))

	select {
	case entry := <-persisted:
		assert.Equal(t, "org-1", entry.TenantID)
		assert.NotEmpty(t, entry.ID, "id is stamped at record time")
		assert.False(t, entry.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("entry never persisted")
	}
}

func TestAuditRecordDropsWhenQueueFull(t *testing.T) {
	store := &mockAuditRepo{}
	// Workers never started: the queue only fills.
	svc := NewAuditService(store, 2, 1, logger.NewNop())

	for i := 0; i < 5; i++ {
		svc.Record(decisionEntry("org-1"))
	}
	assert.Equal(t, 2, len(svc.queue), "overflow entries dropped, recorder never blocks")
}

func TestAuditShutdownDrainsQueue(t *testing.T) {
	store := &mockAuditRepo{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	svc := NewAuditService(store, 16, 1, logger.NewNop())
	svc.Start()
	for i := 0; i < 8; i++ {
		svc.Record(decisionEntry("org-1"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
	store.AssertNumberOfCalls(t, "Insert", 8)
}

func TestAuditQueryDefaultsAndValidation(t *testing.T) {
	store := &mockAuditRepo{}
	svc := NewAuditService(store, 16, 1, logger.NewNop())

	_, _, err := svc.Query(context.Background(), repo.AuditQuery{})
	assert.True(t, models.IsKind(err, models.ErrValidationFailed))

	var captured repo.AuditQuery
	store.On("Query", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(repo.AuditQuery)
	}).Return([]*models.AuditLog{}, nil)
	store.On("Count", mock.Anything, mock.Anything).Return(int64(0), nil)

	_, _, err = svc.Query(context.Background(), repo.AuditQuery{TenantID: "org-1"})
	require.NoError(t, err)
	assert.False(t, captured.To.IsZero())
	assert.Equal(t, captured.To.AddDate(0, 0, -7), captured.From, "default window is seven days")

	now := time.Now()
	_, _, err = svc.Query(context.Background(), repo.AuditQuery{TenantID: "org-1", From: now, To: now.Add(-time.Hour)})
	assert.True(t, models.IsKind(err, models.ErrValidationFailed))
}

func TestAuditExportCSVChunksPages(t *testing.T) {
	store := &mockAuditRepo{}
	actor := "alice"
	page := make([]*models.AuditLog, 1000)
	for i := range page {
		e := decisionEntry("org-1")
		e.Timestamp = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		e.Actor = &actor
		page[i] = e
	}
	rest := []*models.AuditLog{decisionEntry("org-1")}

	store.On("Query", mock.Anything, mock.MatchedBy(func(q repo.AuditQuery) bool { return q.Offset == 0 })).
		Return(page, nil).Once()
	store.On("Query", mock.Anything, mock.MatchedBy(func(q repo.AuditQuery) bool { return q.Offset == 1000 })).
		Return(rest, nil).Once()
	store.On("Count", mock.Anything, mock.Anything).Return(int64(1001), nil)

	svc := NewAuditService(store, 16, 1, logger.NewNop())
	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), repo.AuditQuery{TenantID: "org-1"}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1002, "header plus both pages")
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,eventType,actor"))
	assert.Contains(t, lines[1], "alice")
}

func TestAuditRunRetention(t *testing.T) {
	store := &mockAuditRepo{}
	store.On("EnsurePartitions", mock.Anything, 1).Return(nil)
	store.On("DropExpiredPartitions", mock.Anything, 90).Return([]string{"audit_logs_202502"}, nil)

	svc := NewAuditService(store, 16, 1, logger.NewNop())
	dropped, err := svc.RunRetention(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_logs_202502"}, dropped)
	store.AssertExpectations(t)
}

func TestAuditSubscribeFiltersTenant(t *testing.T) {
	store := &mockAuditRepo{}
	svc := NewAuditService(store, 16, 1, logger.NewNop())

	mine, cancelMine := svc.Subscribe("org-1", 4)
	defer cancelMine()
	other, cancelOther := svc.Subscribe("org-2", 4)
	defer cancelOther()

	svc.Record(decisionEntry("org-1"))

	select {
	case entry := <-mine:
		assert.Equal(t, "org-1", entry.TenantID)
	case <-time.After(time.Second):
		t.Fatal("subscriber missed the entry")
	}
	select {
	case <-other:
		t.Fatal("entry leaked across tenants")
	default:
	}
}
