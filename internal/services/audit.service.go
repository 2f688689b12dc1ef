package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// AuditService records audit entries off the request path: a bounded queue
// feeds a worker pool writing to the partitioned store. A full queue drops
// the entry and counts it rather than blocking a decision.
type AuditService struct {
	store   repo.AuditRepo
	queue   chan *models.AuditLog
	workers int
	logger  logger.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu   sync.Mutex
	tail map[chan *models.AuditLog]string // subscriber -> tenant filter
}

func NewAuditService(store repo.AuditRepo, queueSize, workers int, log logger.Logger) *AuditService {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if workers <= 0 {
		workers = 4
	}
	return &AuditService{
		store:   store,
		queue:   make(chan *models.AuditLog, queueSize),
		workers: workers,
		logger:  log,
		tail:    map[chan *models.AuditLog]string{},
	}
}

// Start launches the worker pool.
func (s *AuditService) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("Audit recorder started", "workers", s.workers, "queueSize", cap(s.queue))
}

func (s *AuditService) worker() {
	defer s.wg.Done()
	for entry := range s.queue {
		s.persist(entry)
	}
}

// persist writes one entry, retrying once before giving up.
func (s *AuditService) persist(entry *models.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.store.Insert(ctx, entry)
	if err != nil {
		time.Sleep(100 * time.Millisecond)
		err = s.store.Insert(ctx, entry)
	}
	if err != nil {
		monitoring.RecordAuditDropped()
		s.logger.Error("Audit entry lost after retry",
			"tenant", entry.TenantID, "eventType", entry.EventType, "error", err)
	}
}

// Record enqueues one entry without blocking. Missing id/timestamp fields
// are stamped here so callers stay terse.
func (s *AuditService) Record(entry *models.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.broadcast(entry)

	select {
	case s.queue <- entry:
	default:
		monitoring.RecordAuditDropped()
		s.logger.Warn("Audit queue full; entry dropped",
			"tenant", entry.TenantID, "eventType", entry.EventType)
	}
}

// Shutdown stops intake and drains the queue, bounded by ctx.
func (s *AuditService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.queue) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Audit recorder drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit drain interrupted with %d entries queued: %w", len(s.queue), ctx.Err())
	}
}

// Query returns a page of entries plus the total matching count.
func (s *AuditService) Query(ctx context.Context, q repo.AuditQuery) ([]*models.AuditLog, int64, error) {
	if q.TenantID == "" {
		return nil, 0, models.E(models.ErrValidationFailed, "tenant is required")
	}
	if q.To.IsZero() {
		q.To = time.Now().UTC()
	}
	if q.From.IsZero() {
		q.From = q.To.AddDate(0, 0, -7)
	}
	if !q.From.Before(q.To) {
		return nil, 0, models.E(models.ErrValidationFailed, "time range is empty")
	}

	entries, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ExportCSV streams the matching entries as CSV. Pagination is applied in
// chunks so exports larger than one page work without caller cursors.
func (s *AuditService) ExportCSV(ctx context.Context, q repo.AuditQuery, w io.Writer) error {
	const chunk = 1000
	q.Limit = chunk
	q.Offset = 0

	cw := csv.NewWriter(w)
	header := []string{"timestamp", "eventType", "actor", "actorEmail", "resourceType",
		"resourceId", "action", "decision", "reason", "ip"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for {
		entries, _, err := s.Query(ctx, q)
		if err != nil {
			return err
		}
		for _, e := range entries {
			record := []string{
				e.Timestamp.UTC().Format(time.RFC3339),
				e.EventType,
				deref(e.Actor), deref(e.ActorEmail),
				deref(e.ResourceType), deref(e.ResourceID),
				e.Action,
				deref(e.Decision), deref(e.Reason),
				deref(e.IP),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		if len(entries) < chunk {
			break
		}
		q.Offset += chunk
	}
	cw.Flush()
	return cw.Error()
}

// RunRetention enforces the retention horizon by dropping whole expired
// partitions and making sure upcoming months exist.
func (s *AuditService) RunRetention(ctx context.Context, retentionDays int) ([]string, error) {
	if err := s.store.EnsurePartitions(ctx, 1); err != nil {
		return nil, err
	}
	return s.store.DropExpiredPartitions(ctx, retentionDays)
}

func (s *AuditService) ListPartitions(ctx context.Context) ([]repo.PartitionInfo, error) {
	return s.store.ListPartitions(ctx)
}

// Subscribe attaches a live tail consumer filtered to one tenant. The
// returned cancel detaches it; slow consumers miss entries instead of
// slowing the recorder.
func (s *AuditService) Subscribe(tenantID string, buffer int) (<-chan *models.AuditLog, func()) {
	ch := make(chan *models.AuditLog, buffer)
	s.mu.Lock()
	s.tail[ch] = tenantID
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.tail[ch]; ok {
			delete(s.tail, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *AuditService) broadcast(entry *models.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, tenant := range s.tail {
		if tenant != "" && tenant != entry.TenantID {
			continue
		}
		select {
		case ch <- entry:
		default:
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
