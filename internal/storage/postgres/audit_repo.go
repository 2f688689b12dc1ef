package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/internal/utils/lucene"
)

// AuditRepo implements repo.AuditRepo against the monthly range-partitioned
// audit_logs table. Rows are append-only; retention drops whole partitions.
type AuditRepo struct {
	store *Store
}

func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

const auditColumns = `id, tenant_id, ts, event_type, actor, actor_email, resource_type,
	resource_id, action, decision, reason, request_data, response_data, ip, user_agent`

func scanAuditLog(row interface{ Scan(...any) error }) (*models.AuditLog, error) {
	var a models.AuditLog
	err := row.Scan(&a.ID, &a.TenantID, &a.Timestamp, &a.EventType, &a.Actor, &a.ActorEmail,
		&a.ResourceType, &a.ResourceID, &a.Action, &a.Decision, &a.Reason,
		&a.RequestData, &a.ResponseData, &a.IP, &a.UserAgent)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	start := time.Now()
	_, err := r.store.q(ctx).Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, ts, event_type, actor, actor_email,
			resource_type, resource_id, action, decision, reason, request_data,
			response_data, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID, entry.TenantID, entry.Timestamp, entry.EventType, entry.Actor, entry.ActorEmail,
		entry.ResourceType, entry.ResourceID, entry.Action, entry.Decision, entry.Reason,
		entry.RequestData, entry.ResponseData, entry.IP, entry.UserAgent)
	return mapError("insert", "audit_logs", start, err)
}

// buildPredicates assembles WHERE clauses shared by Query and Count. The
// Search expression is translated to SQL over the whitelisted columns.
func buildPredicates(q repo.AuditQuery) (string, []any, error) {
	clauses := []string{"tenant_id = $1", "ts >= $2", "ts < $3"}
	args := []any{q.TenantID, q.From, q.To}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.EventType != "" {
		add("event_type = $%d", q.EventType)
	}
	if q.Actor != "" {
		add("actor = $%d", q.Actor)
	}
	if q.ResourceType != "" {
		add("resource_type = $%d", q.ResourceType)
	}
	if q.ResourceID != "" {
		add("resource_id = $%d", q.ResourceID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if q.Decision != "" {
		add("decision = $%d", q.Decision)
	}
	if q.IP != "" {
		add("ip = $%d", q.IP)
	}
	if q.Search != "" {
		clause, searchArgs, err := lucene.TranslateToSQL(q.Search, len(args)+1)
		if err != nil {
			return "", nil, models.Wrap(models.ErrValidationFailed, "invalid search expression", err)
		}
		clauses = append(clauses, clause)
		args = append(args, searchArgs...)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (r *AuditRepo) Query(ctx context.Context, q repo.AuditQuery) ([]*models.AuditLog, error) {
	where, args, err := buildPredicates(q)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	args = append(args, clampLimit(q.Limit), q.Offset)
	sql := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE %s ORDER BY ts DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)-1, len(args))

	rows, err := r.store.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("select", "audit_logs", start, err)
	}
	defer rows.Close()

	var out []*models.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, mapError("select", "audit_logs", start, err)
		}
		out = append(out, a)
	}
	return out, mapError("select", "audit_logs", start, rows.Err())
}

func (r *AuditRepo) Count(ctx context.Context, q repo.AuditQuery) (int64, error) {
	where, args, err := buildPredicates(q)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	var count int64
	err = r.store.q(ctx).QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM audit_logs WHERE %s`, where), args...).Scan(&count)
	if err != nil {
		return 0, mapError("select", "audit_logs", start, err)
	}
	mapError("select", "audit_logs", start, nil)
	return count, nil
}

// partitionName derives the audit_logs_YYYYMM child table name for a month.
func partitionName(month time.Time) string {
	return fmt.Sprintf("audit_logs_%s", month.Format("200601"))
}

// monthStart truncates to the first instant of the month, UTC.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (r *AuditRepo) EnsurePartitions(ctx context.Context, monthsAhead int) error {
	if monthsAhead < 0 {
		monthsAhead = 0
	}
	start := time.Now()
	month := monthStart(time.Now())
	for i := 0; i <= monthsAhead; i++ {
		from := month.AddDate(0, i, 0)
		to := from.AddDate(0, 1, 0)
		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s PARTITION OF audit_logs
			FOR VALUES FROM ('%s') TO ('%s')`,
			partitionName(from), from.Format("2006-01-02"), to.Format("2006-01-02"))
		if _, err := r.store.q(ctx).Exec(ctx, sql); err != nil {
			return mapError("ddl", "audit_logs", start, err)
		}
	}
	return mapError("ddl", "audit_logs", start, nil)
}

func (r *AuditRepo) ListPartitions(ctx context.Context) ([]repo.PartitionInfo, error) {
	start := time.Now()
	rows, err := r.store.q(ctx).Query(ctx, `
		SELECT c.relname, pg_total_relation_size(c.oid)
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = 'audit_logs'
		ORDER BY c.relname`)
	if err != nil {
		return nil, mapError("select", "audit_logs", start, err)
	}
	defer rows.Close()

	var out []repo.PartitionInfo
	for rows.Next() {
		var info repo.PartitionInfo
		if err := rows.Scan(&info.Name, &info.Bytes); err != nil {
			return nil, mapError("select", "audit_logs", start, err)
		}
		if from, ok := parsePartitionMonth(info.Name); ok {
			info.From = from
			info.To = from.AddDate(0, 1, 0)
		}
		out = append(out, info)
	}
	return out, mapError("select", "audit_logs", start, rows.Err())
}

// DropExpiredPartitions drops partitions whose whole month lies beyond the
// retention horizon. A month containing any row inside the horizon survives.
func (r *AuditRepo) DropExpiredPartitions(ctx context.Context, retentionDays int) ([]string, error) {
	if retentionDays <= 0 {
		return nil, models.E(models.ErrValidationFailed, "retention days must be positive")
	}
	partitions, err := r.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	start := time.Now()
	var dropped []string
	for _, p := range partitions {
		if p.To.IsZero() || !p.To.Before(cutoff) {
			continue
		}
		if _, err := r.store.q(ctx).Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, p.Name)); err != nil {
			return dropped, mapError("ddl", "audit_logs", start, err)
		}
		r.store.logger.Info("Dropped expired audit partition", "partition", p.Name, "upperBound", p.To)
		dropped = append(dropped, p.Name)
	}
	return dropped, mapError("ddl", "audit_logs", start, nil)
}

func parsePartitionMonth(name string) (time.Time, bool) {
	const prefix = "audit_logs_"
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, false
	}
	t, err := time.Parse("200601", strings.TrimPrefix(name, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
