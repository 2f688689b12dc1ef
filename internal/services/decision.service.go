package services

import (
	"context"
	"time"

	"github.com/platformbuilds/warden-core/internal/cache"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/internal/policy"
	"github.com/platformbuilds/warden-core/internal/tracing"
	"github.com/platformbuilds/warden-core/pkg/logger"
	"go.opentelemetry.io/otel/trace"
)

// MaxBatchSize bounds one batch check; a batch spends a single rate-limit
// token regardless of size.
const MaxBatchSize = 100

// RequestMeta carries the caller context the decision itself does not need
// but the audit record does.
type RequestMeta struct {
	ActorSubject string
	ActorEmail   string
	IP           string
	UserAgent    string
}

// DecisionService is the decision-path orchestrator: fingerprint, two-tier
// cache, RBAC evaluation, optional policy engine composition, metrics, and
// the async audit record. Evaluation failures surface as error decisions,
// never transport errors.
type DecisionService struct {
	evaluator *Evaluator
	cache     *cache.DecisionCache
	engine    policy.Engine
	audit     *AuditService
	tracer    *tracing.DecisionTracer
	logger    logger.Logger
}

func NewDecisionService(evaluator *Evaluator, decisionCache *cache.DecisionCache,
	engine policy.Engine, audit *AuditService, log logger.Logger) *DecisionService {
	return &DecisionService{
		evaluator: evaluator,
		cache:     decisionCache,
		engine:    engine,
		audit:     audit,
		logger:    log,
	}
}

// EnableTracing attaches per-check spans; called once at startup when
// tracing is configured.
func (s *DecisionService) EnableTracing(tracer *tracing.DecisionTracer) {
	s.tracer = tracer
}

// Check answers one authorization question.
func (s *DecisionService) Check(ctx context.Context, req *models.DecisionRequest, meta RequestMeta) *models.Decision {
	start := time.Now()

	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.StartCheckSpan(ctx, req.Tenant, req.Action, req.Resource.Type)
	}

	if fieldErrs := models.ValidateDecisionRequest(req); len(fieldErrs) > 0 {
		d := &models.Decision{
			Decision: models.DecisionError,
			Reason:   models.ValidationError(fieldErrs).Message,
		}
		s.finish(req, d, meta, start)
		if span != nil {
			s.tracer.RecordDecision(span, string(d.Decision), "", time.Since(start))
			span.End()
		}
		return d
	}

	decision, layer, err := s.cache.GetOrCompute(ctx, cache.Fingerprint(req), func(ctx context.Context) (*models.Decision, error) {
		return s.evaluate(ctx, req), nil
	})
	if err != nil {
		// GetOrCompute only errors when evaluate does, and evaluate never
		// does; kept for interface completeness.
		decision = &models.Decision{Decision: models.DecisionError, Reason: "evaluation failed"}
	}
	if layer != "" {
		// Served from cache: reuse the stored record but report this
		// request's own timing below.
		decision = &models.Decision{
			Decision:                decision.Decision,
			Reason:                  decision.Reason,
			ContributingRoles:       decision.ContributingRoles,
			ContributingPermissions: decision.ContributingPermissions,
		}
	}

	s.finish(req, decision, meta, start)
	if span != nil {
		s.tracer.RecordDecision(span, string(decision.Decision), layer, time.Since(start))
		span.End()
	}
	return decision
}

// CheckBatch answers up to MaxBatchSize questions in input order.
func (s *DecisionService) CheckBatch(ctx context.Context, batch *models.BatchDecisionRequest, meta RequestMeta) ([]*models.Decision, error) {
	if len(batch.Requests) == 0 {
		return nil, models.E(models.ErrValidationFailed, "batch carries no requests")
	}
	if len(batch.Requests) > MaxBatchSize {
		return nil, models.Ef(models.ErrValidationFailed, "batch exceeds %d requests", MaxBatchSize)
	}
	out := make([]*models.Decision, len(batch.Requests))
	for i := range batch.Requests {
		out[i] = s.Check(ctx, &batch.Requests[i], meta)
	}
	return out, nil
}

// evaluate runs RBAC and, when enabled, composes the policy engine verdict
// with deny-wins. Engine failures degrade to the RBAC result.
func (s *DecisionService) evaluate(ctx context.Context, req *models.DecisionRequest) *models.Decision {
	rbac, err := s.evaluator.Evaluate(ctx, req)
	if err != nil {
		s.logger.Error("Decision evaluation failed", "tenant", req.Tenant, "error", err)
		return &models.Decision{Decision: models.DecisionError, Reason: "authorization store unavailable"}
	}

	if !s.engine.Enabled() {
		return rbac
	}

	result, err := s.engine.Evaluate(ctx, map[string]interface{}{
		"tenant":    req.Tenant,
		"principal": map[string]interface{}{"id": req.Principal.ID, "type": req.Principal.Type, "attrs": req.Principal.Attrs},
		"action":    req.Action,
		"resource":  map[string]interface{}{"type": req.Resource.Type, "id": req.Resource.ID, "attrs": req.Resource.Attrs},
		"context":   req.Context,
		"rbac": map[string]interface{}{
			"decision": string(rbac.Decision),
			"roles":    rbac.ContributingRoles,
		},
	})
	if err != nil {
		s.logger.Warn("Policy engine unavailable; serving RBAC-only decision",
			"tenant", req.Tenant, "error", err)
		rbac.Degraded = true
		return rbac
	}

	if result.Deny {
		reason := result.Reason
		if reason == "" {
			reason = "policy denied"
		}
		return &models.Decision{
			Decision:                models.DecisionDeny,
			Reason:                  reason,
			ContributingRoles:       rbac.ContributingRoles,
			ContributingPermissions: rbac.ContributingPermissions,
		}
	}
	// The engine can only add denials on top of RBAC; an engine allow does
	// not override an RBAC deny.
	return rbac
}

// finish stamps timing, records metrics, and queues the audit entry.
func (s *DecisionService) finish(req *models.DecisionRequest, d *models.Decision, meta RequestMeta, start time.Time) {
	elapsed := time.Since(start)
	d.EvaluationTimeMs = float64(elapsed.Microseconds()) / 1000.0

	monitoring.RecordDecision(string(d.Decision), elapsed)

	decision := string(d.Decision)
	entry := &models.AuditLog{
		TenantID:     req.Tenant,
		EventType:    models.AuditEventDecision,
		Action:       req.Action,
		ResourceType: &req.Resource.Type,
		Decision:     &decision,
		Reason:       &d.Reason,
		RequestData: map[string]interface{}{
			"principal": req.Principal.ID,
			"action":    req.Action,
			"resource":  map[string]interface{}{"type": req.Resource.Type, "id": req.Resource.ID},
		},
	}
	if req.Resource.ID != "" {
		id := req.Resource.ID
		entry.ResourceID = &id
	}
	if meta.ActorSubject != "" {
		entry.Actor = &meta.ActorSubject
	}
	if meta.ActorEmail != "" {
		entry.ActorEmail = &meta.ActorEmail
	}
	if meta.IP != "" {
		entry.IP = &meta.IP
	}
	if meta.UserAgent != "" {
		entry.UserAgent = &meta.UserAgent
	}
	s.audit.Record(entry)
}

// CacheStats exposes the two-tier counters for the admin surface.
func (s *DecisionService) CacheStats(ctx context.Context) cache.CacheStats {
	return s.cache.Stats(ctx)
}

// InvalidateTenant purges every cached decision of a tenant.
func (s *DecisionService) InvalidateTenant(ctx context.Context, tenantID string) (int, int64) {
	return s.cache.InvalidatePrefix(ctx, cache.TenantPrefix(tenantID), tenantID)
}
