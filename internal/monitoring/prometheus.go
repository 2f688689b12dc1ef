// Package monitoring provides the Prometheus metrics surface for WARDEN-CORE.
//
// Usage:
//
//  1. Mount the /metrics endpoint in your main function:
//     router := gin.New()
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Add the HTTP metrics middleware:
//     router.Use(monitoring.HTTPMetricsMiddleware())
//
//  3. Record authorization metrics in the decision path:
//     monitoring.RecordDecision("allow", duration)
//     monitoring.RecordCacheHit("l1")
//
// Decision metrics:
//   - authz_requests_total / authz_requests_allowed / authz_requests_denied
//   - authz_decisions{decision}
//   - authz_evaluation_duration_seconds
//
// Cache metrics:
//   - authz_cache_hits{layer} / authz_cache_misses{layer}
//
// Operational counters:
//   - authz_audit_dropped_total
//   - authz_policy_engine_errors_total
//   - authz_rate_limited_total
package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_core_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code", "tenant_id"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_core_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "tenant_id"},
	)

	// Authorization decision metrics
	authzRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_requests_total",
			Help: "Total number of authorization requests",
		},
	)

	authzRequestsAllowed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_requests_allowed",
			Help: "Authorization requests that resulted in allow",
		},
	)

	authzRequestsDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_requests_denied",
			Help: "Authorization requests that resulted in deny",
		},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions",
			Help: "Authorization decisions by outcome",
		},
		[]string{"decision"},
	)

	authzEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authz_evaluation_duration_seconds",
			Help:    "End-to-end decision evaluation duration in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Decision cache metrics, labeled by tier
	authzCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_cache_hits",
			Help: "Decision cache hits by layer",
		},
		[]string{"layer"},
	)

	authzCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_cache_misses",
			Help: "Decision cache misses by layer",
		},
		[]string{"layer"},
	)

	// Operational counters
	auditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_audit_dropped_total",
			Help: "Audit records dropped because the queue was saturated or storage failed twice",
		},
	)

	policyEngineErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_policy_engine_errors_total",
			Help: "Policy engine transport failures that degraded a decision to RBAC-only",
		},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_rate_limited_total",
			Help: "Requests rejected by the per-credential rate limiter",
		},
	)

	busEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authz_bus_events_dropped_total",
			Help: "Mutation bus events dropped by saturated async subscribers",
		},
	)

	// Database operation metrics
	dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_core_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"},
	)

	dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_core_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "table"},
	)

	// Authentication metrics
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_core_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"}, // method: bearer, api_key; result: success, failure
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_core_active_connections",
			Help: "Number of active connections",
		},
	)
)

// SetupPrometheusMetrics registers the metric vectors and mounts /metrics.
func SetupPrometheusMetrics(router gin.IRoutes) {
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "warden_core_build_info",
		Help: "Build information for WARDEN-CORE",
		ConstLabels: prometheus.Labels{
			"version":   "v1.0.0",
			"component": "warden-core",
		},
	}, func() float64 { return 1 }))

	// Registrations are idempotent across test routers; ignore duplicates.
	_ = prometheus.Register(httpRequestsTotal)
	_ = prometheus.Register(httpRequestDuration)
	_ = prometheus.Register(authzRequestsTotal)
	_ = prometheus.Register(authzRequestsAllowed)
	_ = prometheus.Register(authzRequestsDenied)
	_ = prometheus.Register(authzDecisions)
	_ = prometheus.Register(authzEvaluationDuration)
	_ = prometheus.Register(authzCacheHits)
	_ = prometheus.Register(authzCacheMisses)
	_ = prometheus.Register(auditDroppedTotal)
	_ = prometheus.Register(policyEngineErrorsTotal)
	_ = prometheus.Register(rateLimitedTotal)
	_ = prometheus.Register(busEventsDroppedTotal)
	_ = prometheus.Register(dbOperationsTotal)
	_ = prometheus.Register(dbOperationDuration)
	_ = prometheus.Register(authAttemptsTotal)
	_ = prometheus.Register(activeConnections)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware collects HTTP request metrics.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		endpoint := normalizeEndpoint(c.FullPath(), c.Request.URL.Path)

		tenantID := c.GetString("tenant_id")
		if tenantID == "" {
			tenantID = "unknown"
		}

		activeConnections.Inc()
		defer activeConnections.Dec()

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, tenantID).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint, tenantID).Observe(duration)
	}
}

// RecordDecision records one authorization decision and its latency.
func RecordDecision(decision string, duration time.Duration) {
	authzRequestsTotal.Inc()
	authzDecisions.WithLabelValues(decision).Inc()
	authzEvaluationDuration.Observe(duration.Seconds())
	switch decision {
	case "allow":
		authzRequestsAllowed.Inc()
	case "deny":
		authzRequestsDenied.Inc()
	}
}

// RecordCacheHit records a decision cache hit for a tier ("l1" or "l2").
func RecordCacheHit(layer string) {
	authzCacheHits.WithLabelValues(layer).Inc()
}

// RecordCacheMiss records a decision cache miss for a tier.
func RecordCacheMiss(layer string) {
	authzCacheMisses.WithLabelValues(layer).Inc()
}

// RecordAuditDropped counts an audit record lost to saturation or storage
// failure after retry.
func RecordAuditDropped() {
	auditDroppedTotal.Inc()
}

// RecordPolicyEngineError counts a degraded decision caused by the external
// policy engine.
func RecordPolicyEngineError() {
	policyEngineErrorsTotal.Inc()
}

// RecordRateLimited counts a request rejected at the boundary.
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}

// RecordBusEventDropped counts an event an async subscriber could not accept.
func RecordBusEventDropped() {
	busEventsDroppedTotal.Inc()
}

// RecordDBOperation records database operation metrics.
func RecordDBOperation(operation, table string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	dbOperationsTotal.WithLabelValues(operation, table, status).Inc()
	dbOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordAuthAttempt records authentication attempt metrics.
func RecordAuthAttempt(method, result string) {
	authAttemptsTotal.WithLabelValues(method, result).Inc()
}

// normalizeEndpoint prefers the gin route template and falls back to
// replacing id-shaped path segments so cardinality stays bounded.
func normalizeEndpoint(routePath, rawPath string) string {
	if routePath != "" {
		return routePath
	}
	parts := strings.Split(rawPath, "/")
	for i, part := range parts {
		if looksLikeID(part) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func looksLikeID(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r == '-') {
			return false
		}
	}
	return true
}
