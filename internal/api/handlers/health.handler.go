package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/policy"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/internal/version"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// HealthHandler serves liveness and readiness. Liveness says the process is
// up; readiness aggregates the subsystems. Only the store is load-bearing:
// a dead L2 or policy engine degrades decisions but does not stop them.
type HealthHandler struct {
	store     repo.Store
	l2        valkey.ValkeyCluster
	engine    policy.Engine
	directory *services.DirectorySyncService // nil when sync is disabled
	logger    logger.Logger
}

func NewHealthHandler(store repo.Store, l2 valkey.ValkeyCluster, engine policy.Engine,
	directory *services.DirectorySyncService, log logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, l2: l2, engine: engine, directory: directory, logger: log}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "warden-core",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := gin.H{}
	ready := true
	degraded := false

	if err := h.store.HealthCheck(ctx); err != nil {
		components["database"] = "unhealthy: " + err.Error()
		ready = false
	} else {
		components["database"] = "healthy"
	}

	if err := h.l2.HealthCheck(ctx); err != nil {
		components["cache"] = "degraded: " + err.Error()
		degraded = true
	} else {
		components["cache"] = "healthy"
	}

	if h.engine.Enabled() {
		if err := h.engine.HealthCheck(ctx); err != nil {
			components["policyEngine"] = "degraded: " + err.Error()
			degraded = true
		} else {
			components["policyEngine"] = "healthy"
		}
	} else {
		components["policyEngine"] = "disabled"
	}

	if h.directory != nil {
		if h.directory.Healthy() {
			components["directorySync"] = "healthy"
		} else {
			components["directorySync"] = "degraded"
			degraded = true
		}
	}

	status := "ready"
	code := http.StatusOK
	switch {
	case !ready:
		status = "not ready"
		code = http.StatusServiceUnavailable
	case degraded:
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
