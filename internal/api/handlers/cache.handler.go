package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// CacheHandler is the decision-cache admin surface.
type CacheHandler struct {
	decisions *services.DecisionService
	logger    logger.Logger
}

func NewCacheHandler(decisions *services.DecisionService, log logger.Logger) *CacheHandler {
	return &CacheHandler{decisions: decisions, logger: log}
}

func (h *CacheHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   h.decisions.CacheStats(c.Request.Context()),
	})
}

type cacheInvalidateRequest struct {
	Tenant string `json:"tenant"`
}

// Invalidate handles POST /admin/cache/invalidate, purging every cached
// decision of one tenant across both tiers. Callers may only purge their
// own tenant.
func (h *CacheHandler) Invalidate(c *gin.Context) {
	var req cacheInvalidateRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Tenant == "" {
		req.Tenant = tenantFrom(c)
	}
	if req.Tenant != tenantFrom(c) {
		abortWithError(c, models.E(models.ErrAuthorizationDenied, "cannot invalidate another tenant's cache"))
		return
	}

	l1, l2 := h.decisions.InvalidateTenant(c.Request.Context(), req.Tenant)
	h.logger.Info("Tenant cache invalidated by operator", "tenant", req.Tenant, "l1", l1, "l2", l2)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"tenant": req.Tenant, "l1Purged": l1, "l2Purged": l2},
	})
}
