package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// DecisionHandler serves the authorization hot path. Semantic failures
// below the transport (validation, store outages, engine outages) come back
// as HTTP 200 with decision "error" so callers apply their local fallback
// instead of retrying; only malformed JSON and rate limiting reject the
// request itself.
type DecisionHandler struct {
	decisions *services.DecisionService
	logger    logger.Logger
}

func NewDecisionHandler(decisions *services.DecisionService, log logger.Logger) *DecisionHandler {
	return &DecisionHandler{decisions: decisions, logger: log}
}

// Check handles POST /api/v1/authz/check.
func (h *DecisionHandler) Check(c *gin.Context) {
	// Decoded directly: field-level validation belongs to the decision
	// pipeline, which answers with decision "error" rather than a 4xx.
	var req models.DecisionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		abortWithError(c, models.Wrap(models.ErrValidationFailed, "malformed request body", err))
		return
	}

	// The body's tenant is advisory at best; the gate's tenant is the one
	// the credential proved. Evaluation never crosses it.
	if tenant := tenantFrom(c); tenant != "" {
		req.Tenant = tenant
	}

	decision := h.decisions.Check(c.Request.Context(), &req, metaFrom(c))
	c.JSON(http.StatusOK, decision)
}

// CheckBatch handles POST /api/v1/authz/check/batch. Results come back in
// input order; the whole batch spent one rate-limit token on the way in.
func (h *DecisionHandler) CheckBatch(c *gin.Context) {
	var batch models.BatchDecisionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&batch); err != nil {
		abortWithError(c, models.Wrap(models.ErrValidationFailed, "malformed request body", err))
		return
	}

	if tenant := tenantFrom(c); tenant != "" {
		for i := range batch.Requests {
			batch.Requests[i].Tenant = tenant
		}
	}

	results, err := h.decisions.CheckBatch(c.Request.Context(), &batch, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
