package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// APIKeyHandler manages machine credentials. The full token appears exactly
// once, in the create response; afterwards only the bcrypt hash exists.
type APIKeyHandler struct {
	keys   *services.APIKeyService
	logger logger.Logger
}

func NewAPIKeyHandler(keys *services.APIKeyService, log logger.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, logger: log}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req models.APIKeyCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.keys.Create(c.Request.Context(), tenantFrom(c), &req, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": resp})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.keys.List(c.Request.Context(), tenantFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": keys})
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	if err := h.keys.Revoke(c.Request.Context(), tenantFrom(c), c.Param("keyId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
