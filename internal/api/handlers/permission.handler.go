package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// PermissionHandler manages (resource-type, action, effect) triples.
type PermissionHandler struct {
	perms  *services.PermissionService
	logger logger.Logger
}

func NewPermissionHandler(perms *services.PermissionService, log logger.Logger) *PermissionHandler {
	return &PermissionHandler{perms: perms, logger: log}
}

type permissionCreateRequest struct {
	Name         string                 `json:"name"`
	ResourceType string                 `json:"resourceType"`
	Action       string                 `json:"action"`
	Effect       string                 `json:"effect"`
	Condition    map[string]interface{} `json:"condition,omitempty"`
}

func (h *PermissionHandler) Create(c *gin.Context) {
	var req permissionCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	effect := models.EffectAllow
	if req.Effect != "" {
		parsed, err := models.ParseEffect(req.Effect)
		if err != nil {
			abortWithError(c, models.Wrap(models.ErrValidationFailed, "invalid effect", err))
			return
		}
		effect = parsed
	}

	perm, err := h.perms.Create(c.Request.Context(), &models.Permission{
		OrgID:        tenantFrom(c),
		Name:         req.Name,
		ResourceType: req.ResourceType,
		Action:       req.Action,
		Effect:       effect,
		Condition:    req.Condition,
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": perm})
}

func (h *PermissionHandler) Get(c *gin.Context) {
	perm, err := h.perms.Get(c.Request.Context(), tenantFrom(c), c.Param("permissionId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": perm})
}

func (h *PermissionHandler) List(c *gin.Context) {
	perms, err := h.perms.List(c.Request.Context(), tenantFrom(c), listOptions(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": perms})
}

func (h *PermissionHandler) Delete(c *gin.Context) {
	if err := h.perms.Delete(c.Request.Context(), tenantFrom(c), c.Param("permissionId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
