package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// GrantHandler covers both grant edges: permissions attached to roles and
// roles assigned to users (scoped, optionally expiring).
type GrantHandler struct {
	grants *services.GrantService
	logger logger.Logger
}

func NewGrantHandler(grants *services.GrantService, log logger.Logger) *GrantHandler {
	return &GrantHandler{grants: grants, logger: log}
}

// AttachPermission handles POST /roles/:roleId/permissions/:permissionId.
func (h *GrantHandler) AttachPermission(c *gin.Context) {
	rp, err := h.grants.AttachPermission(c.Request.Context(), tenantFrom(c),
		c.Param("roleId"), c.Param("permissionId"), metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": rp})
}

func (h *GrantHandler) DetachPermission(c *gin.Context) {
	err := h.grants.DetachPermission(c.Request.Context(), tenantFrom(c),
		c.Param("roleId"), c.Param("permissionId"), metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *GrantHandler) ListRolePermissions(c *gin.Context) {
	perms, err := h.grants.ListRolePermissions(c.Request.Context(), tenantFrom(c), c.Param("roleId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": perms})
}

type grantRoleRequest struct {
	RoleID       string     `json:"roleId"`
	ResourceType *string    `json:"resourceType,omitempty"`
	ResourceID   *string    `json:"resourceId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// GrantRole handles POST /users/:userId/roles.
func (h *GrantHandler) GrantRole(c *gin.Context) {
	var req grantRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	subject := metaFrom(c).ActorSubject
	grant := &models.UserRole{
		UserID:       c.Param("userId"),
		RoleID:       req.RoleID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		ExpiresAt:    req.ExpiresAt,
	}
	if subject != "" {
		grant.GrantedBy = &subject
	}

	created, err := h.grants.GrantRole(c.Request.Context(), tenantFrom(c), grant, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": created})
}

func (h *GrantHandler) RevokeRole(c *gin.Context) {
	if err := h.grants.RevokeRole(c.Request.Context(), tenantFrom(c), c.Param("grantId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *GrantHandler) ListUserRoles(c *gin.Context) {
	grants, err := h.grants.ListUserRoles(c.Request.Context(), tenantFrom(c), c.Param("userId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": grants})
}

// PurgeExpired handles POST /admin/grants/purge-expired; normally the
// janitor does this on a timer, the route exists for operators.
func (h *GrantHandler) PurgeExpired(c *gin.Context) {
	n, err := h.grants.PurgeExpired(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"purged": n}})
}
