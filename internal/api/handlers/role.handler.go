package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// RoleHandler manages the role hierarchy of the caller's tenant.
type RoleHandler struct {
	roles  *services.RoleService
	logger logger.Logger
}

func NewRoleHandler(roles *services.RoleService, log logger.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, logger: log}
}

type roleCreateRequest struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName,omitempty"`
	ParentID    *string                `json:"parentId,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type roleUpdateRequest struct {
	DisplayName *string                `json:"displayName,omitempty"`
	ParentID    *string                `json:"parentId,omitempty"`
	ClearParent bool                   `json:"clearParent,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (h *RoleHandler) Create(c *gin.Context) {
	var req roleCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roles.Create(c.Request.Context(), &models.Role{
		OrgID:       tenantFrom(c),
		Name:        req.Name,
		DisplayName: req.DisplayName,
		ParentID:    req.ParentID,
		Metadata:    req.Metadata,
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": role})
}

func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.Get(c.Request.Context(), tenantFrom(c), c.Param("roleId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": role})
}

func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context(), tenantFrom(c), listOptions(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": roles})
}

func (h *RoleHandler) Update(c *gin.Context) {
	var req roleUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roles.Update(c.Request.Context(), tenantFrom(c), c.Param("roleId"), func(r *models.Role) error {
		if req.DisplayName != nil {
			r.DisplayName = *req.DisplayName
		}
		if req.ClearParent {
			r.ParentID = nil
		} else if req.ParentID != nil {
			r.ParentID = req.ParentID
		}
		if req.Metadata != nil {
			r.Metadata = req.Metadata
		}
		return nil
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": role})
}

func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), tenantFrom(c), c.Param("roleId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
