package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// OrganizationHandler manages the tenant boundary itself; unlike the other
// admin resources these routes are not scoped to the caller's tenant.
type OrganizationHandler struct {
	orgs   *services.OrganizationService
	logger logger.Logger
}

func NewOrganizationHandler(orgs *services.OrganizationService, log logger.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs, logger: log}
}

type orgCreateRequest struct {
	Name     string                 `json:"name"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

type orgUpdateRequest struct {
	Name     *string                `json:"name,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req orgCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	org, err := h.orgs.Create(c.Request.Context(), req.Name, req.Settings, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": org})
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	org, err := h.orgs.Get(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": org})
}

func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.orgs.List(c.Request.Context(), listOptions(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": orgs})
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	var req orgUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	org, err := h.orgs.Update(c.Request.Context(), c.Param("orgId"), req.Name, req.Settings, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": org})
}

func (h *OrganizationHandler) Suspend(c *gin.Context) {
	h.setStatus(c, models.OrgSuspended)
}

func (h *OrganizationHandler) Restore(c *gin.Context) {
	h.setStatus(c, models.OrgActive)
}

func (h *OrganizationHandler) setStatus(c *gin.Context, status models.OrgStatus) {
	if err := h.orgs.SetStatus(c.Request.Context(), c.Param("orgId"), status, metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *OrganizationHandler) Delete(c *gin.Context) {
	if err := h.orgs.Delete(c.Request.Context(), c.Param("orgId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
