package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// PolicyHandler runs the policy lifecycle surface: draft heads, immutable
// content versions, validation verdicts, publication, archive/restore,
// and soft deletion.
type PolicyHandler struct {
	policies *services.PolicyService
	logger   logger.Logger
}

func NewPolicyHandler(policies *services.PolicyService, log logger.Logger) *PolicyHandler {
	return &PolicyHandler{policies: policies, logger: log}
}

type policyCreateRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Type        string `json:"type"`
}

func (h *PolicyHandler) Create(c *gin.Context) {
	var req policyCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := h.policies.Create(c.Request.Context(), tenantFrom(c),
		req.Name, req.DisplayName, models.PolicyType(req.Type), metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": policy})
}

func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.policies.Get(c.Request.Context(), tenantFrom(c), c.Param("policyId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": policy})
}

func (h *PolicyHandler) List(c *gin.Context) {
	policies, err := h.policies.List(c.Request.Context(), tenantFrom(c), listOptions(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": policies})
}

type policyVersionRequest struct {
	Content string `json:"content"`
}

// CreateVersion handles POST /policies/:policyId/versions. The version is
// stored with its validation verdict even when invalid; only publication
// requires a valid one.
func (h *PolicyHandler) CreateVersion(c *gin.Context) {
	var req policyVersionRequest
	if !bindJSON(c, &req) {
		return
	}

	version, err := h.policies.CreateVersion(c.Request.Context(), tenantFrom(c),
		c.Param("policyId"), req.Content, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": version})
}

func (h *PolicyHandler) ListVersions(c *gin.Context) {
	versions, err := h.policies.ListVersions(c.Request.Context(), tenantFrom(c), c.Param("policyId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": versions})
}

func (h *PolicyHandler) GetVersion(c *gin.Context) {
	version, ok := h.versionParam(c)
	if !ok {
		return
	}
	v, err := h.policies.GetVersion(c.Request.Context(), tenantFrom(c), c.Param("policyId"), version)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": v})
}

type policyPublishRequest struct {
	Version int `json:"version"`
}

func (h *PolicyHandler) Publish(c *gin.Context) {
	var req policyPublishRequest
	if !bindJSON(c, &req) {
		return
	}

	policy, err := h.policies.Publish(c.Request.Context(), tenantFrom(c),
		c.Param("policyId"), req.Version, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": policy})
}

func (h *PolicyHandler) Archive(c *gin.Context) {
	policy, err := h.policies.Archive(c.Request.Context(), tenantFrom(c), c.Param("policyId"), metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": policy})
}

func (h *PolicyHandler) Delete(c *gin.Context) {
	if err := h.policies.Delete(c.Request.Context(), tenantFrom(c), c.Param("policyId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *PolicyHandler) Restore(c *gin.Context) {
	policy, err := h.policies.Restore(c.Request.Context(), tenantFrom(c), c.Param("policyId"), metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": policy})
}

func (h *PolicyHandler) Revalidate(c *gin.Context) {
	version, ok := h.versionParam(c)
	if !ok {
		return
	}
	v, err := h.policies.Revalidate(c.Request.Context(), tenantFrom(c), c.Param("policyId"), version, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": v})
}

func (h *PolicyHandler) versionParam(c *gin.Context) (int, bool) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		abortWithError(c, models.Ef(models.ErrValidationFailed, "invalid version %q", c.Param("version")))
		return 0, false
	}
	return version, true
}
