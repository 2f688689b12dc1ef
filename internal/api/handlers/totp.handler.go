package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/api/middleware"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// TOTPHandler manages step-up enrollment for the calling user. Enrollment
// is self-service; the secret and provisioning URL appear once in the setup
// response.
type TOTPHandler struct {
	totp   *services.TOTPService
	logger logger.Logger
}

func NewTOTPHandler(totp *services.TOTPService, log logger.Logger) *TOTPHandler {
	return &TOTPHandler{totp: totp, logger: log}
}

// interactiveUser requires a bearer-authenticated caller; API keys have no
// enrollment.
func interactiveUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserID)
	if userID == "" {
		abortWithError(c, models.E(models.ErrPreconditionFailed,
			"step-up enrollment requires an interactive user credential"))
		return "", false
	}
	return userID, true
}

func (h *TOTPHandler) Setup(c *gin.Context) {
	userID, ok := interactiveUser(c)
	if !ok {
		return
	}

	enrollment, err := h.totp.Setup(c.Request.Context(), tenantFrom(c), userID, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": enrollment})
}

type totpVerifyRequest struct {
	Code string `json:"code"`
}

func (h *TOTPHandler) Verify(c *gin.Context) {
	userID, ok := interactiveUser(c)
	if !ok {
		return
	}
	var req totpVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.totp.Verify(c.Request.Context(), tenantFrom(c), userID, req.Code); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *TOTPHandler) Disable(c *gin.Context) {
	userID, ok := interactiveUser(c)
	if !ok {
		return
	}

	if err := h.totp.Disable(c.Request.Context(), tenantFrom(c), userID, metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
