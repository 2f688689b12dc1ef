package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
)

// StepUp gates destructive admin operations behind a fresh TOTP code when
// step-up is enabled. The code travels in X-TOTP-Code; machine callers
// (API keys) have no enrollment and are rejected from step-up routes while
// the feature is on.
func StepUp(totp *services.TOTPService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !totp.Enabled() {
			c.Next()
			return
		}

		userID := c.GetString(CtxUserID)
		if userID == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"status": "error",
				"error":  "step-up verification requires an interactive user credential",
			})
			c.Abort()
			return
		}

		code := c.GetHeader("X-TOTP-Code")
		if code == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "step-up code required; send it in X-TOTP-Code",
			})
			c.Abort()
			return
		}

		err := totp.Verify(c.Request.Context(), c.GetString(CtxTenantID), userID, code)
		if err != nil {
			c.JSON(models.HTTPStatus(models.KindOf(err)), gin.H{
				"status": "error",
				"error":  errorMessage(err),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
