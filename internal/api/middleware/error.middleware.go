package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// ErrorHandler converts typed service errors attached via c.Error into the
// standard envelope. The kind to status mapping is total (models.HTTPStatus),
// so handlers never pick status codes themselves.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		kind := models.KindOf(err)
		status := models.HTTPStatus(kind)

		body := gin.H{
			"status": "error",
			"error":  errorMessage(err),
			"kind":   string(kind),
		}
		var ae *models.AppError
		if errors.As(err, &ae) && len(ae.Details) > 0 {
			body["details"] = ae.Details
		}

		fields := []interface{}{
			"status", status,
			"kind", string(kind),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
			"error", err.Error(),
		}
		if tenantID := c.GetString(CtxTenantID); tenantID != "" {
			fields = append(fields, "tenant", tenantID)
		}
		if status >= http.StatusInternalServerError {
			log.Error("Request failed", fields...)
		} else {
			log.Warn("Request rejected", fields...)
		}

		c.JSON(status, body)
	}
}

// errorMessage strips the wrapped cause from the client-facing message;
// internals stay in the logs.
func errorMessage(err error) string {
	var ae *models.AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
