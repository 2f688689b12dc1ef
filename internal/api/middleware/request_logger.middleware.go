package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/pkg/logger"
)

// RequestLogger emits one structured line per request, levelled by status.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		tenantID := ""
		subject := ""
		if param.Keys != nil {
			if v, ok := param.Keys[CtxTenantID].(string); ok {
				tenantID = v
			}
			if v, ok := param.Keys[CtxActorSubject].(string); ok {
				subject = v
			}
		}

		fields := []interface{}{
			"method", param.Method,
			"path", param.Path,
			"status", param.StatusCode,
			"latency", param.Latency,
			"client_ip", param.ClientIP,
			"tenant", tenantID,
			"subject", subject,
			"request_id", param.Request.Header.Get("X-Request-ID"),
		}
		if param.ErrorMessage != "" {
			fields = append(fields, "error", param.ErrorMessage)
		}

		switch {
		case param.StatusCode >= 500:
			log.Error("HTTP request", fields...)
		case param.StatusCode >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
		return ""
	})
}
