package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/ratelimit"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// RateLimiter spends one token of the caller's budget per request. The
// budget is keyed by the authenticated credential - the API key id or
// bearer subject the gate resolved - so one noisy client inside a tenant
// cannot starve its neighbors; the tenant id is the fallback when no
// subject is on the context. It sits on the decision routes only, ahead of
// any evaluation, so a throttled caller costs nothing past this point. One
// batch request spends a single token regardless of how many checks it
// carries.
//
// A failing limiter backend fails open: losing the budget counter must not
// take the decision path down with it.
func RateLimiter(limiter ratelimit.Limiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(CtxActorSubject)
		if key == "" {
			key = c.GetString(CtxTenantID)
		}

		err := limiter.Allow(c.Request.Context(), key)
		if err == nil {
			c.Next()
			return
		}
		if !models.IsKind(err, models.ErrRateLimited) {
			log.Warn("Rate limiter unavailable; admitting request", "key", key, "error", err)
			c.Next()
			return
		}

		setThrottleHeaders(c, err)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"status": "error",
			"error":  "request budget exhausted",
			"kind":   string(models.ErrRateLimited),
		})
		c.Abort()
	}
}

// setThrottleHeaders surfaces the limit and window end the limiter reported
// through its error details.
func setThrottleHeaders(c *gin.Context, err error) {
	retryAfter := int64(1)
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		if limit, ok := appErr.Details["limit"].(int); ok {
			c.Header("X-Rate-Limit-Limit", strconv.Itoa(limit))
		}
		c.Header("X-Rate-Limit-Remaining", "0")
		if reset, ok := appErr.Details["reset"].(int64); ok {
			c.Header("X-Rate-Limit-Reset", strconv.FormatInt(reset, 10))
			if wait := reset - time.Now().Unix(); wait > retryAfter {
				retryAfter = wait
			}
		}
	}
	c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
}
