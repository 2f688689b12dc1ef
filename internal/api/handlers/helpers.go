package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/api/middleware"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/internal/services"
)

// metaFrom assembles the audit trail context for a mutation from what the
// gate stored plus the transport.
func metaFrom(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{
		ActorSubject: c.GetString(middleware.CtxActorSubject),
		ActorEmail:   c.GetString(middleware.CtxActorEmail),
		IP:           c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	}
}

func tenantFrom(c *gin.Context) string {
	return c.GetString(middleware.CtxTenantID)
}

// abortWithError hands the typed error to the error middleware.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// bindJSON decodes the request body, converting gin's binding failure into
// the platform's validation kind so the envelope stays uniform.
func bindJSON(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		abortWithError(c, models.Wrap(models.ErrValidationFailed, "malformed request body", err))
		return false
	}
	return true
}

// listOptions reads limit/offset/includeDeleted query parameters.
func listOptions(c *gin.Context) repo.ListOptions {
	return repo.ListOptions{
		Limit:          queryInt(c, "limit", 0),
		Offset:         queryInt(c, "offset", 0),
		IncludeDeleted: c.Query("includeDeleted") == "true",
	}
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
