package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/auth"
	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Context keys set by the gate for downstream middleware and handlers.
const (
	CtxTenantID     = "tenant_id"
	CtxUserID       = "user_id"
	CtxActorSubject = "actor_subject"
	CtxActorEmail   = "actor_email"
	CtxAuthMethod   = "auth_method"
)

// AuthMiddleware is the identity gate: every request past it carries a
// verified principal and a resolved tenant. Two credential shapes are
// accepted - an OIDC bearer token in Authorization, or an API key in
// X-API-Key (a wak_-prefixed token in Authorization also counts as a key,
// for clients that only speak Authorization). Bearer principals are
// provisioned just-in-time into their tenant's user table. Credentials
// bound to a suspended or deleted organization are rejected with 403.
func AuthMiddleware(bearer *auth.TokenVerifier, bearerEnabled bool, apiKeys *auth.APIKeyVerifier,
	provisioner *auth.Provisioner, orgs repo.OrganizationRepo, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isPublicEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		kind, token := extractCredential(c)
		if token == "" {
			unauthorized(c, "authentication required")
			return
		}

		var (
			principal *auth.Principal
			err       error
		)
		switch kind {
		case "apikey":
			principal, err = apiKeys.Verify(c.Request.Context(), token)
		default:
			if !bearerEnabled {
				unauthorized(c, "bearer authentication is not enabled")
				return
			}
			principal, err = bearer.Verify(c.Request.Context(), token)
		}
		if err != nil {
			log.Warn("Authentication rejected",
				"method", kind, "path", c.Request.URL.Path, "client_ip", c.ClientIP(), "error", err)
			unauthorized(c, "invalid credentials")
			return
		}

		// API keys carry their tenant; bearer tokens may rely on the
		// X-Tenant-ID header when the tenant claim is absent.
		tenantID := principal.TenantID
		if tenantID == "" {
			tenantID = c.GetHeader("X-Tenant-ID")
		}
		if tenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"status": "error",
				"error":  "tenant could not be resolved; set the tenant claim or X-Tenant-ID",
			})
			c.Abort()
			return
		}
		principal.TenantID = tenantID

		// The credential may still reference an org that has since been
		// suspended or deleted; such tenants are closed to everyone.
		org, err := orgs.GetByID(c.Request.Context(), tenantID)
		if err != nil {
			if models.IsKind(err, models.ErrNotFound) {
				forbidden(c, "tenant forbidden")
				return
			}
			log.Error("Organization lookup failed", "tenant", tenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "tenant resolution failed"})
			c.Abort()
			return
		}
		if org.Status != models.OrgActive {
			log.Warn("Credential for inactive organization rejected",
				"tenant", tenantID, "org_status", org.Status, "subject", principal.Subject)
			forbidden(c, "tenant forbidden")
			return
		}

		if principal.Method == "bearer" {
			user, err := provisioner.Resolve(c.Request.Context(), principal)
			if err != nil {
				log.Error("JIT provisioning failed",
					"tenant", tenantID, "subject", principal.Subject, "error", err)
				status := models.HTTPStatus(models.KindOf(err))
				c.JSON(status, gin.H{"status": "error", "error": "identity resolution failed"})
				c.Abort()
				return
			}
			if user.Status != models.UserActive {
				unauthorized(c, "user is not active")
				return
			}
			c.Set(CtxUserID, user.ID)
		}

		c.Set(CtxTenantID, tenantID)
		c.Set(CtxActorSubject, principal.Subject)
		c.Set(CtxActorEmail, principal.Email)
		c.Set(CtxAuthMethod, principal.Method)

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": msg})
	c.Abort()
}

func forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"status": "error", "error": msg})
	c.Abort()
}

// extractCredential returns the credential kind ("bearer" or "apikey") and
// the raw token.
func extractCredential(c *gin.Context) (string, string) {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return "apikey", key
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			raw := strings.TrimSpace(parts[1])
			if strings.HasPrefix(raw, models.APIKeyPrefix+"_") {
				return "apikey", raw
			}
			return "bearer", raw
		}
	}

	// WebSocket clients cannot set headers from a browser; allow the tail
	// endpoint to pass the credential as a query parameter.
	if token := c.Query("token"); token != "" {
		if strings.HasPrefix(token, models.APIKeyPrefix+"_") {
			return "apikey", token
		}
		return "bearer", token
	}

	return "", ""
}

// isPublicEndpoint lists the surfaces reachable without credentials.
func isPublicEndpoint(path string) bool {
	publicPaths := []string{
		"/health",
		"/ready",
		"/metrics",
		"/api/openapi.json",
		"/api/openapi.yaml",
		"/swagger/",
	}
	for _, p := range publicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
