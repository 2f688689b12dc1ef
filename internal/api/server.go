// Package api assembles the HTTP surface: the decision hot path under
// /api/v1/authz, the tenant-scoped admin resources, and the operator
// endpoints under /admin.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/platformbuilds/warden-core/internal/api/handlers"
	"github.com/platformbuilds/warden-core/internal/api/middleware"
	"github.com/platformbuilds/warden-core/internal/auth"
	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/internal/policy"
	"github.com/platformbuilds/warden-core/internal/ratelimit"
	"github.com/platformbuilds/warden-core/internal/repo"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/internal/tracing"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// Services bundles the domain services the handlers sit on.
type Services struct {
	Decisions     *services.DecisionService
	Orgs          *services.OrganizationService
	Users         *services.UserService
	Roles         *services.RoleService
	Permissions   *services.PermissionService
	Grants        *services.GrantService
	Policies      *services.PolicyService
	APIKeys       *services.APIKeyService
	Audit         *services.AuditService
	TOTP          *services.TOTPService
	DirectorySync *services.DirectorySyncService // nil when sync is disabled
}

type Server struct {
	config      *config.Config
	logger      logger.Logger
	store       repo.Store
	l2          valkey.ValkeyCluster
	engine      policy.Engine
	limiter     ratelimit.Limiter
	bearer      *auth.TokenVerifier
	apiKeys     *auth.APIKeyVerifier
	provisioner *auth.Provisioner
	orgs        repo.OrganizationRepo
	services    Services
	router      *gin.Engine
	httpServer  *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	store repo.Store,
	l2 valkey.ValkeyCluster,
	engine policy.Engine,
	limiter ratelimit.Limiter,
	bearer *auth.TokenVerifier,
	apiKeys *auth.APIKeyVerifier,
	provisioner *auth.Provisioner,
	orgs repo.OrganizationRepo,
	svcs Services,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:      cfg,
		logger:      log,
		store:       store,
		l2:          l2,
		engine:      engine,
		limiter:     limiter,
		bearer:      bearer,
		apiKeys:     apiKeys,
		provisioner: provisioner,
		orgs:        orgs,
		services:    svcs,
		router:      gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(monitoring.HTTPMetricsMiddleware())
	if s.config.Tracing.Enabled {
		s.router.Use(tracing.Middleware(s.config.Tracing.ServiceName))
	}
	s.router.Use(middleware.ErrorHandler(s.logger))

	// The identity gate; every route below except the public set requires a
	// verified credential.
	s.router.Use(middleware.AuthMiddleware(
		s.bearer, s.config.OIDC.Enabled, s.apiKeys, s.provisioner, s.orgs, s.logger))

	// OpenAPI document and Swagger UI.
	s.router.StaticFile("/api/openapi.yaml", "api/openapi.yaml")
	s.router.GET("/api/openapi.json", handlers.GetOpenAPISpec)
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/openapi.yaml")))

	// Prometheus scrape endpoint.
	monitoring.SetupPrometheusMetrics(s.router)
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.store, s.l2, s.engine, s.services.DirectorySync, s.logger)
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	v1 := s.router.Group("/api/v1")

	// Decision hot path. The rate limiter sits only here: one token per
	// request, batch included.
	decisionHandler := handlers.NewDecisionHandler(s.services.Decisions, s.logger)
	authz := v1.Group("/authz")
	authz.Use(middleware.RateLimiter(s.limiter, s.logger))
	authz.POST("/check", decisionHandler.Check)
	authz.POST("/check/batch", decisionHandler.CheckBatch)

	stepUp := middleware.StepUp(s.services.TOTP)

	// Organization management crosses tenant boundaries.
	orgHandler := handlers.NewOrganizationHandler(s.services.Orgs, s.logger)
	v1.POST("/orgs", orgHandler.Create)
	v1.GET("/orgs", orgHandler.List)
	v1.GET("/orgs/:orgId", orgHandler.Get)
	v1.PUT("/orgs/:orgId", orgHandler.Update)
	v1.POST("/orgs/:orgId/suspend", stepUp, orgHandler.Suspend)
	v1.POST("/orgs/:orgId/restore", orgHandler.Restore)
	v1.DELETE("/orgs/:orgId", stepUp, orgHandler.Delete)

	// Everything below is scoped to the caller's tenant by the gate.
	userHandler := handlers.NewUserHandler(s.services.Users, s.logger)
	v1.POST("/users", userHandler.Create)
	v1.GET("/users", userHandler.List)
	v1.GET("/users/:userId", userHandler.Get)
	v1.PUT("/users/:userId", userHandler.Update)
	v1.POST("/users/:userId/deactivate", userHandler.Deactivate)
	v1.DELETE("/users/:userId", stepUp, userHandler.Delete)

	roleHandler := handlers.NewRoleHandler(s.services.Roles, s.logger)
	v1.POST("/roles", roleHandler.Create)
	v1.GET("/roles", roleHandler.List)
	v1.GET("/roles/:roleId", roleHandler.Get)
	v1.PUT("/roles/:roleId", roleHandler.Update)
	v1.DELETE("/roles/:roleId", stepUp, roleHandler.Delete)

	permissionHandler := handlers.NewPermissionHandler(s.services.Permissions, s.logger)
	v1.POST("/permissions", permissionHandler.Create)
	v1.GET("/permissions", permissionHandler.List)
	v1.GET("/permissions/:permissionId", permissionHandler.Get)
	v1.DELETE("/permissions/:permissionId", stepUp, permissionHandler.Delete)

	grantHandler := handlers.NewGrantHandler(s.services.Grants, s.logger)
	v1.GET("/roles/:roleId/permissions", grantHandler.ListRolePermissions)
	v1.POST("/roles/:roleId/permissions/:permissionId", grantHandler.AttachPermission)
	v1.DELETE("/roles/:roleId/permissions/:permissionId", grantHandler.DetachPermission)
	v1.GET("/users/:userId/roles", grantHandler.ListUserRoles)
	v1.POST("/users/:userId/roles", grantHandler.GrantRole)
	v1.DELETE("/grants/:grantId", grantHandler.RevokeRole)

	policyHandler := handlers.NewPolicyHandler(s.services.Policies, s.logger)
	v1.POST("/policies", policyHandler.Create)
	v1.GET("/policies", policyHandler.List)
	v1.GET("/policies/:policyId", policyHandler.Get)
	v1.POST("/policies/:policyId/versions", policyHandler.CreateVersion)
	v1.GET("/policies/:policyId/versions", policyHandler.ListVersions)
	v1.GET("/policies/:policyId/versions/:version", policyHandler.GetVersion)
	v1.POST("/policies/:policyId/versions/:version/revalidate", policyHandler.Revalidate)
	v1.POST("/policies/:policyId/publish", policyHandler.Publish)
	v1.POST("/policies/:policyId/archive", stepUp, policyHandler.Archive)
	v1.DELETE("/policies/:policyId", stepUp, policyHandler.Delete)
	v1.POST("/policies/:policyId/restore", policyHandler.Restore)

	apiKeyHandler := handlers.NewAPIKeyHandler(s.services.APIKeys, s.logger)
	v1.POST("/apikeys", apiKeyHandler.Create)
	v1.GET("/apikeys", apiKeyHandler.List)
	v1.DELETE("/apikeys/:keyId", stepUp, apiKeyHandler.Revoke)

	auditHandler := handlers.NewAuditHandler(s.services.Audit, s.config.Audit.RetentionDays, s.logger)
	v1.GET("/audit/logs", auditHandler.Query)
	v1.GET("/audit/logs/export", auditHandler.Export)
	v1.GET("/audit/logs/tail", auditHandler.Tail)

	// Operator surface.
	cacheHandler := handlers.NewCacheHandler(s.services.Decisions, s.logger)
	totpHandler := handlers.NewTOTPHandler(s.services.TOTP, s.logger)
	admin := s.router.Group("/admin")
	admin.GET("/cache/stats", cacheHandler.Stats)
	admin.POST("/cache/invalidate", stepUp, cacheHandler.Invalidate)
	admin.POST("/audit/retention/run", stepUp, auditHandler.RunRetention)
	admin.GET("/audit/partitions", auditHandler.ListPartitions)
	admin.POST("/grants/purge-expired", grantHandler.PurgeExpired)
	admin.POST("/totp/setup", totpHandler.Setup)
	admin.POST("/totp/verify", totpHandler.Verify)
	admin.POST("/totp/disable", stepUp, totpHandler.Disable)
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("warden-core API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down warden-core gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router so tests can mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}
