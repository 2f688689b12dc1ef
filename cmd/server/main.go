package main

import (
	"context"
	"crypto/x509"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/warden-core/internal/api"
	"github.com/platformbuilds/warden-core/internal/auth"
	"github.com/platformbuilds/warden-core/internal/bus"
	"github.com/platformbuilds/warden-core/internal/cache"
	"github.com/platformbuilds/warden-core/internal/config"
	"github.com/platformbuilds/warden-core/internal/discovery"
	"github.com/platformbuilds/warden-core/internal/policy"
	"github.com/platformbuilds/warden-core/internal/ratelimit"
	"github.com/platformbuilds/warden-core/internal/security/cabundle"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/internal/storage/postgres"
	"github.com/platformbuilds/warden-core/internal/tracing"
	"github.com/platformbuilds/warden-core/internal/version"
	pkgauth "github.com/platformbuilds/warden-core/pkg/auth"
	valkey "github.com/platformbuilds/warden-core/pkg/cache"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)
	logg.Info("Starting warden-core", "version", version.Version, "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional tracing, wired before anything that opens spans.
	if cfg.Tracing.Enabled {
		serviceName := cfg.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "warden-core"
		}
		tp, err := tracing.NewTracerProvider(serviceName, version.Version, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			logg.Fatal("Failed to initialize tracing", "error", err)
		}
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logg.Warn("Tracer shutdown incomplete", "error", err)
			}
		}()
	}

	// CA bundle for outbound TLS (directory, policy engine, JWKS). Reloads
	// take effect on the next dial.
	caBundle, err := cabundle.NewManager(cfg.Security.CABundlePath, logg, nil)
	if err != nil {
		logg.Fatal("Failed to load CA bundle", "path", cfg.Security.CABundlePath, "error", err)
	}
	defer caBundle.Close()
	rootCAs := func() *x509.CertPool { return caBundle.RootCAs() }

	// Relational store plus schema migrations.
	store, err := postgres.NewStore(ctx, cfg.Database, logg)
	if err != nil {
		logg.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logg.Fatal("Schema migration failed", "error", err)
	}

	orgs := postgres.NewOrganizationRepo(store)
	users := postgres.NewUserRepo(store)
	roles := postgres.NewRoleRepo(store)
	perms := postgres.NewPermissionRepo(store)
	rolePerms := postgres.NewRolePermissionRepo(store)
	userRoles := postgres.NewUserRoleRepo(store)
	policies := postgres.NewPolicyRepo(store)
	apiKeys := postgres.NewAPIKeyRepo(store)
	auditRepo := postgres.NewAuditRepo(store)

	// L2 cache: real client when reachable, in-memory fallback meanwhile.
	l2 := buildL2Cache(ctx, cfg.Cache.L2, logg)
	defer l2.Close()

	// Decision cache tiers plus the bus-driven invalidator.
	l1 := cache.NewL1Cache(cfg.Cache.L1.MaxEntries, cfg.Cache.L1.TTL)
	decisionCache := cache.NewDecisionCache(l1, l2, cfg.Cache.L2.TTL, cfg.Cache.L2.KeyPrefix, logg)
	eventBus := bus.New(logg)
	defer eventBus.Close()
	cache.NewInvalidator(decisionCache, logg).Register(eventBus)

	engine := policy.NewEngine(cfg.Policy.Engine, logg)

	audit := services.NewAuditService(auditRepo, cfg.Audit.QueueSize, cfg.Audit.Workers, logg)
	audit.Start()
	if err := auditRepo.EnsurePartitions(ctx, 1); err != nil {
		logg.Warn("Could not pre-create audit partitions", "error", err)
	}

	evaluator := services.NewEvaluator(users, roles, userRoles, rolePerms, cfg.RBAC.MaxHierarchyDepth, logg)
	decisions := services.NewDecisionService(evaluator, decisionCache, engine, audit, logg)
	if cfg.Tracing.Enabled {
		decisions.EnableTracing(tracing.NewDecisionTracer("warden-core/decisions"))
	}

	grants := services.NewGrantService(users, roles, perms, rolePerms, userRoles, eventBus, audit, logg)
	svcs := api.Services{
		Decisions:   decisions,
		Orgs:        services.NewOrganizationService(orgs, eventBus, audit, logg),
		Users:       services.NewUserService(users, eventBus, audit, logg),
		Roles:       services.NewRoleService(store, roles, cfg.RBAC.MaxHierarchyDepth, eventBus, audit, logg),
		Permissions: services.NewPermissionService(perms, eventBus, audit, logg),
		Grants:      grants,
		Policies: services.NewPolicyService(store, policies,
			services.NewPolicyValidator(engine, logg), eventBus, audit, logg),
		APIKeys: services.NewAPIKeyService(apiKeys, audit, logg),
		Audit:   audit,
		TOTP:    services.NewTOTPService(cfg.Security.TOTP, users, audit, logg),
	}

	// Scheduled LDAP upsert of directory users, when configured.
	if cfg.DirectorySync.Enabled {
		directory := pkgauth.NewDirectoryClient(cfg.DirectorySync, rootCAs, logg)
		sync := services.NewDirectorySyncService(cfg.DirectorySync, directory, users, logg)
		sync.Start()
		defer sync.Stop()
		svcs.DirectorySync = sync
	}

	// Hourly sweep of expired role assignments.
	go expiredGrantJanitor(ctx, grants, logg)

	// Identity gate pieces. The JWKS fetcher trusts the managed CA pool so
	// private identity providers work without touching the system store.
	jwksClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{TLSClientConfig: caBundle.TLSConfig(false)},
	}
	jwks := auth.NewJWKSCache(cfg.OIDC.JWKSURI, cfg.OIDC.JWKSCacheTTL, jwksClient, logg)
	bearer := auth.NewTokenVerifier(cfg.OIDC, jwks, logg)
	apiKeyVerifier := auth.NewAPIKeyVerifier(cfg.Auth.APIKeys, apiKeys, l2, cfg.Cache.L2.KeyPrefix, logg)
	provisioner := auth.NewProvisioner(users, logg)

	limiter := buildLimiter(cfg, l2, logg)

	server := api.NewServer(cfg, logg, store, l2, engine, limiter, bearer, apiKeyVerifier, provisioner, orgs, svcs)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logg.Info("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logg.Fatal("Server failed", "error", err)
	}

	// Drain the audit queue before the store closes under it.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer drainCancel()
	if err := audit.Shutdown(drainCtx); err != nil {
		logg.Warn("Audit drain incomplete", "error", err)
	}

	logg.Info("warden-core shutdown complete")
}

// buildL2Cache dials the configured Valkey topology with an in-memory
// fallback so a slow cache never blocks startup. DNS discovery keeps the
// cluster node list current.
func buildL2Cache(ctx context.Context, cfg config.L2CacheConfig, logg logger.Logger) valkey.ValkeyCluster {
	if len(cfg.Nodes) == 0 && !cfg.Discovery.Enabled {
		logg.Warn("No L2 cache nodes configured; decisions cache in-process only")
		return valkey.NewNoopValkeyCache(logg)
	}

	nodes := cfg.Nodes
	dnsCfg := discovery.DNSConfig{
		Enabled:        cfg.Discovery.Enabled,
		Service:        cfg.Discovery.Service,
		Port:           cfg.Discovery.Port,
		RefreshSeconds: cfg.Discovery.RefreshSeconds,
		UseSRV:         cfg.Discovery.UseSRV,
	}
	if dnsCfg.Enabled {
		if discovered := discovery.Resolve(dnsCfg); len(discovered) > 0 {
			nodes = discovered
		}
	}

	fallback := valkey.NewNoopValkeyCache(logg)
	var l2 valkey.ValkeyCluster
	if len(nodes) == 1 && !dnsCfg.Enabled {
		l2 = valkey.NewAutoSwapForSingle(nodes[0], cfg.DB, cfg.Password, cfg.TTL, logg, fallback)
	} else {
		l2 = valkey.NewAutoSwapForCluster(nodes, cfg.Password, cfg.TTL, logg, fallback)
	}

	if sink, ok := l2.(discovery.EndpointsSink); ok {
		discovery.Start(ctx, dnsCfg, sink, logg)
	}
	return l2
}

// buildLimiter picks the decision-path rate limiter: Valkey-backed when the
// deployment runs more than one replica, per-process token bucket otherwise.
func buildLimiter(cfg *config.Config, l2 valkey.ValkeyCluster, logg logger.Logger) ratelimit.Limiter {
	if cfg.RateLimit.Distributed {
		return ratelimit.NewDistributedLimiter(l2, cfg.RateLimit.Capacity,
			cfg.RateLimit.RefillPeriod, cfg.Cache.L2.KeyPrefix, logg)
	}
	return ratelimit.NewTokenBucketLimiter(cfg.RateLimit.Capacity,
		cfg.RateLimit.RefillTokens, cfg.RateLimit.RefillPeriod)
}

// expiredGrantJanitor deletes expired role assignments hourly so the grants
// tables do not accrete rows that no longer affect decisions.
func expiredGrantJanitor(ctx context.Context, grants *services.GrantService, logg logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := grants.PurgeExpired(ctx)
			if err != nil {
				logg.Warn("Expired grant sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logg.Info("Expired grants purged", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
