package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration with priority order:
// 1. Environment variables (WARDEN_ prefix, dots become underscores)
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/warden/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("WARDEN")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets the documented default for every recognized key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("logLevel", "info")

	// PostgreSQL store
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "warden")
	v.SetDefault("database.name", "warden")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 20)
	v.SetDefault("database.minConns", 2)
	v.SetDefault("database.connectTimeoutSeconds", 5)

	// Decision cache tiers
	v.SetDefault("cache.l1.maxEntries", 10000)
	v.SetDefault("cache.l1.ttl", "10s")
	v.SetDefault("cache.l2.nodes", []string{"localhost:6379"})
	v.SetDefault("cache.l2.db", 0)
	v.SetDefault("cache.l2.ttl", "5m")
	v.SetDefault("cache.l2.keyPrefix", "warden:authz:")
	v.SetDefault("cache.l2.discovery.enabled", false)
	v.SetDefault("cache.l2.discovery.refreshSeconds", 30)

	// Rate limiting
	v.SetDefault("rateLimit.capacity", 100)
	v.SetDefault("rateLimit.refillTokens", 100)
	v.SetDefault("rateLimit.refillPeriod", "1m")
	v.SetDefault("rateLimit.distributed", false)

	// External policy engine (OPA)
	v.SetDefault("policy.engine.enabled", false)
	v.SetDefault("policy.engine.policyPath", "/v1/data/warden/authz")
	v.SetDefault("policy.engine.compilePath", "/v1/compile")
	v.SetDefault("policy.engine.timeoutMs", 5000)
	v.SetDefault("policy.engine.connectTimeoutMs", 2000)
	v.SetDefault("policy.engine.retryAttempts", 3)

	// OIDC bearer verification
	v.SetDefault("oidc.enabled", false)
	v.SetDefault("oidc.clockSkewSeconds", 30)
	v.SetDefault("oidc.jwksCacheTtl", "1h")
	v.SetDefault("oidc.tenantClaim", "org")

	// Audit recorder
	v.SetDefault("audit.retentionDays", 365)
	v.SetDefault("audit.queueSize", 10000)
	v.SetDefault("audit.workers", 4)

	// RBAC evaluation
	v.SetDefault("rbac.maxHierarchyDepth", 10)

	// CORS
	v.SetDefault("cors.allowedOrigins", []string{"*"})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Content-Type", "Authorization", "X-API-Key", "X-Tenant-ID", "X-TOTP-Code"})
	v.SetDefault("cors.exposedHeaders", []string{"X-Rate-Limit-Limit", "X-Rate-Limit-Remaining", "X-Rate-Limit-Reset"})
	v.SetDefault("cors.allowCredentials", false)
	v.SetDefault("cors.maxAge", 3600)

	// Directory sync
	v.SetDefault("directorySync.enabled", false)
	v.SetDefault("directorySync.userFilter", "(objectClass=inetOrgPerson)")
	v.SetDefault("directorySync.interval", "1h")

	// Security
	v.SetDefault("security.totp.enabled", false)
	v.SetDefault("security.totp.issuer", "warden-core")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "warden-core")
}

// overrideWithEnvVars handles the critical deployment variables explicitly so
// they work without the WARDEN_ prefix convention.
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("logLevel", logLevel)
	}

	if host := os.Getenv("DATABASE_HOST"); host != "" {
		v.Set("database.host", host)
	}
	if pass := os.Getenv("DATABASE_PASSWORD"); pass != "" {
		v.Set("database.password", pass)
	}
	if name := os.Getenv("DATABASE_NAME"); name != "" {
		v.Set("database.name", name)
	}

	if nodes := os.Getenv("CACHE_NODES"); nodes != "" {
		parts := strings.Split(nodes, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		v.Set("cache.l2.nodes", parts)
	}
	if pass := os.Getenv("CACHE_PASSWORD"); pass != "" {
		v.Set("cache.l2.password", pass)
	}

	if base := os.Getenv("POLICY_ENGINE_URL"); base != "" {
		v.Set("policy.engine.baseUrl", base)
		v.Set("policy.engine.enabled", true)
	}

	if issuer := os.Getenv("OIDC_ISSUER"); issuer != "" {
		v.Set("oidc.issuer", issuer)
		v.Set("oidc.enabled", true)
	}
	if jwks := os.Getenv("OIDC_JWKS_URI"); jwks != "" {
		v.Set("oidc.jwksUri", jwks)
	}
	if aud := os.Getenv("OIDC_AUDIENCE"); aud != "" {
		v.Set("oidc.audience", aud)
	}

	if ldapURL := os.Getenv("LDAP_URL"); ldapURL != "" {
		v.Set("directorySync.url", ldapURL)
		v.Set("directorySync.enabled", true)
	}
	if otlp := os.Getenv("OTLP_ENDPOINT"); otlp != "" {
		v.Set("tracing.otlpEndpoint", otlp)
		v.Set("tracing.enabled", true)
	}
}

// validateConfig rejects configurations the server cannot run with.
func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	if config.Database.Host == "" || config.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}

	if config.Cache.L1.MaxEntries < 1 {
		return fmt.Errorf("cache.l1.maxEntries must be at least 1")
	}
	if config.Cache.L1.TTL <= 0 {
		return fmt.Errorf("cache.l1.ttl must be positive")
	}
	if config.Cache.L2.TTL <= 0 {
		return fmt.Errorf("cache.l2.ttl must be positive")
	}
	if len(config.Cache.L2.Nodes) == 0 && !config.Cache.L2.Discovery.Enabled {
		return fmt.Errorf("at least one cache.l2 node or DNS discovery is required")
	}

	if config.RateLimit.Capacity < 1 {
		return fmt.Errorf("rateLimit.capacity must be at least 1")
	}
	if config.RateLimit.RefillPeriod <= 0 {
		return fmt.Errorf("rateLimit.refillPeriod must be positive")
	}

	if config.Policy.Engine.Enabled && config.Policy.Engine.BaseURL == "" {
		return fmt.Errorf("policy.engine.baseUrl is required when the policy engine is enabled")
	}

	if config.OIDC.Enabled {
		if config.OIDC.Issuer == "" {
			return fmt.Errorf("oidc.issuer is required when OIDC is enabled")
		}
		if config.OIDC.JWKSURI == "" {
			return fmt.Errorf("oidc.jwksUri is required when OIDC is enabled")
		}
		if config.OIDC.Audience == "" {
			return fmt.Errorf("oidc.audience is required when OIDC is enabled")
		}
	}

	if config.RBAC.MaxHierarchyDepth < 0 {
		return fmt.Errorf("rbac.maxHierarchyDepth cannot be negative")
	}
	if config.Audit.RetentionDays < 1 {
		return fmt.Errorf("audit.retentionDays must be at least 1")
	}
	if config.Audit.QueueSize < 1 {
		return fmt.Errorf("audit.queueSize must be at least 1")
	}
	if config.Audit.Workers < 1 {
		return fmt.Errorf("audit.workers must be at least 1")
	}

	if config.DirectorySync.Enabled && config.DirectorySync.URL == "" {
		return fmt.Errorf("directorySync.url is required when directory sync is enabled")
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
