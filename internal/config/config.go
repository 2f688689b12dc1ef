package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"logLevel" yaml:"logLevel"`

	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	RateLimit     RateLimitConfig     `mapstructure:"rateLimit" yaml:"rateLimit"`
	Policy        PolicyConfig        `mapstructure:"policy" yaml:"policy"`
	OIDC          OIDCConfig          `mapstructure:"oidc" yaml:"oidc"`
	Auth          AuthConfig          `mapstructure:"auth" yaml:"auth"`
	Audit         AuditConfig         `mapstructure:"audit" yaml:"audit"`
	RBAC          RBACConfig          `mapstructure:"rbac" yaml:"rbac"`
	CORS          CORSConfig          `mapstructure:"cors" yaml:"cors"`
	DirectorySync DirectorySyncConfig `mapstructure:"directorySync" yaml:"directorySync"`
	Security      SecurityConfig      `mapstructure:"security" yaml:"security"`
	Tracing       TracingConfig       `mapstructure:"tracing" yaml:"tracing"`
}

// DatabaseConfig points at the PostgreSQL store holding the authorization
// data model and the partitioned audit log.
type DatabaseConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	User           string `mapstructure:"user" yaml:"user"`
	Password       string `mapstructure:"password" yaml:"password"`
	Name           string `mapstructure:"name" yaml:"name"`
	SSLMode        string `mapstructure:"sslMode" yaml:"sslMode"`
	MaxConns       int    `mapstructure:"maxConns" yaml:"maxConns"`
	MinConns       int    `mapstructure:"minConns" yaml:"minConns"`
	ConnectTimeout int    `mapstructure:"connectTimeoutSeconds" yaml:"connectTimeoutSeconds"`
}

// CacheConfig holds both decision cache tiers.
type CacheConfig struct {
	L1 L1CacheConfig `mapstructure:"l1" yaml:"l1"`
	L2 L2CacheConfig `mapstructure:"l2" yaml:"l2"`
}

// L1CacheConfig bounds the per-process decision cache.
type L1CacheConfig struct {
	MaxEntries int           `mapstructure:"maxEntries" yaml:"maxEntries"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// L2CacheConfig configures the shared Valkey/Redis tier. KeyPrefix namespaces
// every key this process writes so tenant purges never touch foreign data.
type L2CacheConfig struct {
	Nodes     []string           `mapstructure:"nodes" yaml:"nodes"`
	Password  string             `mapstructure:"password" yaml:"password"`
	DB        int                `mapstructure:"db" yaml:"db"`
	TTL       time.Duration      `mapstructure:"ttl" yaml:"ttl"`
	KeyPrefix string             `mapstructure:"keyPrefix" yaml:"keyPrefix"`
	Discovery DNSDiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
}

// DNSDiscoveryConfig enables DNS-based discovery of cache nodes (headless
// service pod IPs or SRV records).
type DNSDiscoveryConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Service        string `mapstructure:"service" yaml:"service"`
	Port           int    `mapstructure:"port" yaml:"port"`
	RefreshSeconds int    `mapstructure:"refreshSeconds" yaml:"refreshSeconds"`
	UseSRV         bool   `mapstructure:"useSrv" yaml:"useSrv"`
}

// RateLimitConfig shapes the per-credential token bucket at the boundary.
type RateLimitConfig struct {
	Capacity     int           `mapstructure:"capacity" yaml:"capacity"`
	RefillTokens int           `mapstructure:"refillTokens" yaml:"refillTokens"`
	RefillPeriod time.Duration `mapstructure:"refillPeriod" yaml:"refillPeriod"`
	Distributed  bool          `mapstructure:"distributed" yaml:"distributed"`
}

type PolicyConfig struct {
	Engine PolicyEngineConfig `mapstructure:"engine" yaml:"engine"`
}

// PolicyEngineConfig points at the external OPA process. Disabled means the
// capability factory hands back a sentinel adapter and decisions are pure RBAC.
type PolicyEngineConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL          string `mapstructure:"baseUrl" yaml:"baseUrl"`
	PolicyPath       string `mapstructure:"policyPath" yaml:"policyPath"`
	CompilePath      string `mapstructure:"compilePath" yaml:"compilePath"`
	TimeoutMs        int    `mapstructure:"timeoutMs" yaml:"timeoutMs"`
	ConnectTimeoutMs int    `mapstructure:"connectTimeoutMs" yaml:"connectTimeoutMs"`
	RetryAttempts    int    `mapstructure:"retryAttempts" yaml:"retryAttempts"`
}

// OIDCConfig configures bearer-token verification against an external
// identity provider.
type OIDCConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled"`
	Issuer           string        `mapstructure:"issuer" yaml:"issuer"`
	JWKSURI          string        `mapstructure:"jwksUri" yaml:"jwksUri"`
	Audience         string        `mapstructure:"audience" yaml:"audience"`
	ClockSkewSeconds int           `mapstructure:"clockSkewSeconds" yaml:"clockSkewSeconds"`
	JWKSCacheTTL     time.Duration `mapstructure:"jwksCacheTtl" yaml:"jwksCacheTtl"`
	TenantClaim      string        `mapstructure:"tenantClaim" yaml:"tenantClaim"`
}

// AuthConfig holds the static credential sources. APIKeys maps a shared
// secret to the tenant it authenticates; managed keys live in the store.
type AuthConfig struct {
	APIKeys map[string]string `mapstructure:"apiKeys" yaml:"apiKeys"`
}

type AuditConfig struct {
	RetentionDays int `mapstructure:"retentionDays" yaml:"retentionDays"`
	QueueSize     int `mapstructure:"queueSize" yaml:"queueSize"`
	Workers       int `mapstructure:"workers" yaml:"workers"`
}

type RBACConfig struct {
	MaxHierarchyDepth int `mapstructure:"maxHierarchyDepth" yaml:"maxHierarchyDepth"`
}

// CORSConfig handles Cross-Origin Resource Sharing.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins"`
	AllowedMethods   []string `mapstructure:"allowedMethods" yaml:"allowedMethods"`
	AllowedHeaders   []string `mapstructure:"allowedHeaders" yaml:"allowedHeaders"`
	ExposedHeaders   []string `mapstructure:"exposedHeaders" yaml:"exposedHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials" yaml:"allowCredentials"`
	MaxAge           int      `mapstructure:"maxAge" yaml:"maxAge"`
}

// DirectorySyncConfig drives the scheduled LDAP upsert of directory users
// into one tenant.
type DirectorySyncConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	URL          string        `mapstructure:"url" yaml:"url"`
	BaseDN       string        `mapstructure:"baseDn" yaml:"baseDn"`
	BindDN       string        `mapstructure:"bindDn" yaml:"bindDn"`
	BindPassword string        `mapstructure:"bindPassword" yaml:"bindPassword"`
	UserFilter   string        `mapstructure:"userFilter" yaml:"userFilter"`
	OrgID        string        `mapstructure:"orgId" yaml:"orgId"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
}

type SecurityConfig struct {
	CABundlePath string     `mapstructure:"caBundlePath" yaml:"caBundlePath"`
	TOTP         TOTPConfig `mapstructure:"totp" yaml:"totp"`
}

// TOTPConfig gates destructive admin operations behind a step-up code.
type TOTPConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Issuer  string `mapstructure:"issuer" yaml:"issuer"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string `mapstructure:"otlpEndpoint" yaml:"otlpEndpoint"`
	ServiceName  string `mapstructure:"serviceName" yaml:"serviceName"`
}
