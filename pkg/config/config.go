package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Auth          AuthConfig
	Audit         AuditConfig
	Hierarchy     HierarchyConfig
	SSO           SSOConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORSOrigins lists allowed browser origins; empty disables CORS
	CORSOrigins []string
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	JWTSecret         string
	Issuer            string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	BcryptCost        int
	PasswordMinLength int
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled   bool
	LogToDB   bool
	FilePath  string // empty disables the file sink
	QueueSize int

	RetentionDays     int
	RetentionSchedule string // cron spec, empty disables the sweep
	ArchiveEnabled    bool   // export expiring rows to S3 before deletion
}

// HierarchyConfig holds region containment settings
type HierarchyConfig struct {
	Source   string // "file" or "db"
	FilePath string
	Watch    bool
}

// SSOConfig holds OIDC federated login settings
type SSOConfig struct {
	Enabled      bool
	ProviderName string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	DefaultRole  string
}

// RateLimitConfig holds login throttling settings
type RateLimitConfig struct {
	Enabled       bool
	LoginAttempts int
	LoginWindow   time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Audit:         loadAuditConfig(),
		Hierarchy:     loadHierarchyConfig(),
		SSO:           loadSSOConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PARIKSHA_HOST", "0.0.0.0"),
		Port:            getEnv("PARIKSHA_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PARIKSHA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PARIKSHA_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PARIKSHA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PARIKSHA_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("PARIKSHA_HEALTH_PORT", "9090"),
		CORSOrigins:     getEnvList("PARIKSHA_CORS_ORIGINS"),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("PARIKSHA_POSTGRES_URL", "")
	cfg.PostgresReplicaURLs = getEnv("PARIKSHA_POSTGRES_REPLICA_URLS", "")
	if maxConns := getEnvInt("PARIKSHA_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("PARIKSHA_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("PARIKSHA_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.RedisURL = getEnv("PARIKSHA_REDIS_URL", "")
	cfg.RedisPassword = getEnv("PARIKSHA_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("PARIKSHA_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("PARIKSHA_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	cfg.S3Endpoint = getEnv("PARIKSHA_S3_ENDPOINT", "")
	cfg.S3Region = getEnv("PARIKSHA_S3_REGION", "ap-south-1")
	cfg.S3Bucket = getEnv("PARIKSHA_S3_BUCKET", "")
	cfg.S3AccessKey = getEnv("PARIKSHA_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("PARIKSHA_S3_SECRET_KEY", "")
	cfg.S3UsePathStyle = getEnvBool("PARIKSHA_S3_USE_PATH_STYLE", false)

	cfg.CacheEnabled = getEnvBool("PARIKSHA_CACHE_ENABLED", true)
	if ttl := getEnvDuration("PARIKSHA_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL = ttl
	}
	if l1Size := getEnvInt("PARIKSHA_L1_CACHE_SIZE", 0); l1Size > 0 {
		cfg.L1CacheSize = l1Size
	}

	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:         getEnv("PARIKSHA_JWT_SECRET", ""),
		Issuer:            getEnv("PARIKSHA_JWT_ISSUER", "pariksha"),
		AccessTokenTTL:    getEnvDuration("PARIKSHA_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:   getEnvDuration("PARIKSHA_REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost:        getEnvInt("PARIKSHA_BCRYPT_COST", 12),
		PasswordMinLength: getEnvInt("PARIKSHA_PASSWORD_MIN_LENGTH", 8),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:           getEnvBool("PARIKSHA_AUDIT_ENABLED", true),
		LogToDB:           getEnvBool("PARIKSHA_AUDIT_DB", true),
		FilePath:          getEnv("PARIKSHA_AUDIT_FILE", ""),
		QueueSize:         getEnvInt("PARIKSHA_AUDIT_QUEUE_SIZE", 1024),
		RetentionDays:     getEnvInt("PARIKSHA_AUDIT_RETENTION_DAYS", 365),
		RetentionSchedule: getEnv("PARIKSHA_AUDIT_RETENTION_SCHEDULE", "0 3 * * *"),
		ArchiveEnabled:    getEnvBool("PARIKSHA_AUDIT_ARCHIVE_ENABLED", false),
	}
}

func loadHierarchyConfig() HierarchyConfig {
	return HierarchyConfig{
		Source:   getEnv("PARIKSHA_HIERARCHY_SOURCE", "db"),
		FilePath: getEnv("PARIKSHA_HIERARCHY_FILE", ""),
		Watch:    getEnvBool("PARIKSHA_HIERARCHY_WATCH", true),
	}
}

func loadSSOConfig() SSOConfig {
	scopes := strings.Split(getEnv("PARIKSHA_OIDC_SCOPES", "openid,profile,email"), ",")
	for i := range scopes {
		scopes[i] = strings.TrimSpace(scopes[i])
	}

	return SSOConfig{
		Enabled:      getEnvBool("PARIKSHA_OIDC_ENABLED", false),
		ProviderName: getEnv("PARIKSHA_OIDC_PROVIDER_NAME", "oidc"),
		IssuerURL:    getEnv("PARIKSHA_OIDC_ISSUER_URL", ""),
		ClientID:     getEnv("PARIKSHA_OIDC_CLIENT_ID", ""),
		ClientSecret: getEnv("PARIKSHA_OIDC_CLIENT_SECRET", ""),
		RedirectURL:  getEnv("PARIKSHA_OIDC_REDIRECT_URL", ""),
		Scopes:       scopes,
		DefaultRole:  getEnv("PARIKSHA_OIDC_DEFAULT_ROLE", "STUDENT"),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:       getEnvBool("PARIKSHA_RATELIMIT_ENABLED", true),
		LoginAttempts: getEnvInt("PARIKSHA_RATELIMIT_LOGIN_ATTEMPTS", 10),
		LoginWindow:   getEnvDuration("PARIKSHA_RATELIMIT_LOGIN_WINDOW", time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("PARIKSHA_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("PARIKSHA_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("PARIKSHA_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("PARIKSHA_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("PARIKSHA_OTEL_SERVICE_NAME", "pariksha-auth"),
		OTelServiceVersion: getEnv("PARIKSHA_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("PARIKSHA_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 10 and 31")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}

	if c.Audit.Enabled && c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}
	if c.Audit.ArchiveEnabled && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when audit archiving is enabled")
	}

	switch c.Hierarchy.Source {
	case "db":
	case "file":
		if c.Hierarchy.FilePath == "" {
			return fmt.Errorf("hierarchy file path is required for file source")
		}
	default:
		return fmt.Errorf("invalid hierarchy source: %s (must be file or db)", c.Hierarchy.Source)
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" || c.SSO.ClientID == "" || c.SSO.ClientSecret == "" || c.SSO.RedirectURL == "" {
			return fmt.Errorf("OIDC issuer URL, client ID, client secret and redirect URL are required when SSO is enabled")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.LoginAttempts <= 0 {
			return fmt.Errorf("rate limit login attempts must be positive")
		}
		if c.RateLimit.LoginWindow <= 0 {
			return fmt.Errorf("rate limit login window must be positive")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice,
// dropping empty entries. A missing variable yields nil.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
