package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// History store configuration
	History HistoryConfig

	// Redis sync-status cache configuration
	Cache CacheConfig

	// Permission template catalog configuration
	Catalog CatalogConfig

	// Orchestrator configuration
	Orchestrator orchestrator.Config

	// Periodic grant revalidation configuration
	Revalidation RevalidationConfig

	// Observability configuration
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
}

// HistoryConfig holds operation history store configuration
type HistoryConfig struct {
	// Store selects the backing store: memory or postgres.
	Store string

	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// Retention is how long terminal operations are kept before cleanup.
	Retention time.Duration

	// Archive settings; archiving is enabled when a bucket is set.
	ArchiveBucket    string
	ArchiveRegion    string
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchivePrefix    string
	ArchivePathStyle bool
}

// CacheConfig holds the redis sync-status cache configuration
type CacheConfig struct {
	// Enabled turns the cache on; validation reads fall back to live
	// platform checks when disabled.
	Enabled bool

	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// SyncStatusTTL bounds how stale a cached sync status may be.
	SyncStatusTTL time.Duration
}

// CatalogConfig holds permission template catalog configuration
type CatalogConfig struct {
	// Path is the catalog YAML file. Hot reload watches its directory.
	Path string

	// WatchEnabled turns on fsnotify hot reload.
	WatchEnabled bool
}

// RevalidationConfig holds the periodic grant revalidation schedule
type RevalidationConfig struct {
	Enabled bool

	// Schedule is a cron expression.
	Schedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		History:       loadHistoryConfig(),
		Cache:         loadCacheConfig(),
		Catalog:       loadCatalogConfig(),
		Orchestrator:  loadOrchestratorConfig(),
		Revalidation:  loadRevalidationConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GRANTOR_HOST", "0.0.0.0"),
		Port:            getEnv("GRANTOR_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GRANTOR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GRANTOR_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GRANTOR_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GRANTOR_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GRANTOR_HEALTH_PORT", "9090"),
	}
}

// loadHistoryConfig loads history store configuration from environment
func loadHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Store:            getEnv("GRANTOR_HISTORY_STORE", "memory"),
		PostgresURL:      getEnv("GRANTOR_POSTGRES_URL", ""),
		PostgresMaxConns: getEnvInt("GRANTOR_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns: getEnvInt("GRANTOR_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:  getEnvDuration("GRANTOR_POSTGRES_TIMEOUT", 30*time.Second),
		Retention:        getEnvDuration("GRANTOR_HISTORY_RETENTION", 90*24*time.Hour),
		ArchiveBucket:    getEnv("GRANTOR_ARCHIVE_BUCKET", ""),
		ArchiveRegion:    getEnv("GRANTOR_ARCHIVE_REGION", "us-east-1"),
		ArchiveEndpoint:  getEnv("GRANTOR_ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getEnv("GRANTOR_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("GRANTOR_ARCHIVE_SECRET_KEY", ""),
		ArchivePrefix:    getEnv("GRANTOR_ARCHIVE_PREFIX", "operations"),
		ArchivePathStyle: getEnvBool("GRANTOR_ARCHIVE_PATH_STYLE", false),
	}
}

// loadCacheConfig loads redis cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:       getEnvBool("GRANTOR_CACHE_ENABLED", false),
		RedisURL:      getEnv("GRANTOR_REDIS_URL", "redis://localhost:6379"),
		RedisPassword: getEnv("GRANTOR_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("GRANTOR_REDIS_DB", 0),
		RedisPoolSize: getEnvInt("GRANTOR_REDIS_POOL_SIZE", 10),
		SyncStatusTTL: getEnvDuration("GRANTOR_SYNC_CACHE_TTL", 30*time.Second),
	}
}

// loadCatalogConfig loads catalog configuration from environment
func loadCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Path:         getEnv("GRANTOR_CATALOG_PATH", "/etc/grantor/templates.yaml"),
		WatchEnabled: getEnvBool("GRANTOR_CATALOG_WATCH", true),
	}
}

// loadOrchestratorConfig loads orchestrator configuration from environment
func loadOrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.EnterpriseAppID = getEnv("GRANTOR_ENTERPRISE_APP_ID", "")
	cfg.EnvironmentAccounts = loadEnvironmentAccounts()

	if timeout := getEnvDuration("GRANTOR_PROVISIONING_TIMEOUT", 0); timeout > 0 {
		cfg.ProvisioningTimeout = timeout
	}
	if interval := getEnvDuration("GRANTOR_PROVISIONING_POLL_INTERVAL", 0); interval > 0 {
		cfg.ProvisioningPollInterval = interval
	}
	if attempts := getEnvInt("GRANTOR_SYNC_POLL_ATTEMPTS", 0); attempts > 0 {
		cfg.SyncPollAttempts = attempts
	}
	if interval := getEnvDuration("GRANTOR_SYNC_POLL_INTERVAL", 0); interval > 0 {
		cfg.SyncPollInterval = interval
	}
	if workers := getEnvInt("GRANTOR_BULK_WORKERS", 0); workers > 0 {
		cfg.BulkWorkers = workers
	}
	return cfg
}

// loadEnvironmentAccounts maps each environment to its account id from
// GRANTOR_ACCOUNT_<ENV> variables. Unset environments are omitted.
func loadEnvironmentAccounts() map[grant.Environment]string {
	accounts := make(map[grant.Environment]string)
	for _, env := range grant.Environments {
		key := "GRANTOR_ACCOUNT_" + strings.ToUpper(string(env))
		if account := getEnv(key, ""); account != "" {
			accounts[env] = account
		}
	}
	return accounts
}

// loadRevalidationConfig loads revalidation configuration from environment
func loadRevalidationConfig() RevalidationConfig {
	return RevalidationConfig{
		Enabled:  getEnvBool("GRANTOR_REVALIDATION_ENABLED", false),
		Schedule: getEnv("GRANTOR_REVALIDATION_SCHEDULE", "0 */6 * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("GRANTOR_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GRANTOR_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GRANTOR_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GRANTOR_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GRANTOR_OTEL_SERVICE_NAME", "grantor"),
		OTelServiceVersion: getEnv("GRANTOR_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GRANTOR_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate history store config
	switch c.History.Store {
	case "memory":
		// No further requirements.
	case "postgres":
		if c.History.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres history store")
		}
	default:
		return fmt.Errorf("invalid history store: %s (must be memory or postgres)", c.History.Store)
	}
	if c.History.ArchiveBucket != "" && c.History.ArchiveRegion == "" {
		return fmt.Errorf("archive region is required when an archive bucket is set")
	}

	// Validate orchestrator config
	if c.Orchestrator.EnterpriseAppID == "" {
		return fmt.Errorf("enterprise app id is required")
	}
	if len(c.Orchestrator.EnvironmentAccounts) == 0 {
		return fmt.Errorf("at least one environment account mapping is required")
	}

	// Validate revalidation config
	if c.Revalidation.Enabled && c.Revalidation.Schedule == "" {
		return fmt.Errorf("revalidation schedule is required when revalidation is enabled")
	}

	// Validate OpenTelemetry config
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

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
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
