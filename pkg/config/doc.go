// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GRANTOR_HOST="0.0.0.0"
//	GRANTOR_PORT="8080"
//	GRANTOR_HEALTH_PORT="9090"
//	GRANTOR_READ_TIMEOUT="15s"
//	GRANTOR_WRITE_TIMEOUT="15s"
//
// History store settings:
//
//	GRANTOR_HISTORY_STORE="memory"  # memory, postgres
//	GRANTOR_POSTGRES_URL="postgres://localhost/grantor"
//	GRANTOR_POSTGRES_MAX_CONNS="25"
//	GRANTOR_ARCHIVE_BUCKET="grantor-operations"
//	GRANTOR_ARCHIVE_REGION="us-east-1"
//
// Cache settings:
//
//	GRANTOR_REDIS_URL="redis://localhost:6379"
//	GRANTOR_SYNC_CACHE_TTL="30s"
//
// Orchestrator settings:
//
//	GRANTOR_ENTERPRISE_APP_ID="app-00000000"
//	GRANTOR_ACCOUNT_DEV="111111111111"
//	GRANTOR_ACCOUNT_QA="222222222222"
//	GRANTOR_ACCOUNT_STAGING="333333333333"
//	GRANTOR_ACCOUNT_PROD="444444444444"
//	GRANTOR_PROVISIONING_TIMEOUT="5m"
//	GRANTOR_BULK_WORKERS="5"
//
// Observability settings:
//
//	GRANTOR_LOG_LEVEL="info"  # debug, info, warn, error
//	GRANTOR_METRICS_ENABLED="true"
//	GRANTOR_OTEL_ENABLED="true"
//	GRANTOR_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("History: %s\n", cfg.History.Store)
//
// # Related Packages
//
//   - pkg/history: Uses history store configuration
//   - pkg/orchestrator: Uses orchestrator configuration
//   - pkg/observability: Uses observability configuration
package config
