package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/grantor/pkg/api"
	"github.com/platinummonkey/grantor/pkg/catalog"
	"github.com/platinummonkey/grantor/pkg/config"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/httputil"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/revalidate"
)

const version = "1.0.0"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grantor %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting grantor")

	ctx := context.Background()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Operation history store
	store, pgStore, err := buildHistoryStore(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	// Collaborator clients. Real directory and platform integrations plug
	// in at the identity.Client / platform.Client seam; until then the
	// built-in in-memory clients keep full state locally.
	logger.Warn("Running with in-memory identity and platform clients; all state is local to this process")
	identityClient := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.SyncedByDefault = true
	var platformClient platform.Client = platformFake

	// Redis sync-status cache for validation reads
	var validationClient platform.SyncChecker = platformClient
	var syncCache *platform.SyncStatusCache
	if cfg.Cache.Enabled {
		cacheCfg := platform.DefaultCacheConfig(cfg.Cache.RedisURL)
		cacheCfg.Password = cfg.Cache.RedisPassword
		cacheCfg.DB = cfg.Cache.RedisDB
		cacheCfg.PoolSize = cfg.Cache.RedisPoolSize
		cacheCfg.TTL = cfg.Cache.SyncStatusTTL
		syncCache, err = platform.NewSyncStatusCache(cacheCfg, platformClient)
		if err != nil {
			return fmt.Errorf("failed to connect sync-status cache: %w", err)
		}
		validationClient = syncCache
		logger.WithField("ttl", cfg.Cache.SyncStatusTTL.String()).Info("Sync-status cache enabled")
	}

	// Permission template catalog
	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to load template catalog: %w", err)
	}
	if cfg.Catalog.WatchEnabled {
		if err := cat.Watch(); err != nil {
			return fmt.Errorf("failed to watch template catalog: %w", err)
		}
	}

	// Workflow orchestrator
	orch := orchestrator.New(orchestrator.Deps{
		Identity:   identityClient,
		Platform:   platformClient,
		Validation: validationClient,
		Templates:  cat,
		History:    store,
		Logger:     logger,
		Metrics:    metrics,
	}, cfg.Orchestrator)

	// API server
	server := api.NewServer(orch, cat, logger, metrics)
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggerMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(1<<20),
	)(server)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "grantor-api")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on a separate port for probes
	health := observability.NewHealthChecker(version)
	if pgStore != nil {
		health.AddCheck("postgres", observability.DatabaseCheck(pgStore.DB()))
	}
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.OnShutdown("health server", func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.OnShutdown("template catalog", func(ctx context.Context) error {
		return cat.Close()
	})
	if pgStore != nil {
		shutdown.OnShutdown("postgres", func(ctx context.Context) error {
			return pgStore.Close()
		})
	}
	if syncCache != nil {
		shutdown.OnShutdown("sync cache", func(ctx context.Context) error {
			return syncCache.Close()
		})
	}
	if providers != nil {
		shutdown.OnShutdown("opentelemetry", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	// Periodic grant revalidation
	if cfg.Revalidation.Enabled {
		var invalidator revalidate.Invalidator
		if syncCache != nil {
			invalidator = syncCache
		}
		revalidator := revalidate.New(orch, invalidator, logger, metrics, revalidate.Config{
			Schedule: cfg.Revalidation.Schedule,
		}).WithHistory(store)
		if err := revalidator.Start(); err != nil {
			return fmt.Errorf("failed to start revalidator: %w", err)
		}
		shutdown.OnShutdown("revalidator", func(ctx context.Context) error {
			revalidator.Stop()
			return nil
		})
	}

	// Daily history retention cleanup
	cleanupCron := cron.New()
	if _, err := cleanupCron.AddFunc("@daily", func() {
		cutoff := time.Now().UTC().Add(-cfg.History.Retention)
		removed, err := store.Cleanup(context.Background(), cutoff)
		if err != nil {
			logger.WithError(err).Error("History cleanup failed")
			return
		}
		logger.WithField("removed", removed).Info("History cleanup complete")
	}); err != nil {
		return fmt.Errorf("failed to schedule history cleanup: %w", err)
	}
	cleanupCron.Start()
	shutdown.OnShutdown("history cleanup", func(ctx context.Context) error {
		cleanupCron.Stop()
		return nil
	})

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("API server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForSignal()
}

// buildHistoryStore selects the configured store and wraps it with
// archival when a bucket is configured and with instrumentation when
// metrics are enabled. The postgres store is returned separately so
// health checks and shutdown can reach it.
func buildHistoryStore(ctx context.Context, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (history.Store, *history.PostgresStore, error) {
	var store history.Store
	var pgStore *history.PostgresStore

	switch cfg.History.Store {
	case "postgres":
		var err error
		pgStore, err = history.NewPostgresStore(history.PostgresConfig{
			URL:          cfg.History.PostgresURL,
			MaxOpenConns: cfg.History.PostgresMaxConns,
			MaxIdleConns: cfg.History.PostgresMinConns,
			PingTimeout:  cfg.History.PostgresTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres history store: %w", err)
		}
		store = pgStore
		logger.Info("Using postgres history store")
	default:
		store = history.NewMemoryStore()
		logger.Warn("Using in-memory history store; operation records will not survive restarts")
	}

	if cfg.History.ArchiveBucket != "" {
		archiver, err := history.NewS3Archiver(ctx, history.ArchiveConfig{
			Bucket:       cfg.History.ArchiveBucket,
			Region:       cfg.History.ArchiveRegion,
			Endpoint:     cfg.History.ArchiveEndpoint,
			AccessKey:    cfg.History.ArchiveAccessKey,
			SecretKey:    cfg.History.ArchiveSecretKey,
			KeyPrefix:    cfg.History.ArchivePrefix,
			UsePathStyle: cfg.History.ArchivePathStyle,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build archive client: %w", err)
		}
		store = history.NewArchivingStore(store, archiver, logger)
		logger.WithField("bucket", cfg.History.ArchiveBucket).Info("Operation archival enabled")
	}

	if metrics != nil {
		store = history.NewInstrumentedStore(store, metrics)
	}

	return store, pgStore, nil
}
