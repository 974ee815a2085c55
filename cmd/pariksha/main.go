package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pariksha-io/pariksha/pkg/api"
	"github.com/pariksha-io/pariksha/pkg/async"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/config"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/hierarchy"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/rbac"
	"github.com/pariksha-io/pariksha/pkg/sso"
	"github.com/pariksha-io/pariksha/pkg/storage"
)

const (
	replicaCheckInterval = 30 * time.Second
	dbStatsInterval      = 15 * time.Second
	retentionRunTimeout  = 10 * time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Database
	cm, err := storage.NewConnectionManager(storage.ConnectionConfigFromStorage(cfg.Storage))
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	if cfg.Storage.PostgresReplicaURLs != "" {
		cm.StartHealthCheckRoutine(ctx, replicaCheckInterval)
	}

	if err := directory.RunMigrations(ctx, cm.Primary()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Directory store, optionally fronted by the two-tier cache
	var store directory.Store = directory.NewPostgresStore(cm.Primary())

	var redisClient *storage.RedisClient
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
	}
	if cfg.Storage.CacheEnabled {
		store = directory.NewCachedStore(store, redisClient, metrics, directory.CacheConfig{
			L1Size: cfg.Storage.L1CacheSize,
			TTL:    cfg.Storage.CacheTTL,
		})
	}

	// Region hierarchy
	tree, watcher, err := buildTree(ctx, cfg.Hierarchy, cm, logger)
	if err != nil {
		log.Fatalf("Failed to load region hierarchy: %v", err)
	}

	engine := rbac.NewEngine(tree).WithMetrics(metrics)

	// Audit pipeline
	sink, auditStore, err := buildAuditSink(cfg.Audit, cm, logger)
	if err != nil {
		log.Fatalf("Failed to set up audit logging: %v", err)
	}

	var recorder audit.Recorder = audit.NoopRecorder{}
	var asyncRecorder *audit.AsyncRecorder
	if sink != nil {
		asyncRecorder = audit.NewAsyncRecorder(sink, cfg.Audit.QueueSize, logger, metrics)
		recorder = asyncRecorder
	}

	cronRunner, err := scheduleRetention(ctx, cfg, auditStore, logger)
	if err != nil {
		log.Fatalf("Failed to schedule audit retention: %v", err)
	}

	// Authentication
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL).
		WithIssuerName(cfg.Auth.Issuer)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	authService := auth.NewService(store, hasher, issuer, recorder, logger, metrics).
		WithMinPasswordLength(cfg.Auth.PasswordMinLength)

	var ssoProvider sso.Provider
	var ssoService *sso.Service
	if cfg.SSO.Enabled {
		ssoProvider, err = sso.NewOIDCProvider(ctx, &sso.OIDCConfig{
			ProviderName: cfg.SSO.ProviderName,
			IssuerURL:    cfg.SSO.IssuerURL,
			ClientID:     cfg.SSO.ClientID,
			ClientSecret: cfg.SSO.ClientSecret,
			RedirectURL:  cfg.SSO.RedirectURL,
			Scopes:       cfg.SSO.Scopes,
		})
		if err != nil {
			log.Fatalf("Failed to initialize OIDC provider: %v", err)
		}
		ssoService = sso.NewService(store, hasher, issuer, cfg.SSO.DefaultRole, recorder, logger, metrics)
	}

	var limiter *middleware.LoginRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLoginRateLimiter(redisClient, cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow, logger, metrics)
	}

	server := api.NewServer(api.Config{
		Directory:         store,
		Engine:            engine,
		Issuer:            issuer,
		AuthService:       authService,
		Hasher:            hasher,
		Recorder:          recorder,
		Logger:            logger,
		Metrics:           metrics,
		AuditStore:        auditStore,
		Tree:              tree,
		SSOProvider:       ssoProvider,
		SSOService:        ssoService,
		RateLimiter:       limiter,
		MinPasswordLength: cfg.Auth.PasswordMinLength,
		CORSOrigins:       cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Probes and metrics on a separate port so they bypass the API middleware
	opsMux := http.NewServeMux()
	observability.NewHealthChecker(cm.Primary(), rawRedis(redisClient)).RegisterHealthEndpoints(opsMux)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: opsMux,
	}

	// Shutdown order: API server first, then everything it feeds. The
	// recorder drains before the connections under its sinks close.
	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return opsServer.Shutdown(ctx)
	})
	if cronRunner != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-cronRunner.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if asyncRecorder != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return asyncRecorder.Close()
		})
	}
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	sm.RegisterShutdownFunc(func(context.Context) error {
		return cm.Close()
	})
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Infof("Health and metrics server listening on %s", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.SampleDBStats(cm.Primary().Stats())
			}
		}
	})

	// Runs once the signal context or a failed server cancels gctx
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return sm.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// buildTree loads the region hierarchy from the configured source. For the
// file source with watching enabled it also returns a watcher the caller
// must run.
func buildTree(ctx context.Context, cfg config.HierarchyConfig, cm *storage.ConnectionManager, logger *observability.Logger) (*hierarchy.Tree, *hierarchy.Watcher, error) {
	switch cfg.Source {
	case "db":
		store, err := hierarchy.NewDBStore(cm.Primary())
		if err != nil {
			return nil, nil, err
		}
		idx, err := store.BuildIndex(ctx)
		if err != nil {
			return nil, nil, err
		}
		return hierarchy.NewTree(idx), nil, nil
	case "file":
		idx, err := hierarchy.LoadIndexFromFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		tree := hierarchy.NewTree(idx)
		if cfg.Watch {
			return tree, hierarchy.NewWatcher(cfg.FilePath, tree, logger), nil
		}
		return tree, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown hierarchy source: %s", cfg.Source)
	}
}

// buildAuditSink assembles the configured sinks. The returned store is
// non-nil only when the database sink is active; it backs the audit query
// endpoints and the retention sweep.
func buildAuditSink(cfg config.AuditConfig, cm *storage.ConnectionManager, logger *observability.Logger) (audit.Logger, audit.Store, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	var sinks []audit.Logger
	var store audit.Store

	if cfg.LogToDB {
		dbLogger, err := audit.NewDBLogger(cm.Primary())
		if err != nil {
			return nil, nil, err
		}
		dbLogger.WithReplica(cm.Replica)
		sinks = append(sinks, dbLogger)
		store = dbLogger
	}

	if cfg.FilePath != "" {
		fileLogger, err := audit.NewFileLogger(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileLogger)
	}

	switch len(sinks) {
	case 0:
		logger.Warn("Audit logging enabled but no sink configured, events will be dropped")
		return audit.NewNoopLogger(), nil, nil
	case 1:
		return sinks[0], store, nil
	default:
		return audit.NewMultiLogger(sinks...), store, nil
	}
}

// scheduleRetention starts the cron scheduler for the audit retention sweep
// and queues a catch-up run for restarts that missed the scheduled slot.
// Returns nil when retention is not configured.
func scheduleRetention(ctx context.Context, cfg *config.Config, store audit.Store, logger *observability.Logger) (*cron.Cron, error) {
	if store == nil || cfg.Audit.RetentionSchedule == "" {
		return nil, nil
	}

	var uploader audit.Uploader
	policy := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}
	if cfg.Audit.ArchiveEnabled {
		s3Client, err := storage.NewS3Client(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		uploader = s3Client
		policy.ArchiveBucket = cfg.Storage.S3Bucket
	}

	archiver := audit.NewArchiver(store, uploader, policy, logger)
	runSweep := func(ctx context.Context) error {
		_, err := archiver.Run(ctx)
		return err
	}

	cl := cronLogger{logger: logger.WithField("component", "cron")}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)))
	_, err := c.AddFunc(cfg.Audit.RetentionSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), retentionRunTimeout)
		defer cancel()
		if err := runSweep(ctx); err != nil {
			logger.WithError(err).Error("Audit retention run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Audit.RetentionSchedule, err)
	}
	c.Start()
	logger.Infof("Audit retention scheduled: %s (keep %d days)", cfg.Audit.RetentionSchedule, cfg.Audit.RetentionDays)

	async.Go(ctx, logger, retentionRunTimeout, "audit retention sweep", runSweep)

	return c, nil
}

func rawRedis(c *storage.RedisClient) *redis.Client {
	if c == nil {
		return nil
	}
	return c.Client()
}

// cronLogger adapts the application logger to the cron scheduler's
// key-value logging interface.
type cronLogger struct {
	logger *observability.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.withKV(keysAndValues).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.withKV(keysAndValues).WithError(err).Error(msg)
}

func (c cronLogger) withKV(kv []interface{}) *observability.Logger {
	logger := c.logger
	for i := 0; i+1 < len(kv); i += 2 {
		logger = logger.WithField(fmt.Sprint(kv[i]), kv[i+1])
	}
	return logger
}
