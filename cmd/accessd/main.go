package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dineos/accessd/pkg/audit"
	"github.com/dineos/accessd/pkg/cache"
	"github.com/dineos/accessd/pkg/config"
	"github.com/dineos/accessd/pkg/middleware"
	"github.com/dineos/accessd/pkg/observability"
	"github.com/dineos/accessd/pkg/rbac"
	"github.com/dineos/accessd/pkg/storage/postgres"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (env vars still win)")
	flag.Parse()
	if *configFile != "" {
		os.Setenv("ACCESSD_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	postgres.ReportPoolStats(ctx, db, 0, metrics.DBConnectionsOpen.Set, metrics.DBConnectionsInUse.Set)

	// Read cache
	var redisClient *redis.Client
	var resolveCache rbac.ResolveCache
	if cfg.Cache.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logrus.Fatalf("Invalid redis URL: %v", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		if cfg.Redis.MaxRetries > 0 {
			opts.MaxRetries = cfg.Redis.MaxRetries
		}
		if cfg.Redis.PoolSize > 0 {
			opts.PoolSize = cfg.Redis.PoolSize
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Fatalf("Failed to ping redis: %v", err)
		}
		defer redisClient.Close()

		resolveCache = cache.NewPermissionCache(redisClient, cfg.Cache.LocalSize, cfg.Cache.TTL, metrics, logger)
		logger.Info("permission cache enabled")
	}

	// Tracing
	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logrus.Fatalf("Failed to initialize telemetry: %v", err)
		}
		defer func() {
			if err := observability.ShutdownOTel(context.Background(), providers, logger); err != nil {
				logger.WithError(err).Warn("telemetry shutdown failed")
			}
		}()
	}

	// Audit trail, written off the request path
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		logrus.Fatalf("Failed to initialize audit log: %v", err)
	}
	auditLogger := audit.NewAsyncLogger(dbAudit, logger)
	defer auditLogger.Close()

	// Engine
	sweepSchedule := ""
	if cfg.Sweeper.Enabled {
		sweepSchedule = cfg.Sweeper.Schedule
	}
	manager := rbac.NewManager(db, rbac.ManagerOptions{
		Logger:        logger,
		Metrics:       metrics,
		Audit:         auditLogger,
		Cache:         resolveCache,
		SweepSchedule: sweepSchedule,
	})
	if err := manager.Bootstrap(ctx); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	if err := manager.StartSweeper(ctx); err != nil {
		logrus.Fatalf("Failed to start assignment sweeper: %v", err)
	}
	defer manager.StopSweeper()

	// API server
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Metrics(metrics), middleware.Principal)
	rbac.NewHandlers(manager, logger).RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(router, "accessd")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server
	healthRouter := mux.NewRouter()
	observability.NewHealthChecker(db, redisClient, logger).RegisterHealthRoutes(healthRouter)
	healthRouter.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Health server failed: %v", err)
		}
	}()

	go func() {
		logger.WithField("addr", apiServer.Addr).Info("accessd listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown failed")
	}
	logger.Info("stopped")
}
