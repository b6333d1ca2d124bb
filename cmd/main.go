package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/duynhne/group-admin-service/config"
	database "github.com/duynhne/group-admin-service/internal/core"
	"github.com/duynhne/group-admin-service/internal/core/domain"
	"github.com/duynhne/group-admin-service/internal/core/messenger"
	"github.com/duynhne/group-admin-service/internal/core/repository"
	"github.com/duynhne/group-admin-service/internal/core/session"
	"github.com/duynhne/group-admin-service/internal/logger"
	logicv1 "github.com/duynhne/group-admin-service/internal/logic/v1"
	v1 "github.com/duynhne/group-admin-service/internal/web/v1"
	"github.com/duynhne/group-admin-service/middleware"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logger.Setup(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Batch run audit log (optional)
	var runs domain.BatchRunRepository = repository.NoopBatchRunRepository{}
	closePool := func() {}
	if cfg.Database.URL != "" {
		pool, err := database.Connect(context.Background(), cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		repo := repository.NewBatchRunRepository(pool)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare batch_runs table")
		}
		runs = repo
		closePool = pool.Close
		log.Info().Msg("Database connection pool established")
	} else {
		log.Info().Msg("Batch run audit log disabled (DATABASE_URL empty)")
	}

	clock := clockwork.NewRealClock()

	registry := session.NewRegistry(clock, session.Config{
		IdleTimeout:   cfg.GetSessionIdleTimeoutDuration(),
		SweepInterval: cfg.GetSessionSweepIntervalDuration(),
	})
	monitor := logicv1.NewMonitor(clock, cfg.GetMonitorIntervalDuration(), cfg.GetBatchCallTimeoutDuration())
	registry.OnRemove(func(id, _ string) { monitor.StopSession(id) })

	orchestrator := logicv1.NewOrchestrator(clock, logicv1.OrchestratorConfig{
		CallDelay:   cfg.GetBatchCallDelayDuration(),
		CallTimeout: cfg.GetBatchCallTimeoutDuration(),
	})

	bridge := messenger.NewBridgeClient(cfg.Bridge.URL, cfg.GetBridgeTimeoutDuration())
	admin := logicv1.NewAdminService(bridge, registry, runs, orchestrator, monitor, clock)
	handler := v1.NewHandler(admin, cfg.Upload.MaxAppStateBytes)

	r := gin.New()

	var isShuttingDown atomic.Bool

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("route", c.FullPath()).Msg("Handler panicked")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))

	// Tracing middleware
	r.Use(middleware.TracingMiddleware(cfg.Service.Name))

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness check
	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(
		middleware.NewIPRateLimiter(clock, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	))
	handler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting group admin service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		registry.Run(gctx)
		return nil
	})

	// Wait for a shutdown signal or a server failure
	<-gctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 && ctx.Err() != nil {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Service stopped with error")
	}

	// 2. Stop group monitors, then log every session out
	monitor.Close()
	registry.Close(shutdownCtx)
	log.Info().Msg("Sessions closed")

	// 3. Close database connections
	closePool()

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}
