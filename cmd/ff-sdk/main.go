// Package main initializes and runs the feature-flags SDK plane service.
//
// It acts as the composition root for the read-heavy evaluation API, wiring
// up the layered snapshot cache (memory, Redis, Postgres), the pub/sub
// invalidation subscriber and the evaluation engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gunes1hakan/feature-flags/internal/cache"
	"github.com/gunes1hakan/feature-flags/internal/config"
	"github.com/gunes1hakan/feature-flags/internal/database"
	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/observability"
	"github.com/gunes1hakan/feature-flags/internal/sdkapi"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// main is the application entrypoint.
func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logg := logger.New(&cfg.App)
	slog.SetDefault(logg)
	cfg.LogConfig(logg)

	// -------------------------------------------------------------------------
	// 2. Infrastructure Setup
	// -------------------------------------------------------------------------
	dbPool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbPool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	go database.RunPoolMonitor(ctx, dbPool, 15*time.Second)
	go cache.RunPoolMonitor(ctx, redisClient, 15*time.Second)

	// -------------------------------------------------------------------------
	// 3. Snapshot Cache Layers
	// -------------------------------------------------------------------------
	repo := store.NewPostgresStore(dbPool)

	memCache, err := cache.NewMemoryCache(cfg.Cache.MemoryCapacity, cfg.Cache.MemoryTTL)
	if err != nil {
		return fmt.Errorf("failed to build memory cache: %w", err)
	}
	go memCache.RunMetricsCollector(ctx, 15*time.Second)

	redisCache := cache.NewSnapshotCache(redisClient, cfg.Cache.RedisTTL, cfg.Cache.InvalidationChannel)
	snapshots := cache.NewSnapshotSource(memCache, redisCache, repo, logg)

	// The subscriber drops stale memory entries when the admin plane
	// publishes an invalidation event.
	subscriber := cache.NewSubscriber(redisClient, cfg.Cache.InvalidationChannel, snapshots, logg)
	subErr := make(chan error, 1)
	go func() {
		if err := subscriber.Run(ctx); err != nil {
			subErr <- fmt.Errorf("invalidation subscriber failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 4. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	// Defects are counted per kind and logged with their full detail.
	defects := observability.NewMetricsDefectReporter(engine.NewLogReporter(logg))
	evaluator := engine.NewEvaluator(logg, defects,
		engine.WithServeDraftFlags(cfg.Evaluation.ServeDraftFlags),
	)
	session := engine.NewSession(repo, snapshots, evaluator, logg)

	api := sdkapi.NewAPI(session, repo)

	// -------------------------------------------------------------------------
	// 5. HTTP Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(logg, &cfg.Observability,
		database.NewHealthChecker(dbPool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.SDK.Host, cfg.Server.SDK.Port),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.SDK.ReadTimeout,
		WriteTimeout:      cfg.Server.SDK.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.SDK.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.SDK.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.SDK.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		logg.Info("sdk plane listening", slog.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("sdk plane server failed: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// 6. Graceful Shutdown
	// -------------------------------------------------------------------------
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case err := <-subErr:
		return err
	case sig := <-sigChan:
		logg.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("sdk plane shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	logg.Info("service exited successfully")
	return nil
}
