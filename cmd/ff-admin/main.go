// Package main initializes and runs the feature-flags admin plane service.
//
// It acts as the composition root for the admin REST API, wiring up the
// Postgres store, the Redis invalidator and the observability server,
// and handling the server lifecycle.
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

	"github.com/gunes1hakan/feature-flags/internal/adminapi"
	"github.com/gunes1hakan/feature-flags/internal/cache"
	"github.com/gunes1hakan/feature-flags/internal/config"
	"github.com/gunes1hakan/feature-flags/internal/database"
	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/observability"
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
	// 3. Wiring (Dependency Injection)
	// -------------------------------------------------------------------------
	repo := store.NewPostgresStore(dbPool)
	invalidator := cache.NewSnapshotCache(redisClient, cfg.Cache.RedisTTL, cfg.Cache.InvalidationChannel)

	api := adminapi.NewAPI(repo, invalidator, cfg.Server.Admin.AdminKeyHash)

	// -------------------------------------------------------------------------
	// 4. HTTP Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(logg, &cfg.Observability,
		database.NewHealthChecker(dbPool),
		cache.NewHealthChecker(redisClient),
	)
	obsServer.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Admin.Host, cfg.Server.Admin.Port),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.Admin.ReadTimeout,
		WriteTimeout:      cfg.Server.Admin.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.Admin.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.Admin.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.Admin.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		logg.Info("admin plane listening", slog.String("addr", srv.Addr))

		var serveErr error
		if cfg.Server.Admin.TLSEnabled {
			serveErr = srv.ListenAndServeTLS(cfg.Server.Admin.TLSCert, cfg.Server.Admin.TLSKey)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("admin plane server failed: %w", serveErr)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logg.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("admin plane shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	logg.Info("service exited successfully")
	return nil
}
