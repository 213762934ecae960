// Package main is the entry point for the pharmacy API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/AksahyDwivedi/pharmacy/internal/app"
	"github.com/AksahyDwivedi/pharmacy/internal/config"
	"github.com/AksahyDwivedi/pharmacy/internal/domain"
	v1 "github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/http/v1/handlers"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Infow("starting pharmacy server", "store", cfg.DB.Store, "mirror", cfg.Mirror.Mode)

	// --- Primary store, indexes, journal ---
	infra, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open infrastructure", "error", err)
	}
	defer func() {
		if err := infra.Close(); err != nil {
			log.Errorw("failed to close infrastructure", "error", err)
		}
	}()

	// --- Index mirroring ---
	var (
		mirror     domain.Mirror
		dispatcher *indexing.Dispatcher
		pending    func() int
	)
	if cfg.Mirror.Mode == config.MirrorSync {
		mirror = indexing.NewInline(cfg.Mirror.Shards, cfg.Mirror.Timeout, infra.Monitor)
	} else {
		dispatcher = indexing.NewDispatcher(indexing.DispatcherConfig{
			Shards:    cfg.Mirror.Shards,
			QueueSize: cfg.Mirror.QueueSize,
			Timeout:   cfg.Mirror.Timeout,
		}, infra.Monitor)
		mirror = dispatcher
		pending = dispatcher.Pending
	}

	// --- Entity modules ---
	registry := app.NewRegistry()
	modules, err := app.BuildModules(registry, infra.Deps(mirror))
	if err != nil {
		log.Fatalw("failed to build modules", "error", err)
	}
	log.Infow("entity modules initialized", "count", len(modules))

	// --- Reconciliation ---
	reconciler := indexing.NewReconciler(indexing.ReconcilerConfig{
		Workers:   cfg.Reconcile.Workers,
		BatchSize: cfg.Reconcile.BatchSize,
		Interval:  cfg.Reconcile.Interval,
	}, infra.Journal, log)
	app.RegisterTargets(reconciler, modules)
	go reconciler.Run(ctx)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		MetadataRegistry: registry,
		Modules:          app.Routes(modules),
		Reconciler:       reconciler,
		Health: handlers.HealthConfig{
			Pool:    infra.Pool,
			Indexes: infra.Indexes,
			Monitor: infra.Monitor,
			Pending: pending,
		},
		Development: cfg.App.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.App.Addr(),
		Handler:      gzhttp.GzipHandler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	cancel()

	// Queued mirror tasks still run; whatever misses the deadline is
	// repaired or reindexed later.
	if dispatcher != nil {
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Warnw("mirror queue not drained", "pending", dispatcher.Pending(), "error", err)
		}
	}

	log.Info("server stopped")
}
