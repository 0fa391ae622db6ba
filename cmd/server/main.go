package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "github.com/veranemoloko/offline-tiles/internal/api/http"
	cfgpkg "github.com/veranemoloko/offline-tiles/internal/config"
	"github.com/veranemoloko/offline-tiles/internal/domain"
	"github.com/veranemoloko/offline-tiles/internal/overlay"
	"github.com/veranemoloko/offline-tiles/internal/planner"
	repo "github.com/veranemoloko/offline-tiles/internal/repository"
	svc "github.com/veranemoloko/offline-tiles/internal/service"
	"github.com/veranemoloko/offline-tiles/internal/storage"
	"github.com/veranemoloko/offline-tiles/internal/worker"
)

func main() {

	cfg, err := cfgpkg.Load()
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.Error("failed to prepare directories", "error", err)
		} else {
			slog.Error("failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	logger := cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully")

	jobStorage, err := repo.NewJobStorage(cfg.StateFile)
	if err != nil {
		slog.Error("failed to initialize job repository", "error", err)
		os.Exit(1)
	}

	tileStore := storage.NewTileStore(cfg.CacheDir)
	tileWorker := worker.NewTileWorker(tileStore, worker.Options{
		URLTemplate:  cfg.TileURLTemplate,
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.TileTimeout,
		Retries:      cfg.TileRetries,
		RetryBackoff: cfg.RetryBackoff,
		MaxTileSize:  cfg.MaxTileSize,
	}, logger)

	jobService := svc.NewJobService(jobStorage, svc.EngineConfig{
		Planner: planner.Default(),
		Tiles:   tileWorker,
		Cache:   tileStore,
		Workers: cfg.Workers,
	}, logger)

	if n, err := jobService.RecoverInterruptedJobs(context.Background()); err != nil {
		slog.Error("failed to recover interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Info("interrupted jobs recovered", "count", n)
	}

	switcher, err := overlay.NewSwitcher(domain.OverlaySource(cfg.OverlaySource), tileWorker, tileStore, logger)
	if err != nil {
		slog.Error("failed to initialize overlay", "error", err)
		os.Exit(1)
	}

	router := h.NewRouter(jobService, switcher, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout + cfg.TileTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting",
			"address", server.Addr,
			"cache_dir", cfg.CacheDir,
			"workers", cfg.Workers,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	} else {
		slog.Info("server stopped gracefully")
	}

	if err := jobService.Shutdown(shutdownCtx); err != nil {
		slog.Error("job service shutdown failed", "error", err)
	}
}
