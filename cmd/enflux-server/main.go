package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prilive-com/enflux"
	"github.com/prilive-com/enflux/api"
	"github.com/prilive-com/enflux/source"
)

var (
	listenAddr  = flag.String("listen", "", "listen address (overrides ENFLUX_LISTEN_ADDR)")
	sourcesPath = flag.String("sources", "", "source registry YAML (overrides ENFLUX_SOURCES)")
)

func main() {
	flag.Parse()

	// Load .env file if present (doesn't override existing env vars)
	_ = loadDotEnv(".env")

	logLevel := slog.LevelInfo
	if os.Getenv("ENFLUX_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := enflux.LoadConfig()
	if err != nil {
		return err
	}

	mgr, err := enflux.New(*cfg, enflux.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mgr.Close()

	registry := *sourcesPath
	if registry == "" {
		registry = envDefault("ENFLUX_SOURCES", "sources.yaml")
	}
	if err := registerSources(mgr, registry, logger); err != nil {
		return err
	}

	addr := *listenAddr
	if addr == "" {
		addr = envDefault("ENFLUX_LISTEN_ADDR", ":8080")
	}

	handler := api.New(mgr, api.WithLogger(logger))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("enflux server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	maintenanceDone := make(chan struct{})
	go runMaintenanceLoop(ctx, mgr, logger, maintenanceDone)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	<-maintenanceDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// registerSources loads the YAML registry and registers every source.
// A missing file is not fatal: sources can arrive via the API.
func registerSources(mgr *enflux.Manager, path string, logger *slog.Logger) error {
	configs, err := source.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("source registry not found, starting empty", "path", path)
			return nil
		}
		return err
	}

	for _, cfg := range configs {
		if err := mgr.RegisterSource(cfg); err != nil {
			return err
		}
	}
	logger.Info("source registry loaded", "path", path, "sources", len(configs))
	return nil
}

// runMaintenanceLoop triggers periodic housekeeping until ctx is done.
func runMaintenanceLoop(ctx context.Context, mgr *enflux.Manager, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)

	interval := time.Hour
	if d, err := time.ParseDuration(envDefault("ENFLUX_MAINTENANCE_INTERVAL", "1h")); err == nil {
		interval = d
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := mgr.Maintenance(ctx); err != nil {
				logger.Warn("maintenance failed", "error", err)
			}
		}
	}
}

func envDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
