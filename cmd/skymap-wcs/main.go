package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/AstroAir/skymap-wcs/internal/api"
	"github.com/AstroAir/skymap-wcs/internal/auth"
	"github.com/AstroAir/skymap-wcs/internal/convert"
	"github.com/AstroAir/skymap-wcs/internal/frame"
	"github.com/AstroAir/skymap-wcs/internal/observability"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	addr := os.Getenv("SKYWCS_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	convertCfg, maxConcurrentPerIP := loadConvertConfig(logger)
	trustProxy := loadTrustProxy(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), logger)
	if err != nil {
		logger.Error("tracing initialization failed", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	store := frame.NewStore()
	pool := convert.NewPool(convertCfg.Workers, logger)

	srv := api.NewServer(addr, logger, authCfg, store, pool, convertCfg, maxConcurrentPerIP, trustProxy)

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SKYWCS_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SKYWCS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SKYWCS_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SKYWCS_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadConvertConfig(logger *slog.Logger) (convert.Config, int) {
	cfg := convert.Config{
		Workers:   runtime.NumCPU(),
		MaxPoints: 100000,
	}
	maxConcurrentPerIP := 8

	if v := os.Getenv("SKYWCS_CONVERT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SKYWCS_CONVERT_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}

	if v := os.Getenv("SKYWCS_CONVERT_MAX_POINTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SKYWCS_CONVERT_MAX_POINTS value, using default", "value", v, "default", cfg.MaxPoints)
		} else {
			cfg.MaxPoints = n
		}
	}

	if v := os.Getenv("SKYWCS_CONVERT_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SKYWCS_CONVERT_MAX_CONCURRENT value, using default", "value", v, "default", maxConcurrentPerIP)
		} else {
			maxConcurrentPerIP = n
		}
	}

	logger.Info("convert config",
		"workers", cfg.Workers,
		"max_points", cfg.MaxPoints,
		"max_concurrent_per_ip", maxConcurrentPerIP,
	)

	return cfg, maxConcurrentPerIP
}

func loadTrustProxy(logger *slog.Logger) bool {
	v := os.Getenv("SKYWCS_TRUST_PROXY")
	if v == "" {
		return false
	}
	trust, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("invalid SKYWCS_TRUST_PROXY value, defaulting to false", "value", v)
		return false
	}
	if trust {
		logger.Info("trusting reverse proxy headers for client IP")
	}
	return trust
}
