// FraudGuard - Transaction fraud scoring with explainable verdicts.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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
	"time"

	"github.com/opensource-finance/fraudguard/internal/api"
	"github.com/opensource-finance/fraudguard/internal/cache"
	"github.com/opensource-finance/fraudguard/internal/config"
	"github.com/opensource-finance/fraudguard/internal/explain"
	"github.com/opensource-finance/fraudguard/internal/metrics"
	"github.com/opensource-finance/fraudguard/internal/telemetry"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("explainer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := os.Getenv("FRAUDGUARD_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.Logging, os.Stdout)

	slog.Info("starting explainer",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"backend", cfg.Explanation.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg.Tracing.ServiceName += "-explainer"
	shutdownTracing, err := telemetry.Setup(cfg.Tracing, Version, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	backend, err := explain.NewBackend(cfg.Explanation)
	if err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}

	m := metrics.New()

	responseCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	if responseCache != nil {
		defer responseCache.Close()
		backend = explain.NewCachedBackend(backend, responseCache, cfg.Cache.TTL)
		if counters := cache.Counters(responseCache); counters != nil {
			m.WatchCache(counters)
		}
		slog.Info("explanation cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}

	handler := api.NewExplainHandler(backend, cfg.Explanation.Backend)
	srv := api.NewExplainServer(cfg.ExplainServer, handler, m)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("explainer is ready",
		"addr", srv.Addr(),
		"rate_limit", cfg.ExplainServer.RateLimit,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("explainer shutdown complete")
	return nil
}
