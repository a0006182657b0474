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
	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/cache"
	"github.com/opensource-finance/fraudguard/internal/config"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/explain"
	"github.com/opensource-finance/fraudguard/internal/history"
	"github.com/opensource-finance/fraudguard/internal/metrics"
	"github.com/opensource-finance/fraudguard/internal/model"
	"github.com/opensource-finance/fraudguard/internal/repository"
	"github.com/opensource-finance/fraudguard/internal/scoring"
	"github.com/opensource-finance/fraudguard/internal/telemetry"
	"github.com/opensource-finance/fraudguard/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fraudguard failed", "error", err)
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

	slog.Info("starting fraudguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"history", cfg.History.Backend,
		"audit", cfg.Repository.Enabled,
		"explanation", cfg.Explanation.Transport,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, Version, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	m := metrics.New()

	// Models
	registry, err := model.LoadRegistry(cfg.Models)
	if err != nil {
		return fmt.Errorf("loading models: %w", err)
	}
	if !registry.Any() {
		slog.Warn("no classifier loaded; /predict will return 503")
	}

	// Audit log and SQL history share one database
	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	var sqlHistory domain.HistoryStore
	var auditRepo domain.Repository
	if repo != nil {
		defer repo.Close()
		sqlHistory = repo
		if cfg.Repository.Enabled {
			auditRepo = repo
		}
	}

	store, err := history.New(cfg.History, sqlHistory)
	if err != nil {
		return fmt.Errorf("opening fraud history: %w", err)
	}
	if store != sqlHistory {
		defer store.Close()
	}
	slog.Info("fraud history ready", "backend", cfg.History.Backend)

	explanationCache, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	if explanationCache != nil {
		defer explanationCache.Close()
		if counters := cache.Counters(explanationCache); counters != nil {
			m.WatchCache(counters)
		}
	}

	explainer, err := newExplainer(cfg, explanationCache, m)
	if err != nil {
		return fmt.Errorf("initializing explanation client: %w", err)
	}

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initializing event bus: %w", err)
	}
	var auditWorker *worker.Worker
	if eventBus != nil {
		defer eventBus.Close()
		auditWorker = worker.NewWorker(eventBus, auditRepo)
		if err := auditWorker.Start(); err != nil {
			return err
		}
		m.WatchAuditWorker(func() (int64, int64, int64) {
			st := auditWorker.Stats()
			return st.Processed, st.Failed, st.Alerts
		})
		if cb, ok := eventBus.(*bus.ChannelBus); ok {
			m.WatchBusDrops(cb.Dropped)
		}
	}

	svc := scoring.New(registry, model.NewEngine(cfg.Models.AccurateLatencyFloor), store, scoring.Options{
		RecurringThreshold: cfg.History.RecurringThreshold,
		Explainer:          explainer,
		Bus:                eventBus,
		Recorder:           m,
	})

	handler := api.NewHandler(svc, registry, store, auditRepo, cfg.History.RecurringThreshold, Version)
	srv := api.NewPredictionServer(cfg.Server, handler, m)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("fraudguard is ready",
		"addr", srv.Addr(),
		"fast_model_loaded", registry.Loaded(domain.ModeFast),
		"accurate_model_loaded", registry.Loaded(domain.ModeAccurate),
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
	if auditWorker != nil {
		auditWorker.Stop()
	}

	slog.Info("fraudguard shutdown complete")
	return nil
}

// openRepository opens the SQL database when the audit log is enabled or
// fraud history lives in SQL. It returns nil when neither needs it.
func openRepository(cfg *domain.Config) (*repository.SQLRepository, error) {
	sqlHistory := cfg.History.Backend == "sqlite" || cfg.History.Backend == "postgres"
	if !cfg.Repository.Enabled && !sqlHistory {
		return nil, nil
	}
	if sqlHistory && cfg.Repository.Driver != cfg.History.Backend {
		return nil, fmt.Errorf("history backend %q requires repository.driver %q, got %q",
			cfg.History.Backend, cfg.History.Backend, cfg.Repository.Driver)
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("initializing repository: %w", err)
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	return repo, nil
}

// newExplainer builds the explanation client. In-process backends are
// wrapped with the response cache when one is configured.
func newExplainer(cfg *domain.Config, c domain.Cache, m *metrics.Metrics) (*explain.Client, error) {
	if cfg.Explanation.Transport != domain.TransportLocal || c == nil {
		return explain.NewClientFromConfig(cfg.Explanation, m)
	}

	backend, err := explain.NewBackend(cfg.Explanation)
	if err != nil {
		return nil, err
	}
	cached := explain.NewCachedBackend(backend, c, cfg.Cache.TTL)
	return explain.NewClient(cached, cfg.Explanation.Timeout, m), nil
}
