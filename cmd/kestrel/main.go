// Kestrel - Real-time transaction risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/inference"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := loadConfig()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_path", cfg.Model.Path,
		"remote_scoring", cfg.Model.RemoteURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Feature pipeline backed by stored customer activity.
	history := repository.NewHistory(repo)
	pipeline := features.NewPipeline(cfg.Pipeline.ReferenceEpoch, history)
	slog.Info("feature pipeline initialized", "reference_epoch", cfg.Pipeline.ReferenceEpoch)

	// Scoring backend: local engine by default, remote service when configured.
	var (
		scorer domain.Scorer
		engine *inference.Engine
	)
	if cfg.Model.RemoteURL != "" {
		scorer = inference.NewRemoteScorer(cfg.Model.RemoteURL, nil)
		slog.Info("remote scoring enabled", "url", cfg.Model.RemoteURL)
	} else {
		engine = inference.NewEngine(inference.FileLoader(cfg.Model.Path), cacheImpl, cfg.Engine, logger)
		if err := engine.Load(ctx); err != nil {
			// Retryable: /ready reports not-ready until a reload succeeds.
			slog.Error("model load failed, serving not-ready", "error", err)
		} else {
			info := engine.Info()
			slog.Info("model loaded", "name", info.Name, "version", info.Version, "source", info.Source)
		}
		scorer = engine
	}

	overrides, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize override engine", "error", err)
		os.Exit(1)
	}
	defer overrides.Close()

	// Rules are configured via POST /rules - no hardcoded defaults.
	if err := loadRulesFromDatabase(ctx, repo, overrides); err != nil {
		slog.Error("failed to load override rules", "error", err)
		os.Exit(1)
	}
	slog.Info("override engine initialized", "rules_count", overrides.RulesCount())

	service := scoring.NewService(pipeline, scorer, overrides, repo, busImpl, logger)

	var asyncWorker *worker.Worker
	if os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service, logger)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "topic", domain.TopicTransactionReceived)
		}
	}

	srv := api.NewServer(cfg.Server, service, engine, overrides, repo, cacheImpl, busImpl, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	if asyncWorker != nil {
		asyncWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the configuration from the defaults plus KESTREL_*
// environment overrides. KESTREL_DISTRIBUTED=true switches the whole
// component set to PostgreSQL, Redis and NATS.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_DISTRIBUTED") == "true" {
		cfg = domain.DistributedConfig()
	}

	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("KESTREL_MODEL_URL"); v != "" {
		cfg.Model.RemoteURL = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_REFERENCE_EPOCH"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			cfg.Pipeline.ReferenceEpoch = ts
		}
	}
	if os.Getenv("KESTREL_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if v := os.Getenv("KESTREL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadRulesFromDatabase loads persisted override rules into the engine. A
// read failure starts the engine empty rather than blocking startup.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, overrides *rules.Engine) error {
	stored, err := repo.ListOverrideRules(ctx)
	if err != nil {
		slog.Warn("failed to list override rules from database", "error", err)
		return nil
	}

	if len(stored) > 0 {
		slog.Info("loading override rules from database", "count", len(stored))
		return overrides.ReloadRules(stored)
	}

	slog.Info("no override rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║     Transaction Risk Scoring Engine       ║")
	fmt.Println("  ║      Every transaction, scored.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score a transaction or feature vector")
	fmt.Println("    POST /predict/batch     - Score a batch of inputs")
	fmt.Println("    POST /debug/validate    - Validate input without scoring")
	fmt.Println("    GET  /predictions/{id}  - Get prediction by ID")
	fmt.Println("    GET  /transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /stats             - Engine counters")
	fmt.Println("    DELETE /cache           - Clear the prediction cache")
	fmt.Println("    GET  /rules             - List override rules")
	fmt.Println("    POST /rules             - Create an override rule")
	fmt.Println("    POST /rules/reload      - Hot-reload rules from database")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println("    GET  /ready             - Readiness (model loaded)")
	fmt.Println()
}
