package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"stratlab/internal/api"
	"stratlab/internal/config"
	"stratlab/internal/engine"
	"stratlab/internal/service"
	"stratlab/internal/store"
	"stratlab/internal/strategy/builtins"
	"stratlab/internal/telemetry"
	"stratlab/internal/util"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatalf("creating database directory: %v", err)
	}
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	provider, err := service.NewProvider(cfg, logger)
	if err != nil {
		log.Fatalf("configuring data provider: %v", err)
	}

	rec := telemetry.Recorder{}
	bt := engine.NewBacktester(provider, builtins.NewRegistry(), engine.NewEngine(logger, rec),
		cfg.Backtest.RiskConfig, cfg.Backtest.MaxWorkers, logger)
	svc := service.New(bt, runs, rec, logger)
	srv := api.NewServer(cfg, svc, version, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("stratlab-server starting",
		"version", version,
		"http", srv.URL(),
		"grpcPort", cfg.Server.GRPCPort,
		"provider", provider.Name(),
		"strategies", svc.Strategies(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("stratlab-server stopped")
}
