// Command worker runs one Worker Instance: it loads the probe fleet
// configuration, validates it, and drives the scheduler, job queue, probe
// executors, classifier, metrics aggregator, fan-out hub and result store
// writer through their full lifecycle until an interrupt or SIGTERM arrives.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/config"
	"github.com/watchkeeper/watchkeeper/internal/engine"
	"github.com/watchkeeper/watchkeeper/internal/store"
	"github.com/watchkeeper/watchkeeper/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("load worker config: %v", err)
	}

	_, logger, err := observability.InitLogger(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	slog.SetDefault(logger)

	if _, err := observability.InitTracerProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled); err != nil {
		logger.Error("init tracer provider failed", "error", err)
	}
	if _, err := observability.InitMeterProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled); err != nil {
		logger.Error("init meter provider failed", "error", err)
	}

	spec, err := config.LoadFleet(cfg.FleetConfigPath)
	if err != nil {
		logger.Error("load fleet config failed", "path", cfg.FleetConfigPath, "error", err)
		os.Exit(1)
	}

	fleet, report := config.Validate(spec, 0)
	for _, w := range report.Warnings {
		logger.Warn("fleet config warning", "detail", w)
	}
	if !report.OK() {
		for _, e := range report.Errors {
			logger.Error("fleet config error", "detail", e)
		}
		os.Exit(1)
	}

	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		logger.Error("open result store failed", "error", err)
		os.Exit(1)
	}

	instanceName := cfg.InstanceName
	host, _ := os.Hostname()
	if instanceName == "" {
		if host != "" {
			instanceName = host
		} else {
			instanceName = "watchkeeper-worker"
		}
	}

	eng, err := engine.New(instanceName, host, buildVersion, cfg.Environment, fleet, repo, spillPath(fleet), engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine construction failed", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(ctx); err != nil {
		logger.Error("engine start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("watchkeeper worker started", "instance", instanceName, "cron", fleet.CronSchedule)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight probes")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop failed", "error", err)
		os.Exit(1)
	}
	if err := repo.Close(shutdownCtx); err != nil {
		logger.Error("result store close failed", "error", err)
	}
	logger.Info("watchkeeper worker stopped")
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (store.Repository, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.NewSQLiteRepository(ctx, cfg.DSN)
	default:
		return store.NewPostgresRepository(ctx, store.PostgresConfig{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTime) * time.Second,
		})
	}
}

func spillPath(fleet *config.Fleet) string {
	if fleet.DeadLetterSpillPath != "" {
		return fleet.DeadLetterSpillPath
	}
	return "watchkeeper-spill.jsonl"
}

// buildVersion is overridden at build time via -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"
