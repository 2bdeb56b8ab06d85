// Command apiserver runs the same probing engine as cmd/worker, fronted by a
// thin HTTP surface: a health check, a Prometheus scrape route, an SSE
// stream of classified results, and routes for the Controller's status,
// trigger, job cancel/retry and result-listing operations. It exists to give engine.Controller and the
// Metrics Aggregator a caller; the CRUD surface, JWT issuance and dashboard
// named out of scope in spec.md §1 are not implemented here.
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

	srvCfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("load server config: %v", err)
	}
	workerCfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("load worker config: %v", err)
	}

	_, logger, err := observability.InitLogger(ctx, srvCfg.Observability.ServiceName, srvCfg.Observability.OTelEnabled)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	slog.SetDefault(logger)

	if _, err := observability.InitTracerProvider(ctx, srvCfg.Observability.ServiceName, srvCfg.Observability.OTelEnabled); err != nil {
		logger.Error("init tracer provider failed", "error", err)
	}
	if _, err := observability.InitMeterProvider(ctx, srvCfg.Observability.ServiceName, srvCfg.Observability.OTelEnabled); err != nil {
		logger.Error("init meter provider failed", "error", err)
	}

	spec, err := config.LoadFleet(workerCfg.FleetConfigPath)
	if err != nil {
		logger.Error("load fleet config failed", "path", workerCfg.FleetConfigPath, "error", err)
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

	repo, err := openRepository(ctx, workerCfg.Database)
	if err != nil {
		logger.Error("open result store failed", "error", err)
		os.Exit(1)
	}

	instanceName := workerCfg.InstanceName
	host, _ := os.Hostname()
	if instanceName == "" {
		if host != "" {
			instanceName = host
		} else {
			instanceName = "watchkeeper-apiserver"
		}
	}

	eng, err := engine.New(instanceName, host, buildVersion, workerCfg.Environment, fleet, repo, spillPath(fleet), engine.WithLogger(logger))
	if err != nil {
		logger.Error("engine construction failed", "error", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx); err != nil {
		logger.Error("engine start failed", "error", err)
		os.Exit(1)
	}

	httpServer := NewHTTPServer(NewRouter(eng), srvCfg.HTTP)
	go func() {
		logger.Info("watchkeeper apiserver listening", "addr", httpServer.Addr())
		if err := httpServer.Start(); err != nil {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop failed", "error", err)
	}
	if err := repo.Close(shutdownCtx); err != nil {
		logger.Error("result store close failed", "error", err)
	}
	logger.Info("watchkeeper apiserver stopped")
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
