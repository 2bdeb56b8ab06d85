package config

import (
	"fmt"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/env"
)

// WorkerConfig holds all configuration for the cmd/worker binary.
type WorkerConfig struct {
	Database      DatabaseConfig
	Observability ObservabilityConfig

	// InstanceName identifies this process in worker_instances.name. Defaults
	// to the hostname if unset.
	InstanceName string `env:"WATCHKEEPER_INSTANCE_NAME"`

	// Environment tags every result and instance record (e.g. "production",
	// "staging"). Defaults to "production" if unset.
	Environment string `env:"WATCHKEEPER_ENVIRONMENT"`

	// FleetConfigPath points at the YAML file read by internal/config.LoadFleet.
	FleetConfigPath string `env:"WATCHKEEPER_FLEET_CONFIG_PATH"`

	// ShutdownTimeout bounds the context cmd/worker passes to engine.Stop
	// (result flush and final instance update) and to the store's Close. The
	// wait for worker goroutines is bounded separately by
	// Fleet.ShutdownDeadline.
	ShutdownTimeout time.Duration `env:"WATCHKEEPER_SHUTDOWN_TIMEOUT"`
}

// LoadWorkerConfig loads and validates worker configuration from environment.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	if cfg.FleetConfigPath == "" {
		return nil, fmt.Errorf("WATCHKEEPER_FLEET_CONFIG_PATH is required")
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}

	return cfg, nil
}
