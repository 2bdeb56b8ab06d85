package config

import (
	"fmt"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/env"
)

// ServerConfig holds configuration for the cmd/apiserver binary: the thin
// health/metrics/SSE shell that calls engine.Controller (§1 cmd/apiserver).
type ServerConfig struct {
	HTTP            HTTPConfig
	Observability   ObservabilityConfig
	ShutdownTimeout time.Duration `env:"WATCHKEEPER_SHUTDOWN_TIMEOUT"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host              string        `env:"WATCHKEEPER_HTTP_HOST"`
	Port              string        `env:"WATCHKEEPER_HTTP_PORT"`
	ReadTimeout       time.Duration `env:"WATCHKEEPER_HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `env:"WATCHKEEPER_HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `env:"WATCHKEEPER_HTTP_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `env:"WATCHKEEPER_HTTP_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `env:"WATCHKEEPER_HTTP_MAX_HEADER_BYTES"`
}

// LoadServerConfig loads and validates server configuration from environment.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return cfg, nil
}
