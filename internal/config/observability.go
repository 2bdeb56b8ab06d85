package config

// ObservabilityConfig holds OpenTelemetry bootstrap configuration, consumed
// by pkg/observability.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"WATCHKEEPER_OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}
