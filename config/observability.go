package config

import "strings"

const defaultServiceName = "tensrai-backend"

// ObservabilityConfig groups configuration that controls logging, metrics and tracing.
type ObservabilityConfig struct {
	// LogLevel overrides the environment-derived level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL"`

	ServiceName  string `env:"OTEL_SERVICE_NAME"           envDefault:"tensrai-backend"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"http://localhost:4317"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`

	// TracingEnabled turns on span export to OTLPEndpoint.
	TracingEnabled bool `env:"OTEL_TRACING_ENABLED" envDefault:"false"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityConfig) Sanitize() {
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	if c.ServiceName = strings.TrimSpace(c.ServiceName); c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
	if c.OTLPEndpoint == "" {
		c.TracingEnabled = false
	}
}

// TracingActive returns true when spans should be exported after sanitisation.
func (c *ObservabilityConfig) TracingActive() bool {
	return c.TracingEnabled && c.OTLPEndpoint != ""
}
