package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":5001"`

	// DefaultHost is used to build absolute URLs for the identity handler
	// when a request carries no Host header.
	DefaultHost string `env:"HTTP_DEFAULT_HOST" envDefault:"localhost:5001"`

	// TrustedProxies are the CIDR ranges or addresses of reverse proxies whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Empty trusts nobody.
	TrustedProxies []string `env:"HTTP_TRUSTED_PROXIES"`

	// H2CEnabled serves HTTP/2 over cleartext for deployments behind a TLS-terminating proxy.
	H2CEnabled bool `env:"HTTP_H2C_ENABLED" envDefault:"false"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"     envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":5001"
	}
	if h.DefaultHost == "" {
		h.DefaultHost = "localhost:5001"
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 120 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}
