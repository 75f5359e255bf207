package config

import (
	"log/slog"
	"os"
	"strings"
)

// Environment names recognised by the application.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Session, password and SSO configuration
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - security.go: CORS allow-list, rate limits and response headers
//   - observability.go: Logging, metrics and tracing configuration
type AppConfig struct {
	// Env is the deployment environment name. NODE_ENV is honoured for
	// parity with the frontend tooling; APP_ENV wins when both are set.
	Env string `env:"NODE_ENV" envDefault:"development"`

	// BaseURL is the externally visible origin of this API.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:5001"`

	// FrontendURL is the dashboard origin. It is always part of the CORS allow-list.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Response hardening, CORS and rate limiting
	Security SecurityConfig `envPrefix:"SECURITY_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectEnv()

	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")

	c.HTTP.Sanitize()
	c.Postgres.Sanitize()
	c.Redis.Sanitize()
	c.Auth.Sanitize()
	c.Security.Sanitize()
	c.Observability.Sanitize()
}

// detectEnv lets APP_ENV override NODE_ENV and normalises the result.
func (c *AppConfig) detectEnv() {
	if v := strings.TrimSpace(os.Getenv("APP_ENV")); v != "" {
		c.Env = v
	}
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	switch c.Env {
	case "":
		c.Env = EnvDevelopment
	case "dev":
		c.Env = EnvDevelopment
	case "prod":
		c.Env = EnvProduction
	}
}

// IsProduction reports whether the application runs in the production environment.
func (c *AppConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// LogLevel returns the configured log level. An explicit LOG_LEVEL wins;
// otherwise production logs at warn and everything else at info.
func (c *AppConfig) LogLevel() slog.Level {
	if lvl, ok := parseLevel(c.Observability.LogLevel); ok {
		return lvl
	}
	if c.IsProduction() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// defaultDevOrigins are the local frontend dev servers that may call the API.
var defaultDevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5000",
	"http://localhost:5173",
	"http://localhost:5174",
}

// AllowedOrigins returns the deduplicated CORS allow-list: the frontend origin
// (or http://localhost:5173 when unset), the local dev servers and any extra
// origins from SECURITY_EXTRA_ORIGINS.
func (c *AppConfig) AllowedOrigins() []string {
	frontend := c.FrontendURL
	if frontend == "" {
		frontend = "http://localhost:5173"
	}

	candidates := make([]string, 0, 1+len(defaultDevOrigins)+len(c.Security.ExtraOrigins))
	candidates = append(candidates, frontend)
	candidates = append(candidates, defaultDevOrigins...)
	candidates = append(candidates, c.Security.ExtraOrigins...)

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, o := range candidates {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
