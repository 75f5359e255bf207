package config

import (
	"strings"
	"time"
)

// SecurityConfig controls response hardening, the CORS allow-list and rate limiting.
type SecurityConfig struct {
	// ExtraOrigins are appended to the built-in CORS allow-list.
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`

	// ServerName replaces the Server response header.
	ServerName string `env:"SERVER_NAME" envDefault:"TensraiDashboard"`

	HSTSMaxAge int `env:"HSTS_MAX_AGE" envDefault:"31536000"`

	RateLimitEnabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX"     envDefault:"100"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW"  envDefault:"1m"`

	// AuthRateLimit* apply to credential-bearing requests under the auth prefix.
	AuthRateLimitMax    int           `env:"AUTH_RATE_LIMIT_MAX"    envDefault:"5"`
	AuthRateLimitWindow time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"15m"`

	// SuspiciousUserAgents are substrings that get a request logged as a scanner.
	SuspiciousUserAgents []string `env:"SUSPICIOUS_USER_AGENTS" envSeparator:"," envDefault:"sqlmap,nmap,nikto,dirb,gobuster,curl,wget"`
}

// Sanitize applies guardrails to security configuration values.
func (s *SecurityConfig) Sanitize() {
	if strings.TrimSpace(s.ServerName) == "" {
		s.ServerName = "TensraiDashboard"
	}
	if s.HSTSMaxAge < 0 {
		s.HSTSMaxAge = 0
	}
	if s.RateLimitMax < 1 {
		s.RateLimitMax = 100
	}
	if s.RateLimitWindow <= 0 {
		s.RateLimitWindow = time.Minute
	}
	if s.AuthRateLimitMax < 1 {
		s.AuthRateLimitMax = 5
	}
	if s.AuthRateLimitWindow <= 0 {
		s.AuthRateLimitWindow = 15 * time.Minute
	}

	agents := s.SuspiciousUserAgents[:0]
	for _, a := range s.SuspiciousUserAgents {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			agents = append(agents, a)
		}
	}
	s.SuspiciousUserAgents = agents
}
