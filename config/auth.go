package config

import (
	"strings"
	"time"
)

// SSOConfig contains optional OIDC single sign-on configuration.
// Email and password sign-in is always available; SSO is an additional path.
type SSOConfig struct {
	Enabled      bool   `env:"ENABLED"       envDefault:"false"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:5001/api/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// AdminGroup members are mapped to the ADMIN role; everyone else gets USER.
	AdminGroup string `env:"ADMIN_GROUP"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Secret keys the session token digests stored in Redis. Required.
	Secret string `env:"AUTH_SECRET,required,notEmpty"`

	// SessionExpiresIn is the lifetime of a session after issue or refresh.
	SessionExpiresIn time.Duration `env:"AUTH_SESSION_EXPIRES_IN" envDefault:"15m"`

	// SessionUpdateAge is how often an active session's expiry slides forward.
	SessionUpdateAge time.Duration `env:"AUTH_SESSION_UPDATE_AGE" envDefault:"5m"`

	// CacheMaxAge bounds how long a resolved session is served from memory
	// before the store is consulted again.
	CacheMaxAge time.Duration `env:"AUTH_SESSION_CACHE_MAX_AGE" envDefault:"5m"`
	CacheSize   int           `env:"AUTH_SESSION_CACHE_SIZE"    envDefault:"4096"`

	CookieName   string `env:"AUTH_COOKIE_NAME"   envDefault:"dashboard.session_token"`
	CookieDomain string `env:"AUTH_COOKIE_DOMAIN" envDefault:""`

	MinPasswordLength int `env:"AUTH_MIN_PASSWORD_LENGTH" envDefault:"8"`
	MaxPasswordLength int `env:"AUTH_MAX_PASSWORD_LENGTH" envDefault:"128"`
	BcryptCost        int `env:"AUTH_BCRYPT_COST"         envDefault:"12"`

	// TempPasswordTTL is how long an administrator-issued temporary password stays valid.
	TempPasswordTTL time.Duration `env:"AUTH_TEMP_PASSWORD_TTL" envDefault:"72h"`

	SignUpEnabled bool `env:"AUTH_SIGN_UP_ENABLED" envDefault:"true"`

	// HandlerTimeout bounds a single delegated identity request.
	HandlerTimeout time.Duration `env:"AUTH_HANDLER_TIMEOUT" envDefault:"10s"`

	SSO SSOConfig `envPrefix:"AUTH_SSO_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionExpiresIn <= 0 {
		a.SessionExpiresIn = 15 * time.Minute
	}
	if a.SessionUpdateAge <= 0 || a.SessionUpdateAge > a.SessionExpiresIn {
		a.SessionUpdateAge = min(5*time.Minute, a.SessionExpiresIn)
	}
	if a.CacheMaxAge < 0 {
		a.CacheMaxAge = 0
	}
	if a.CacheMaxAge > a.SessionExpiresIn {
		a.CacheMaxAge = a.SessionExpiresIn
	}
	if a.CacheSize < 1 {
		a.CacheSize = 1
	}
	if strings.TrimSpace(a.CookieName) == "" {
		a.CookieName = "dashboard.session_token"
	}
	if a.MinPasswordLength < 1 {
		a.MinPasswordLength = 1
	}
	if a.MaxPasswordLength < a.MinPasswordLength {
		a.MaxPasswordLength = a.MinPasswordLength
	}
	// bcrypt rejects costs outside [4, 31].
	a.BcryptCost = max(4, min(a.BcryptCost, 31))
	if a.TempPasswordTTL <= 0 {
		a.TempPasswordTTL = 72 * time.Hour
	}
	if a.HandlerTimeout <= 0 {
		a.HandlerTimeout = 10 * time.Second
	}

	a.SSO.ClientID = strings.TrimSpace(a.SSO.ClientID)
	a.SSO.DiscoveryURL = strings.TrimSpace(a.SSO.DiscoveryURL)
	if a.SSO.ClientID == "" || a.SSO.DiscoveryURL == "" {
		a.SSO.Enabled = false
	}
}
