package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tensrai/dashboard-api/config"
	"github.com/tensrai/dashboard-api/internal/adapters/authroles"
	"github.com/tensrai/dashboard-api/internal/adapters/oidc"
	redisadapter "github.com/tensrai/dashboard-api/internal/adapters/redis"
	"github.com/tensrai/dashboard-api/internal/data"
	"github.com/tensrai/dashboard-api/internal/data/cryptoutil"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
	"github.com/tensrai/dashboard-api/internal/service"
)

// IdentityDeps contains the infrastructure the identity stack is built on.
type IdentityDeps struct {
	Config  *config.AppConfig
	DB      *sql.DB
	Redis   redis.UniversalClient
	Metrics metrics.Metrics
	Logger  *slog.Logger
}

// Identity groups the account, session and audit components shared by the API and the admin CLI.
type Identity struct {
	Service       *service.IdentityService
	Audit         *service.AuditService
	AuditLog      *data.AuditLogRepo
	Invalidations *redisadapter.Invalidations
}

// BuildIdentity wires the identity service to Postgres, Redis and, when configured, the SSO provider.
func BuildIdentity(ctx context.Context, deps IdentityDeps) (*Identity, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("config is required")
	case deps.DB == nil:
		return nil, errors.New("database is required")
	case deps.Redis == nil:
		return nil, errors.New("redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	cfg := deps.Config

	digester, err := cryptoutil.NewTokenDigester(cfg.Auth.Secret)
	if err != nil {
		return nil, fmt.Errorf("token digester: %w", err)
	}

	auditLog := data.NewAuditLogRepo(deps.DB)
	audit := service.NewAuditService(service.AuditServiceOptions{
		Sink:    auditLog,
		Logger:  logger,
		Metrics: m,
	})
	invalidations := redisadapter.NewInvalidations(deps.Redis, cfg.Redis.KeyPrefix, logger)

	opts := service.IdentityServiceOptions{
		Users:         data.NewUserRepo(deps.DB),
		Sessions:      redisadapter.NewSessionStoreWithPrefix(deps.Redis, cfg.Redis.KeyPrefix),
		Hasher:        cryptoutil.NewBcryptHasher(cfg.Auth.BcryptCost),
		Digester:      digester,
		Invalidations: invalidations,
		Audit:         audit,
		Metrics:       m,
		Logger:        logger,
		Config:        identityConfig(cfg.Auth),
	}
	if sso := buildSSOProvider(ctx, cfg.Auth.SSO, logger); sso != nil {
		opts.SSO = sso
		opts.Roles = authroles.StaticRoleMapper{AdminGroup: cfg.Auth.SSO.AdminGroup}
	}

	svc, err := service.NewIdentityService(opts)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}

	return &Identity{
		Service:       svc,
		Audit:         audit,
		AuditLog:      auditLog,
		Invalidations: invalidations,
	}, nil
}

// Retry bounds for the invalidation subscription.
var (
	listenBackoffMin = 250 * time.Millisecond
	listenBackoffMax = 30 * time.Second
)

// ListenInvalidations purges this instance's session cache whenever another instance
// revokes a user's sessions. A lost or failed subscription is retried with exponential
// backoff. It blocks until ctx is done.
func (i *Identity) ListenInvalidations(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	purge := func(userID string) { i.Service.PurgeUser(userID) }

	delay := listenBackoffMin
	for ctx.Err() == nil {
		ready := make(chan struct{})
		err := i.Invalidations.Listen(ctx, purge, ready)
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ready:
			delay = listenBackoffMin
		default:
		}
		if err == nil {
			err = errors.New("subscription closed")
		}
		logger.WarnContext(ctx, "session invalidation listener interrupted, retrying",
			"error", err,
			"retry_in", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, listenBackoffMax)
	}
}

func identityConfig(a config.AuthConfig) service.IdentityConfig {
	return service.IdentityConfig{
		CookieName:        a.CookieName,
		SessionExpiresIn:  a.SessionExpiresIn,
		SessionUpdateAge:  a.SessionUpdateAge,
		CacheMaxAge:       a.CacheMaxAge,
		CacheSize:         a.CacheSize,
		MinPasswordLength: a.MinPasswordLength,
		MaxPasswordLength: a.MaxPasswordLength,
		TempPasswordTTL:   a.TempPasswordTTL,
		SignUpEnabled:     a.SignUpEnabled,
	}
}

// buildSSOProvider returns nil when SSO is disabled or cannot be configured;
// email and password sign-in keeps working either way.
//
//nolint:ireturn // callers only need the port.
func buildSSOProvider(ctx context.Context, sso config.SSOConfig, logger *slog.Logger) ports.SSOProvider {
	if !sso.Enabled {
		return nil
	}
	if sso.DiscoveryURL == "" || sso.ClientID == "" || sso.ClientSecret == "" {
		logger.Warn("SSO enabled but required config missing; SSO disabled",
			"discovery_url_empty", sso.DiscoveryURL == "",
			"client_id_empty", sso.ClientID == "",
			"client_secret_empty", sso.ClientSecret == "",
		)
		return nil
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     sso.ClientID,
		ClientSecret: sso.ClientSecret,
		RedirectURL:  sso.RedirectURL,
		Scope:        sso.Scope,
		DiscoveryURL: sso.DiscoveryURL,
	})
	if err != nil {
		logger.Warn("failed to create OIDC provider, SSO disabled", "error", err)
		return nil
	}
	return prov
}
