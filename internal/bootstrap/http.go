package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tensrai/dashboard-api/config"
	redisadapter "github.com/tensrai/dashboard-api/internal/adapters/redis"
	httpx "github.com/tensrai/dashboard-api/internal/http"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// HTTPHandlerConfig contains the dependencies of the API handler.
type HTTPHandlerConfig struct {
	Config *config.AppConfig
	// Identity is required; it serves the auth prefix and the user routes.
	Identity *Identity
	// Redis backs the shared rate limiter; rate limiting is skipped without it.
	Redis   redis.UniversalClient
	Metrics *metrics.Prom
	Logger  *slog.Logger
}

// BuildHTTPHandler assembles the router and wraps it with tracing and, when enabled, h2c.
func BuildHTTPHandler(cfg HTTPHandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	var m metrics.Metrics = metrics.Noop{}
	if cfg.Metrics != nil {
		m = cfg.Metrics
	}

	opts := httpx.RouterOptions{
		CORS: httpx.NewCORSPolicy(httpx.CORSOptions{
			AllowedOrigins: appCfg.AllowedOrigins(),
			Logger:         logger,
			Metrics:        m,
		}),
		RateLimit:        httpx.RateRule{Max: appCfg.Security.RateLimitMax, Window: appCfg.Security.RateLimitWindow},
		AuthRateLimit:    httpx.RateRule{Max: appCfg.Security.AuthRateLimitMax, Window: appCfg.Security.AuthRateLimitWindow},
		Security:         httpx.SecurityHeadersOptions{ServerName: appCfg.Security.ServerName},
		SuspiciousAgents: appCfg.Security.SuspiciousUserAgents,
		DefaultHost:      appCfg.HTTP.DefaultHost,
		AuthTimeout:      appCfg.Auth.HandlerTimeout,
		FrontendURL:      appCfg.FrontendURL,
		CookieDomain:     appCfg.Auth.CookieDomain,
		SecureCookies:    appCfg.IsProduction(),
		Health: httpx.HealthInfo{
			RateLimitEnabled: appCfg.Security.RateLimitEnabled,
			TracingEnabled:   appCfg.Observability.TracingActive(),
			MetricsEnabled:   cfg.Metrics != nil,
			ServiceName:      appCfg.Observability.ServiceName,
			OTLPEndpoint:     appCfg.Observability.OTLPEndpoint,
		},
		Metrics: m,
		Logger:  logger,
	}
	trusted, err := httpx.ParseTrustedProxies(appCfg.HTTP.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring invalid trusted proxies", "error", err)
	}
	opts.TrustedProxies = trusted
	if appCfg.IsProduction() {
		opts.Security.HSTSMaxAge = appCfg.Security.HSTSMaxAge
	}
	if cfg.Identity != nil {
		opts.Identity = cfg.Identity.Service
		opts.AuditReader = cfg.Identity.AuditLog
	}
	if appCfg.Security.RateLimitEnabled && cfg.Redis != nil {
		opts.RateLimiter = rateLimiter(cfg.Redis, appCfg.Redis.KeyPrefix)
	}
	if cfg.Metrics != nil {
		opts.MetricsHandler = cfg.Metrics.Handler()
	}

	var h http.Handler = httpx.NewRouter(opts)
	h = otelhttp.NewHandler(h, appCfg.Observability.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	if appCfg.HTTP.H2CEnabled {
		logger.Info("HTTP/2 cleartext enabled")
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return h
}

//nolint:ireturn // the router only needs the port.
func rateLimiter(client redis.UniversalClient, prefix string) ports.RateLimiter {
	return redisadapter.NewRateLimiter(client, prefix)
}

// StartHTTPServer creates the server and starts serving in the background.
// Serve failures other than a clean shutdown are sent on errCh.
func StartHTTPServer(logger *slog.Logger, cfg config.HTTPConfig, handler http.Handler, errCh chan<- error) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":5001"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				errCh <- err
			}
		}
	}()

	return server
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("HTTP server stopped")
	return nil
}
