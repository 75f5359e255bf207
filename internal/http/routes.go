package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// RouterOptions holds everything the HTTP router needs.
// Identity is required; the remaining collaborators are optional.
type RouterOptions struct {
	Identity interface {
		IdentityService
		UserAdminService
	}
	AuditReader ports.AuditReader
	CORS        *CORSPolicy

	// TrustedProxies lists the peers whose X-Forwarded-For and X-Real-IP headers are
	// believed. Empty means the socket address is always the client address.
	TrustedProxies []netip.Prefix

	RateLimiter   ports.RateLimiter
	RateLimit     RateRule
	AuthRateLimit RateRule

	Security         SecurityHeadersOptions
	SuspiciousAgents []string

	// DefaultHost and AuthTimeout configure the auth path proxy.
	DefaultHost string
	AuthTimeout time.Duration

	FrontendURL   string
	CookieDomain  string
	SecureCookies bool

	Health         HealthInfo
	Metrics        metrics.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// authProxyMethods are the methods forwarded to the identity handler. Anything else
// under the auth prefix is answered with 405 by the router.
var authProxyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions,
}

// NewRouter assembles the chi router with the shared middleware chain and all routes.
//
// Middleware order: RequestID, RealIP, RequestLogging, Recover, SecurityHeaders,
// StampCORS, StrictCORS, SuspiciousAgents, RateLimit. RequestLogging sits outside
// Recover so recovered panics are still logged and counted.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	policy := opts.CORS
	if policy == nil {
		policy = NewCORSPolicy(CORSOptions{Logger: logger, Metrics: m})
	}
	lifecycle := LifecycleOptions{Logger: logger, Metrics: m}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RealIP(opts.TrustedProxies))
	r.Use(RequestLogging(lifecycle))
	r.Use(Recover(lifecycle))
	r.Use(SecurityHeaders(opts.Security))
	r.Use(policy.StampCORS())
	r.Use(policy.StrictCORS())
	r.Use(SuspiciousAgents(SuspiciousAgentsOptions{Patterns: opts.SuspiciousAgents, Logger: logger, Metrics: m}))
	r.Use(RateLimit(RateLimitOptions{
		Limiter: opts.RateLimiter,
		Global:  opts.RateLimit,
		Auth:    opts.AuthRateLimit,
		Logger:  logger,
		Metrics: m,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("route not found")})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusMethodNotAllowed,
			ErrCode: "method_not_allowed",
			Err:     errors.New("method not allowed"),
		})
	})

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	r.Get("/health/security", securityHealthHandler(opts.Health))
	r.Get("/health/observability", observabilityHealthHandler(opts.Health))
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	proxy := NewAuthProxy(AuthProxyOptions{
		Handler: NewIdentityHandler(IdentityHandlerOptions{
			Svc:           opts.Identity,
			CORS:          policy,
			FrontendURL:   opts.FrontendURL,
			CookieDomain:  opts.CookieDomain,
			SecureCookies: opts.SecureCookies,
			Logger:        logger,
		}),
		CORS:        policy,
		DefaultHost: opts.DefaultHost,
		Timeout:     opts.AuthTimeout,
		Logger:      logger,
		Metrics:     m,
	})
	for _, method := range authProxyMethods {
		r.Method(method, AuthPrefix, proxy)
		r.Method(method, AuthPrefix+"/*", proxy)
	}

	gate := NewGate(opts.Identity, logger)
	users := &UserHandlers{Svc: opts.Identity, Audit: opts.AuditReader}

	r.Group(func(r chi.Router) {
		r.Use(gate.RequireAuth())
		r.Get("/api/me", users.Me)
	})
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireRole(domainauth.RoleAdmin))
		r.Get("/api/users", users.List)
		r.Post("/api/users", users.Create)
		r.Get("/api/users/{id}", users.Get)
		r.Patch("/api/users/{id}/role", users.SetRole)
		r.Post("/api/users/{id}/deactivate", users.Deactivate)
		r.Post("/api/users/{id}/activate", users.Activate)
		r.Post("/api/users/{id}/temp-password", users.TempPassword)
		r.Get("/api/audit", users.AuditLog)
	})

	return r
}
