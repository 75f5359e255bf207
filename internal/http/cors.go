package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/tensrai/dashboard-api/internal/observability/metrics"
)

// CORS header values shared by the stamping pass and the identity routes.
var (
	corsAllowHeaders = []string{
		"Origin", "X-Requested-With", "Accept", "Authorization", "Content-Type", "Cache-Control", "Pragma",
	}
	corsAllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions,
	}
	corsExposeHeaders = []string{"Set-Cookie"}
)

// CORSOptions configures a CORSPolicy.
type CORSOptions struct {
	AllowedOrigins []string
	Logger         *slog.Logger
	Metrics        metrics.SecurityMetrics
}

// CORSPolicy decides cross-origin access from a static allow-list.
//
// StrictCORS fails a request whose
// Origin is not allowed, while StampCORS only omits the headers.
type CORSPolicy struct {
	allowed map[string]struct{}
	origins []string
	logger  *slog.Logger
	metrics metrics.SecurityMetrics
}

// NewCORSPolicy builds a policy. Origins are matched exactly after trimming a trailing slash.
func NewCORSPolicy(opts CORSOptions) *CORSPolicy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	p := &CORSPolicy{
		allowed: make(map[string]struct{}, len(opts.AllowedOrigins)),
		logger:  logger,
		metrics: m,
	}
	for _, o := range opts.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, dup := p.allowed[o]; !dup {
			p.allowed[o] = struct{}{}
			p.origins = append(p.origins, o)
		}
	}
	return p
}

// Origins returns the allow-list in configuration order.
func (p *CORSPolicy) Origins() []string {
	return append([]string(nil), p.origins...)
}

// Allowed reports whether a request carrying origin may proceed. An empty origin
// (same-origin or non-browser client) is always allowed.
func (p *CORSPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// StrictCORS rejects requests whose Origin is not on the allow-list with 403.
// Preflights under the auth prefix are left to the identity routes, which answer them
// for any origin.
func (p *CORSPolicy) StrictCORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if p.Allowed(origin) || (r.Method == http.MethodOptions && IsAuthPath(r.URL.Path)) {
				next.ServeHTTP(w, r)
				return
			}

			p.metrics.IncCORSRejected()
			p.logger.WarnContext(r.Context(), "CORS: Unknown origin attempted",
				slog.String("origin", origin),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			WriteError(w, ErrorParams{
				Code:    http.StatusForbidden,
				ErrCode: "cors_rejected",
				Err:     errors.New("origin not allowed"),
			})
		})
	}
}

// StampCORS adds Access-Control-* headers for allowed origins and silently omits them
// otherwise. Preflights are passed through to the router. Every non-preflight response
// carries Vary: Origin, including requests without an Origin header, because the
// response differs by Origin.
func (p *CORSPolicy) StampCORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			_, ok := p.allowed[origin]
			return ok
		},
		AllowedMethods:     corsAllowMethods,
		AllowedHeaders:     corsAllowHeaders,
		ExposedHeaders:     corsExposeHeaders,
		AllowCredentials:   true,
		OptionsPassthrough: true,
	})
}

// ApplyAuthHeaders sets the full CORS header set used by the identity routes.
// Access-Control-Allow-Origin is only echoed for allowed origins; the rest is unconditional.
func (p *CORSPolicy) ApplyAuthHeaders(h http.Header, origin string) {
	if origin != "" && p.Allowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
	}
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Headers", strings.Join(corsAllowHeaders, ", "))
	h.Set("Access-Control-Allow-Methods", strings.Join(corsAllowMethods, ", "))
	h.Set("Access-Control-Expose-Headers", strings.Join(corsExposeHeaders, ", "))
	if !headerHasToken(h, "Vary", "Origin") {
		h.Add("Vary", "Origin")
	}
}

// Preflight answers OPTIONS requests under the auth prefix with 204 and the full header set.
func (p *CORSPolicy) Preflight(w http.ResponseWriter, r *http.Request) {
	p.ApplyAuthHeaders(w.Header(), r.Header.Get("Origin"))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNoContent)
}

func headerHasToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
