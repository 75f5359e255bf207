package httpx

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/tensrai/dashboard-api/internal/observability/metrics"
)

// contentSecurityPolicy restricts the API's own responses; the dashboard is served elsewhere.
const contentSecurityPolicy = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; " +
	"img-src 'self' data: https:; connect-src 'self' ws: wss:; font-src 'self'; object-src 'none'; " +
	"media-src 'self'; frame-src 'none'; base-uri 'self'; form-action 'self'; frame-ancestors 'self'; " +
	"script-src-attr 'none'; upgrade-insecure-requests"

// SecurityHeadersOptions configures SecurityHeaders.
type SecurityHeadersOptions struct {
	ServerName string
	// HSTSMaxAge in seconds; zero disables Strict-Transport-Security.
	HSTSMaxAge int
}

// SecurityHeaders sets hardening headers on every response.
func SecurityHeaders(opts SecurityHeadersOptions) func(http.Handler) http.Handler {
	server := opts.ServerName
	if server == "" {
		server = "TensraiDashboard"
	}
	hsts := ""
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge) + "; includeSubDomains; preload"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Origin-Agent-Cluster", "?1")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Download-Options", "noopen")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}

			h.Set("Server", server)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Del("X-Powered-By")

			next.ServeHTTP(&headerGuard{ResponseWriter: w}, r)
		})
	}
}

// headerGuard drops X-Powered-By if a handler sets it after the middleware ran.
type headerGuard struct {
	http.ResponseWriter
	wroteHeader bool
}

func (g *headerGuard) WriteHeader(status int) {
	if !g.wroteHeader {
		g.wroteHeader = true
		g.Header().Del("X-Powered-By")
	}
	g.ResponseWriter.WriteHeader(status)
}

func (g *headerGuard) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	return g.ResponseWriter.Write(b)
}

func (g *headerGuard) Flush() {
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (g *headerGuard) Unwrap() http.ResponseWriter { return g.ResponseWriter }

// SuspiciousAgentsOptions configures SuspiciousAgents.
type SuspiciousAgentsOptions struct {
	// Patterns are lower-case substrings matched against the User-Agent.
	Patterns []string
	Logger   *slog.Logger
	Metrics  metrics.SecurityMetrics
}

// SuspiciousAgents logs requests from scanner-like user agents. It never blocks them.
func SuspiciousAgents(opts SuspiciousAgentsOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	patterns := make([]string, 0, len(opts.Patterns))
	for _, p := range opts.Patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if agent := matchAgent(r.UserAgent(), patterns); agent != "" {
				m.IncSuspiciousAgent(agent)
				logger.WarnContext(r.Context(), "Suspicious user agent detected",
					slog.String("ip", clientIP(r)),
					slog.String("user_agent", r.UserAgent()),
					slog.String("url", r.URL.RequestURI()),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchAgent(ua string, patterns []string) string {
	if ua == "" {
		return ""
	}
	ua = strings.ToLower(ua)
	for _, p := range patterns {
		if strings.Contains(ua, p) {
			return p
		}
	}
	return ""
}

// clientIP returns the request's client address without the port. RemoteAddr holds
// the socket peer unless RealIP accepted a forwarded address from a trusted proxy.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}
