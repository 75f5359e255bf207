package httpx

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// RateRule is one limit applied per client IP.
type RateRule struct {
	Max    int
	Window time.Duration
}

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	Limiter ports.RateLimiter
	// Global applies to every request.
	Global RateRule
	// Auth additionally applies to mutating requests under the auth prefix.
	Auth    RateRule
	Logger  *slog.Logger
	Metrics metrics.SecurityMetrics
}

// RateLimit enforces per-IP fixed-window limits. When the limiter is unavailable the
// request is let through and a warning is logged.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			checks := []rateCheck{{scope: "global", key: ip, rule: opts.Global}}
			if IsAuthPath(r.URL.Path) && isMutating(r.Method) {
				checks = append(checks, rateCheck{scope: "auth", key: "auth:" + ip, rule: opts.Auth})
			}

			for _, c := range checks {
				if c.rule.Max <= 0 {
					continue
				}
				d, err := opts.Limiter.Allow(r.Context(), c.key, c.rule.Max, c.rule.Window)
				if err != nil {
					logger.WarnContext(r.Context(), "rate limiter unavailable",
						slog.String("scope", c.scope),
						slog.Any("error", err),
					)
					continue
				}
				setRateHeaders(w.Header(), d)
				if !d.Allowed {
					m.IncRateLimited(c.scope)
					retry := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
					w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
					WriteError(w, ErrorParams{
						Code:    http.StatusTooManyRequests,
						ErrCode: "rate_limited",
						Err:     errors.New("too many requests, please try again later"),
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

type rateCheck struct {
	scope string
	key   string
	rule  RateRule
}

func setRateHeaders(h http.Header, d ports.RateDecision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
