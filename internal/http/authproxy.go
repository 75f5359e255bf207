package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	obserrors "github.com/tensrai/dashboard-api/internal/observability/errors"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
)

// AuthPrefix is the public mount point of the identity endpoints.
const AuthPrefix = "/api/auth"

// IsAuthPath reports whether path is AuthPrefix itself or lies beneath it.
// "/api/authorization" is not an auth path.
func IsAuthPath(path string) bool {
	return path == AuthPrefix || strings.HasPrefix(path, AuthPrefix+"/")
}

// AuthHandler serves identity requests addressed by absolute, un-prefixed URLs.
// A returned error means the handler could not produce a response.
type AuthHandler interface {
	ServeAuth(w http.ResponseWriter, r *http.Request) error
}

// AuthProxyOptions configures AuthProxy.
type AuthProxyOptions struct {
	Handler AuthHandler
	CORS    *CORSPolicy
	// DefaultHost is used when the request carries no Host header.
	DefaultHost string
	// Timeout bounds a single delegated call.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics metrics.SecurityMetrics
}

// AuthProxy bridges /api/auth/* to the identity handler.
type AuthProxy struct {
	handler     AuthHandler
	cors        *CORSPolicy
	defaultHost string
	timeout     time.Duration
	logger      *slog.Logger
	metrics     metrics.SecurityMetrics
}

// NewAuthProxy constructs an AuthProxy.
func NewAuthProxy(opts AuthProxyOptions) *AuthProxy {
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
	host := opts.DefaultHost
	if host == "" {
		host = "localhost:5001"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AuthProxy{
		handler:     opts.Handler,
		cors:        policy,
		defaultHost: host,
		timeout:     timeout,
		logger:      logger,
		metrics:     m,
	}
}

// TargetURL returns the absolute, un-prefixed URL the identity handler sees for r.
func (p *AuthProxy) TargetURL(r *http.Request) *url.URL {
	host := r.Host
	if host == "" {
		host = p.defaultHost
	}

	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		if first = strings.TrimSpace(first); first != "" {
			scheme = first
		}
	}

	path := r.URL.Path
	if IsAuthPath(path) {
		path = strings.TrimPrefix(path, AuthPrefix)
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &url.URL{Scheme: scheme, Host: host, Path: path, RawQuery: r.URL.RawQuery}
}

// ServeHTTP answers preflights directly and delegates every other method.
// The caller's request is never modified; the identity handler receives a clone.
func (p *AuthProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		p.cors.Preflight(w, r)
		return
	}
	p.cors.ApplyAuthHeaders(w.Header(), r.Header.Get("Origin"))

	target := p.TargetURL(r)
	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	inner := r.Clone(ctx)
	inner.URL = target
	inner.Host = target.Host
	inner.RequestURI = ""

	ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
	err := p.delegate(ww, inner)
	if err == nil {
		return
	}

	p.metrics.IncAuthProxyError(err)
	p.logger.ErrorContext(r.Context(), "identity handler error",
		slog.Any("error", err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("target", target.String()),
		slog.String("ip", clientIP(r)),
	)
	if ww.wroteHeader {
		return
	}
	writeAuthFailure(w)
}

func (p *AuthProxy) delegate(w http.ResponseWriter, r *http.Request) (err error) {
	if p.handler == nil {
		return errors.New("identity handler is not configured")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("identity handler: %w: %v\n%s", obserrors.ErrPanic, rec, debug.Stack())
		}
	}()
	if err := p.handler.ServeAuth(w, r); err != nil {
		return err
	}
	if ctxErr := r.Context().Err(); ctxErr != nil {
		return fmt.Errorf("identity handler: %w", ctxErr)
	}
	return nil
}
