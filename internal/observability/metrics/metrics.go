package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	obserrors "github.com/tensrai/dashboard-api/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// HTTPMetrics captures request metrics for the API.
type HTTPMetrics interface {
	ObserveRequest(method, route string, status int, durationSeconds float64)
}

// AuthMetrics captures identity outcomes.
type AuthMetrics interface {
	IncAuthEvent(action, result string)
	IncSessionCache(result string)
}

// AuditMetrics captures audit trail writes.
type AuditMetrics interface {
	IncAuditWritten(action string)
	IncAuditFailed(action string, err error)
}

// SecurityMetrics captures requests turned away at the edge.
type SecurityMetrics interface {
	IncCORSRejected()
	IncRateLimited(scope string)
	IncSuspiciousAgent(agent string)
	IncAuthProxyError(err error)
}

// Metrics is the full set emitted by the dashboard API.
type Metrics interface {
	HTTPMetrics
	AuthMetrics
	AuditMetrics
	SecurityMetrics
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, int, float64) {}
func (Noop) IncAuthEvent(string, string)                 {}
func (Noop) IncSessionCache(string)                      {}
func (Noop) IncAuditWritten(string)                      {}
func (Noop) IncAuditFailed(string, error)                {}
func (Noop) IncCORSRejected()                            {}
func (Noop) IncRateLimited(string)                       {}
func (Noop) IncSuspiciousAgent(string)                   {}
func (Noop) IncAuthProxyError(error)                     {}

// Prom implements Metrics backed by Prometheus collectors on its own registry.
type Prom struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	authEvents   *prometheus.CounterVec
	sessionCache *prometheus.CounterVec
	auditWritten *prometheus.CounterVec
	auditFailed  *prometheus.CounterVec
	corsRejected prometheus.Counter
	rateLimited  *prometheus.CounterVec
	suspicious   *prometheus.CounterVec
	proxyErrors  *prometheus.CounterVec
}

// NewProm constructs a Prom with runtime collectors registered alongside the API metrics.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Identity operations by action and result",
		}, []string{"action", "result"}),
		sessionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cache_lookups_total",
			Help:      "Session cache lookups by result",
		}, []string{"result"}),
		auditWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Audit events persisted by action",
		}, []string{"action"}),
		auditFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be persisted",
		}, []string{"action", "error_class"}),
		corsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cors_rejections_total",
			Help:      "Requests rejected for an untrusted Origin",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by rate limiting per scope",
		}, []string{"scope"}),
		suspicious: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_user_agents_total",
			Help:      "Requests carrying a known scanner user agent",
		}, []string{"agent"}),
		proxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_proxy_errors_total",
			Help:      "Auth path delegations that failed",
		}, []string{"error_class"}),
	}
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requests, p.latency, p.authEvents, p.sessionCache, p.auditWritten,
		p.auditFailed, p.corsRejected, p.rateLimited, p.suspicious, p.proxyErrors,
	)
	return p
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prom) Registry() *prometheus.Registry { return p.registry }

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prom) ObserveRequest(method, route string, status int, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (p *Prom) IncAuthEvent(action, result string) {
	p.authEvents.WithLabelValues(action, result).Inc()
}

func (p *Prom) IncSessionCache(result string) {
	p.sessionCache.WithLabelValues(result).Inc()
}

func (p *Prom) IncAuditWritten(action string) {
	p.auditWritten.WithLabelValues(action).Inc()
}

func (p *Prom) IncAuditFailed(action string, err error) {
	p.auditFailed.WithLabelValues(action, classOf(err)).Inc()
}

func (p *Prom) IncCORSRejected() { p.corsRejected.Inc() }

func (p *Prom) IncRateLimited(scope string) {
	p.rateLimited.WithLabelValues(scope).Inc()
}

func (p *Prom) IncSuspiciousAgent(agent string) {
	p.suspicious.WithLabelValues(agent).Inc()
}

func (p *Prom) IncAuthProxyError(err error) {
	p.proxyErrors.WithLabelValues(classOf(err)).Inc()
}

func classOf(err error) string {
	if class := obserrors.Classify(err); class != "" {
		return class
	}
	return "unknown"
}
