package httpx

import (
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// HealthInfo describes what the status endpoints report.
type HealthInfo struct {
	RateLimitEnabled bool
	TracingEnabled   bool
	MetricsEnabled   bool
	ServiceName      string
	OTLPEndpoint     string
	Now              func() time.Time
}

func (i HealthInfo) now() string {
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// securityHealthHandler reports the active security middleware.
// GET /health/security.
func securityHealthHandler(info HealthInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"security": map[string]any{
				"helmet":    "enabled",
				"cors":      "enabled",
				"rateLimit": enabled(info.RateLimitEnabled),
				"timestamp": info.now(),
			},
		})
	}
}

// observabilityHealthHandler reports the logging, metrics and tracing setup.
// GET /health/observability.
func observabilityHealthHandler(info HealthInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		tracing := "disabled"
		if info.TracingEnabled {
			tracing = "enabled-otlp-connected"
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status": "healthy",
			"observability": map[string]any{
				"logging":      "enabled",
				"auditLogging": "enabled",
				"metrics":      enabled(info.MetricsEnabled),
				"tracing":      tracing,
				"openTelemetry": map[string]string{
					"service":  info.ServiceName,
					"endpoint": info.OTLPEndpoint,
				},
				"timestamp": info.now(),
			},
		})
	}
}
