package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/tensrai/dashboard-api/internal/adapters/redis"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	"github.com/tensrai/dashboard-api/internal/testutil"
)

func newTestRouter(t *testing.T) (*identityEnv, http.Handler) {
	t.Helper()
	env := newIdentityEnv(t, false)
	router := NewRouter(RouterOptions{
		Identity: env.svc,
		CORS:     testPolicy(),
		Security: SecurityHeadersOptions{HSTSMaxAge: 31536000},
		SuspiciousAgents: []string{
			"sqlmap", "nmap", "nikto", "dirb", "gobuster", "curl", "wget",
		},
		AuthTimeout: 5 * time.Second,
		FrontendURL: testOrigin,
		Health:      HealthInfo{RateLimitEnabled: true},
		Logger:      testLogger,
	})
	return env, router
}

func TestRouter_AuthPreflight(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/sign-in", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(router, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "GET, POST, PUT, DELETE, PATCH, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "TensraiDashboard", rec.Header().Get("Server"))
}

func TestRouter_UnknownOriginRejected(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := serve(router, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "cors_rejected")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_HealthEndpoints(t *testing.T) {
	_, router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/health/security", nil)
	req.Header.Set("Origin", testOrigin)
	rec = serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	sec := decodeBody(t, rec)["security"].(map[string]any)
	assert.Equal(t, "enabled", sec["rateLimit"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/health/observability", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics are only mounted when a handler is configured")
}

func TestRouter_SessionFlow(t *testing.T) {
	_, router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-up",
		strings.NewReader(`{"email":"viewer@example.com","password":"`+testPassword+`"}`))
	req.Header.Set("Origin", testOrigin)
	rec = serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	cookie := sessionCookie(rec, testCookie)
	require.NotNil(t, cookie)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "viewer@example.com", decodeBody(t, rec)["user"].(map[string]any)["email"])

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = serve(router, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "USER cannot reach admin routes")
}

func TestRouter_AdminRoutes(t *testing.T) {
	env, router := newTestRouter(t)
	env.addUser(t, "admin@example.com", domainauth.RoleAdmin)
	token := env.tokenFor(t, "admin@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeBody(t, rec)["users"], 1)

	req = httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(router, req)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestRouter_Fallbacks(t *testing.T) {
	_, router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"not_found"`)

	rec = serve(router, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/authorization", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "prefix match is boundary aware")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/auth/ok", nil))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestRouter_AuthMethods(t *testing.T) {
	_, router := newTestRouter(t)

	for _, method := range []string{http.MethodHead, http.MethodTrace, http.MethodConnect, "PROPFIND"} {
		for _, path := range []string{"/api/auth", "/api/auth/ok", "/api/auth/sign-in"} {
			t.Run(method+" "+path, func(t *testing.T) {
				rec := serve(router, httptest.NewRequest(method, path, nil))
				assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
				if method != http.MethodHead {
					assert.Contains(t, rec.Body.String(), `"error":"method_not_allowed"`)
				}
			})
		}
	}

	for _, method := range authProxyMethods {
		rec := serve(router, httptest.NewRequest(method, "/api/auth/unknown-route", nil))
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func newRateLimitedRouter(t *testing.T, trusted []netip.Prefix) http.Handler {
	t.Helper()
	client, _ := testutil.SetupMiniRedis(t)
	env := newIdentityEnv(t, false)
	return NewRouter(RouterOptions{
		Identity:       env.svc,
		CORS:           testPolicy(),
		TrustedProxies: trusted,
		RateLimiter:    redisadapter.NewRateLimiter(client, "test:"),
		RateLimit:      RateRule{Max: 1000, Window: time.Minute},
		AuthRateLimit:  RateRule{Max: 5, Window: 15 * time.Minute},
		AuthTimeout:    5 * time.Second,
		Logger:         testLogger,
	})
}

func signInAttempt(remoteAddr, forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/sign-in",
		strings.NewReader(`{"email":"nobody@example.com","password":"wrong password"}`))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	return req
}

func TestRouter_ForwardedForFromUntrustedPeerIgnored(t *testing.T) {
	router := newRateLimitedRouter(t, nil)

	limited := 0
	for i := range 20 {
		rec := serve(router, signInAttempt("203.0.113.7:40000", fmt.Sprintf("10.0.0.%d", i)))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 15, limited, "rotating X-Forwarded-For must not open new buckets")
}

func TestRouter_ForwardedForFromTrustedProxy(t *testing.T) {
	router := newRateLimitedRouter(t, []netip.Prefix{netip.MustParsePrefix("10.1.0.0/16")})

	for range 5 {
		rec := serve(router, signInAttempt("10.1.2.3:40000", "198.51.100.1"))
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}
	rec := serve(router, signInAttempt("10.1.2.3:40000", "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = serve(router, signInAttempt("10.1.2.3:40000", "198.51.100.2"))
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code, "each forwarded client has its own bucket")
}

func TestRouter_PanicIsLoggedAndCounted(t *testing.T) {
	var buf bytes.Buffer
	m := &recordingMetrics{}
	env := newIdentityEnv(t, false)
	router := NewRouter(RouterOptions{
		Identity: env.svc,
		CORS:     testPolicy(),
		Metrics:  m,
		Logger:   slog.New(slog.NewJSONHandler(&buf, nil)),
	})
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var completed map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "request completed" {
			completed = entry
		}
	}
	require.NotNil(t, completed, buf.String())
	assert.EqualValues(t, http.StatusInternalServerError, completed["status"])
	assert.Equal(t, []string{"GET /boom 500"}, m.requests)
}
