package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORSPolicy_Allowed(t *testing.T) {
	p := NewCORSPolicy(CORSOptions{AllowedOrigins: []string{"http://localhost:3000/", " http://localhost:3000", ""}})

	assert.Equal(t, []string{"http://localhost:3000"}, p.Origins())
	assert.True(t, p.Allowed(""), "requests without Origin are allowed")
	assert.True(t, p.Allowed("http://localhost:3000"))
	assert.False(t, p.Allowed("http://localhost:3000/"), "matching is exact")
	assert.False(t, p.Allowed("https://evil.example"))
}

func TestStrictCORS(t *testing.T) {
	handler := testPolicy().StrictCORS()(okHandler())

	tests := []struct {
		name   string
		method string
		path   string
		origin string
		want   int
	}{
		{name: "no origin", method: http.MethodGet, path: "/api/me", want: http.StatusOK},
		{name: "allowed origin", method: http.MethodGet, path: "/api/me", origin: testOrigin, want: http.StatusOK},
		{name: "unknown origin", method: http.MethodGet, path: "/api/me", origin: "https://evil.example", want: http.StatusForbidden},
		{name: "unknown origin on auth post", method: http.MethodPost, path: "/api/auth/sign-in", origin: "https://evil.example", want: http.StatusForbidden},
		{name: "auth preflight from unknown origin", method: http.MethodOptions, path: "/api/auth/sign-in", origin: "https://evil.example", want: http.StatusOK},
		{name: "non-auth preflight from unknown origin", method: http.MethodOptions, path: "/api/users", origin: "https://evil.example", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := serve(handler, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), `"error":"cors_rejected"`)
			}
		})
	}
}

func TestStampCORS(t *testing.T) {
	handler := testPolicy().StampCORS()(okHandler())

	t.Run("no origin adds no CORS headers", func(t *testing.T) {
		rec := serve(handler, httptest.NewRequest(http.MethodGet, "/health/security", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
		for key := range rec.Header() {
			assert.NotContains(t, key, "Access-Control-")
		}
		// Shared caches must not replay a stamped response to a request without Origin.
		assert.Equal(t, []string{"Origin"}, rec.Header().Values("Vary"))
	})

	t.Run("allowed origin is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health/security", nil)
		req.Header.Set("Origin", testOrigin)
		rec := serve(handler, req)
		assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.True(t, headerHasToken(rec.Header(), "Vary", "Origin"))
	})

	t.Run("unknown origin is silently omitted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health/security", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := serve(handler, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORSPolicy_Preflight(t *testing.T) {
	p := testPolicy()

	for _, origin := range []string{testOrigin, "https://evil.example", ""} {
		t.Run("origin="+origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/auth/sign-in", nil)
			if origin != "" {
				req.Header.Set("Origin", origin)
			}
			rec := httptest.NewRecorder()
			p.Preflight(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, "0", rec.Header().Get("Content-Length"))
			assert.Zero(t, rec.Body.Len())
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t,
				"Origin, X-Requested-With, Accept, Authorization, Content-Type, Cache-Control, Pragma",
				rec.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, "GET, POST, PUT, DELETE, PATCH, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Set-Cookie", rec.Header().Get("Access-Control-Expose-Headers"))

			if origin == testOrigin {
				assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestApplyAuthHeaders_DoesNotDuplicateVary(t *testing.T) {
	h := http.Header{}
	h.Add("Vary", "Accept-Encoding, Origin")
	testPolicy().ApplyAuthHeaders(h, testOrigin)
	assert.Len(t, h.Values("Vary"), 1)
}
