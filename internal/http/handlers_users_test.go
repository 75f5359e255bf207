package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainaudit "github.com/tensrai/dashboard-api/internal/domain/audit"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
)

type stubAuditReader struct {
	events []domainaudit.Event
	err    error
	last   domainaudit.Filter
}

func (s *stubAuditReader) List(_ context.Context, f domainaudit.Filter) ([]domainaudit.Event, error) {
	s.last = f
	return s.events, s.err
}

// adminRouter mounts the user handlers with actor injected into every request.
func adminRouter(h *UserHandlers, actor *domainauth.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(SetPrincipalInContext(req.Context(), actor)))
		})
	})
	r.Get("/api/me", h.Me)
	r.Get("/api/users", h.List)
	r.Post("/api/users", h.Create)
	r.Get("/api/users/{id}", h.Get)
	r.Patch("/api/users/{id}/role", h.SetRole)
	r.Post("/api/users/{id}/deactivate", h.Deactivate)
	r.Post("/api/users/{id}/activate", h.Activate)
	r.Post("/api/users/{id}/temp-password", h.TempPassword)
	r.Get("/api/audit", h.AuditLog)
	return r
}

func TestUserHandlers_Me(t *testing.T) {
	h := &UserHandlers{}

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(adminRouter(h, principal(domainauth.RoleUser)), httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user@example.com", body["user"].(map[string]any)["email"])
	assert.Equal(t, "sess-1", body["session"].(map[string]any)["id"])
}

func TestUserHandlers_Lifecycle(t *testing.T) {
	env := newIdentityEnv(t, false)
	admin := env.addUser(t, "admin@example.com", domainauth.RoleAdmin)
	actor := &domainauth.Principal{User: *admin}
	router := adminRouter(&UserHandlers{Svc: env.svc}, actor)

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/users",
		strings.NewReader(`{"email":"Analyst@Example.com","displayName":"Analyst","role":"USER"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.NotEmpty(t, created["tempPassword"])
	user := created["user"].(map[string]any)
	id := user["id"].(string)
	assert.Equal(t, "analyst@example.com", user["email"])
	assert.Equal(t, true, user["mustResetPassword"])

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/users/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/users?limit=1000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)
	assert.EqualValues(t, maxPageSize, list["limit"])
	assert.Len(t, list["users"], 2)

	rec = serve(router, httptest.NewRequest(http.MethodPatch, "/api/users/"+id+"/role", strings.NewReader(`{"role":"ADMIN"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ADMIN", decodeBody(t, rec)["role"])

	rec = serve(router, httptest.NewRequest(http.MethodPatch, "/api/users/"+id+"/role", strings.NewReader(`{"role":"admin"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "role", decodeBody(t, rec)["field"])

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/users/"+id+"/deactivate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["isActive"])

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/users/"+id+"/activate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["isActive"])

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/users/"+id+"/temp-password", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, created["tempPassword"], decodeBody(t, rec)["tempPassword"])
}

func TestUserHandlers_Errors(t *testing.T) {
	env := newIdentityEnv(t, false)
	admin := env.addUser(t, "admin@example.com", domainauth.RoleAdmin)
	router := adminRouter(&UserHandlers{Svc: env.svc}, &domainauth.Principal{User: *admin})

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{name: "unknown user", method: http.MethodGet, target: "/api/users/missing", status: http.StatusNotFound, code: "not_found"},
		{name: "unknown field", method: http.MethodPost, target: "/api/users", body: `{"email":"a@example.com","admin":true}`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "invalid email", method: http.MethodPost, target: "/api/users", body: `{"email":"nope"}`, status: http.StatusBadRequest, code: "validation"},
		{name: "duplicate email", method: http.MethodPost, target: "/api/users", body: `{"email":"admin@example.com"}`, status: http.StatusConflict, code: "conflict"},
		{name: "self deactivation", method: http.MethodPost, target: "/api/users/" + admin.ID + "/deactivate", status: http.StatusForbidden, code: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody(t, rec)["error"])
		})
	}
}

func TestUserHandlers_AuditLog(t *testing.T) {
	actor := principal(domainauth.RoleAdmin)

	t.Run("no reader", func(t *testing.T) {
		rec := serve(adminRouter(&UserHandlers{}, actor), httptest.NewRequest(http.MethodGet, "/api/audit", nil))
		assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
	})

	t.Run("filters", func(t *testing.T) {
		reader := &stubAuditReader{events: []domainaudit.Event{{ID: "1", UserID: "u1", Action: domainaudit.ActionSignIn}}}
		rec := serve(adminRouter(&UserHandlers{Audit: reader}, actor),
			httptest.NewRequest(http.MethodGet, "/api/audit?userId=u1&action=auth.sign_in&since=2025-01-02T03:04:05Z&limit=10", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody(t, rec)["events"], 1)
		assert.Equal(t, "u1", reader.last.UserID)
		assert.Equal(t, domainaudit.ActionSignIn, reader.last.Action)
		assert.Equal(t, 10, reader.last.Limit)
		require.NotNil(t, reader.last.Since)
		assert.True(t, reader.last.Since.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
	})

	t.Run("bad since", func(t *testing.T) {
		rec := serve(adminRouter(&UserHandlers{Audit: &stubAuditReader{}}, actor),
			httptest.NewRequest(http.MethodGet, "/api/audit?since=yesterday", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "since", decodeBody(t, rec)["field"])
	})

	t.Run("reader failure is internal", func(t *testing.T) {
		rec := serve(adminRouter(&UserHandlers{Audit: &stubAuditReader{err: errors.New("pg down")}}, actor),
			httptest.NewRequest(http.MethodGet, "/api/audit", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pg down")
	})
}
