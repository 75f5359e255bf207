package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tensrai/dashboard-api/internal/data/cryptoutil"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	mockauth "github.com/tensrai/dashboard-api/internal/mocks/auth"
	"github.com/tensrai/dashboard-api/internal/observability/metrics"
	"github.com/tensrai/dashboard-api/internal/ports"
	"github.com/tensrai/dashboard-api/internal/service"
)

const (
	testOrigin   = "http://localhost:3000"
	testPassword = "correct horse battery"
)

var testLogger = slog.New(slog.DiscardHandler)

type identityEnv struct {
	svc   *service.IdentityService
	users *mockauth.MemoryUserRepo
	sso   *mockauth.MockSSOProvider
}

func newIdentityEnv(t *testing.T, withSSO bool) *identityEnv {
	t.Helper()

	env := &identityEnv{users: mockauth.NewMemoryUserRepo()}
	digester, err := cryptoutil.NewTokenDigester("test-secret")
	require.NoError(t, err)

	opts := service.IdentityServiceOptions{
		Users:    env.users,
		Sessions: mockauth.NewMemorySessionStore(),
		Hasher:   cryptoutil.NewBcryptHasher(4),
		Digester: digester,
		Logger:   testLogger,
		Config: service.IdentityConfig{
			SessionExpiresIn:  15 * time.Minute,
			SessionUpdateAge:  5 * time.Minute,
			CacheMaxAge:       5 * time.Minute,
			MinPasswordLength: 8,
			MaxPasswordLength: 128,
			SignUpEnabled:     true,
		},
	}
	if withSSO {
		env.sso = mockauth.NewMockSSOProvider()
		opts.SSO = env.sso
	}

	env.svc, err = service.NewIdentityService(opts)
	require.NoError(t, err)
	return env
}

// addUser stores an account with a known password and returns it.
func (e *identityEnv) addUser(t *testing.T, email string, role domainauth.Role) *domainauth.User {
	t.Helper()
	hash, err := cryptoutil.NewBcryptHasher(4).Hash(testPassword)
	require.NoError(t, err)
	u := &domainauth.User{Email: email, Role: role, IsActive: true, PasswordHash: hash}
	e.users.Put(u)
	stored, err := e.users.GetByEmail(t.Context(), email)
	require.NoError(t, err)
	return stored
}

// tokenFor signs email in and returns the session token.
func (e *identityEnv) tokenFor(t *testing.T, email string) string {
	t.Helper()
	res, err := e.svc.SignIn(t.Context(), service.SignInInput{Email: email, Password: testPassword})
	require.NoError(t, err)
	return res.Token
}

func testPolicy() *CORSPolicy {
	return NewCORSPolicy(CORSOptions{
		AllowedOrigins: []string{testOrigin, "http://localhost:5173"},
		Logger:         testLogger,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonBody(s string) io.Reader { return strings.NewReader(s) }

func decodeJSONBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var _ ports.AuditReader = (*stubAuditReader)(nil)

// recordingMetrics counts the edge security metrics it receives.
type recordingMetrics struct {
	metrics.Noop

	mu          sync.Mutex
	corsRejects int
	rateLimited []string
	agents      []string
	proxyErrors []error
	requests    []string
}

func (m *recordingMetrics) IncCORSRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.corsRejects++
}

func (m *recordingMetrics) IncRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = append(m.rateLimited, scope)
}

func (m *recordingMetrics) IncSuspiciousAgent(agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents = append(m.agents, agent)
}

func (m *recordingMetrics) IncAuthProxyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proxyErrors = append(m.proxyErrors, err)
}

func (m *recordingMetrics) ObserveRequest(method, route string, status int, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, fmt.Sprintf("%s %s %d", method, route, status))
}
