package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	m := &recordingMetrics{}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogging(LifecycleOptions{Logger: slog.New(slog.NewJSONHandler(&buf, nil)), Metrics: m}))
	r.Get("/api/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/42", nil)
	req.Header.Set("User-Agent", "dashboard-test")
	rec := serve(r, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/api/users/42", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.Equal(t, "192.0.2.1", line["ip"])
	assert.Equal(t, "dashboard-test", line["user_agent"])
	assert.NotEmpty(t, line["request_id"])
	assert.Contains(t, line, "duration")

	assert.Equal(t, []string{"GET /api/users/{id} 418"}, m.requests)
}

func TestRequestLogging_ImplicitStatus(t *testing.T) {
	m := &recordingMetrics{}
	h := RequestLogging(LifecycleOptions{Logger: testLogger, Metrics: m})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	serve(h, httptest.NewRequest(http.MethodGet, "/somewhere", nil))
	assert.Equal(t, []string{"GET unmatched 200"}, m.requests)
}

func TestRecover(t *testing.T) {
	t.Run("panic becomes 500", func(t *testing.T) {
		var buf bytes.Buffer
		h := Recover(LifecycleOptions{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		}))

		rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/users", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal_error","message":"internal server error"}`, rec.Body.String())
		assert.Contains(t, buf.String(), "unhandled request error")
		assert.Contains(t, buf.String(), "kaboom")
		assert.Contains(t, buf.String(), `"path":"/api/users"`)
	})

	t.Run("completion is logged and counted when wrapped by request logging", func(t *testing.T) {
		var buf bytes.Buffer
		m := &recordingMetrics{}
		lifecycle := LifecycleOptions{Logger: slog.New(slog.NewJSONHandler(&buf, nil)), Metrics: m}
		h := RequestLogging(lifecycle)(Recover(lifecycle)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("kaboom")
		})))

		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)
		var completed map[string]any
		require.NoError(t, json.Unmarshal(lines[1], &completed))
		assert.Equal(t, "request completed", completed["msg"])
		assert.EqualValues(t, http.StatusInternalServerError, completed["status"])
		assert.Equal(t, []string{"GET unmatched 500"}, m.requests)
	})

	t.Run("response already started", func(t *testing.T) {
		h := Recover(LifecycleOptions{Logger: testLogger})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late")
		}))
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Zero(t, rec.Body.Len())
	})

	t.Run("abort handler propagates", func(t *testing.T) {
		h := Recover(LifecycleOptions{Logger: testLogger})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
			serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}
