package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/internal/app"
)

func newTestRuntime(t *testing.T, opts ...func(*app.Config)) *app.Runtime {
	t.Helper()
	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)
	for _, opt := range opts {
		opt(cfg)
	}
	rt, err := app.NewRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRouter_HealthAndNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newTestRuntime(t))
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		t.Fatalf("expected 200 for /health, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"backend":"memory"`) {
		t.Fatalf("expected backend in health payload, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/unknown", nil)
	router.ServeHTTP(w, req)
	if w.Code != 404 {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newTestRuntime(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/signup/cutoff", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "waitlist_api_latency_seconds")
	require.Contains(t, w.Body.String(), "waitlist_store_transactions_total")
}

func TestRouter_MonitoringDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router, err := NewRouter(newTestRuntime(t, func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
		cfg.Monitoring.Health.Enabled = false
	}))
	require.NoError(t, err)

	for _, path := range []string{"/metrics", "/health"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestNewRouterRequiresRuntime(t *testing.T) {
	_, err := NewRouter(nil)
	require.Error(t, err)
}
