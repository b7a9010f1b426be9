package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/waitlist/pkg/metrics"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/members/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.CollectAndCount(metrics.APILatency)
	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/members/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
}

func TestMetricsMiddlewareCollapsesUnmatchedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	before := testutil.CollectAndCount(metrics.APILatency)
	for _, path := range []string{"/wp-admin", "/.env", "/random"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	require.Zero(t, testutil.ToFloat64(metrics.APIInFlight))
	require.Equal(t, before+1, testutil.CollectAndCount(metrics.APILatency))
}
