package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/pkg/metrics"
)

// unmatchedRoute labels requests that matched no registered route, keeping
// scanner traffic from minting one series per URL.
const unmatchedRoute = "unmatched"

// Metrics observes latency per route pattern and tracks in-flight requests.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.APIInFlight.Inc()
		start := time.Now()
		defer func() {
			metrics.APIInFlight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			metrics.APILatency.
				WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
				Observe(time.Since(start).Seconds())
		}()
		c.Next()
	}
}
