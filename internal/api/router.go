package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/middleware"
)

const rateLimitWindow = time.Minute

// NewRouter builds the Gin engine, wires middleware and registers the waitlist routes.
func NewRouter(rt *app.Runtime) (*gin.Engine, error) {
	if rt == nil || rt.Store == nil {
		return nil, fmt.Errorf("runtime with an open store must be provided")
	}
	if rt.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	cfg := rt.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, rt)

	rates, err := middleware.NewStoreRateStore(rt.Store)
	if err != nil {
		return nil, err
	}
	codeUseLimit := middleware.RateLimit(rates, cfg.RateLimit.CodeUsePerMinute, rateLimitWindow)

	api := r.Group("/api")
	if err := registerWaitlistRoutes(api, rt); err != nil {
		return nil, err
	}
	if err := registerSignupRoutes(api, rt); err != nil {
		return nil, err
	}
	if err := registerInviteCodeRoutes(api, rt, codeUseLimit); err != nil {
		return nil, err
	}
	if err := registerCommunityCodeRoutes(api, rt, codeUseLimit); err != nil {
		return nil, err
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
