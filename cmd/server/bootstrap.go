package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/api"
	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/app/maintenance"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	Runtime     *app.Runtime
	Maintenance *maintenance.Runner
	Router      *gin.Engine
}

// bootstrapRuntime opens the store, builds the services, starts maintenance and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.Runtime, err = app.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise runtime: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Maintenance, err = maintenance.NewRunner(
			stack.Runtime.Store,
			stack.Runtime.Waitlist,
			stack.Runtime.Signup,
			maintenance.WithGaugeSchedule(cfg.Maintenance.GaugeSchedule),
			maintenance.WithPurgeSchedule(cfg.Maintenance.PurgeSchedule),
			maintenance.WithRebalanceSchedule(cfg.Maintenance.RebalanceSchedule),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance: %w", err)
		}
		if err := stack.Maintenance.RefreshGauges(ctx); err != nil {
			log.Warn("initial gauge refresh failed", zap.Error(err))
		}
		if err := stack.Maintenance.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.Runtime)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Maintenance != nil {
		<-s.Maintenance.Stop().Done()
		if err := s.Maintenance.RefreshGauges(ctx); err != nil {
			log.Warn("maintenance shutdown refresh failed", zap.Error(err))
		}
		s.Maintenance = nil
	}

	if s.Runtime != nil {
		if err := s.Runtime.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
		s.Runtime = nil
	}
}
