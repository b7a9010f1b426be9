package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, rt *app.Runtime) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		return
	}
	health := handlers.Health(rt.Store)
	r.GET("/health", health)
	r.GET("/api/health", health)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
