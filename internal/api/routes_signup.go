package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/handlers"
)

func registerSignupRoutes(api *gin.RouterGroup, rt *app.Runtime) error {
	handler, err := handlers.NewSignupHandler(rt.Signup)
	if err != nil {
		return err
	}

	api.GET("/signup/cutoff", handler.GetCutoff)
	api.PUT("/signup/cutoff", handler.SetCutoff)
	api.GET("/waitlist/members/:id/signup", handler.State)
	api.POST("/waitlist/members/:id/signup", handler.MarkSignedUp)
	return nil
}
