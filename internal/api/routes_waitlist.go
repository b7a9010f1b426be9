package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/handlers"
)

func registerWaitlistRoutes(api *gin.RouterGroup, rt *app.Runtime) error {
	handler, err := handlers.NewWaitlistHandler(rt.Waitlist)
	if err != nil {
		return err
	}

	members := api.Group("/waitlist/members")
	{
		members.POST("", handler.Insert)
		members.GET("", handler.List)
		members.GET("/:id", handler.Get)
		members.POST("/:id/move", handler.Move)
		members.PUT("/:id/contact", handler.AttachContact)
		members.DELETE("/:id", handler.Delete)
	}
	api.GET("/waitlist/lookup", handler.Lookup)
	api.DELETE("/waitlist/contacts", handler.DeleteByContact)
	return nil
}
