package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/waitlist/internal/app"
	"github.com/charlesng35/waitlist/internal/handlers"
)

func registerInviteCodeRoutes(api *gin.RouterGroup, rt *app.Runtime, limit gin.HandlerFunc) error {
	handler, err := handlers.NewInviteCodeHandler(rt.Invites)
	if err != nil {
		return err
	}

	invites := api.Group("/invite-codes")
	{
		invites.POST("", handler.Create)
		invites.GET("/:code", handler.Get)
		invites.POST("/:code/use", limit, handler.Use)
	}
	api.GET("/waitlist/members/:id/invite-codes", handler.ListByCreator)
	return nil
}

func registerCommunityCodeRoutes(api *gin.RouterGroup, rt *app.Runtime, limit gin.HandlerFunc) error {
	handler, err := handlers.NewCommunityCodeHandler(rt.Community)
	if err != nil {
		return err
	}

	community := api.Group("/community-codes")
	{
		community.POST("", handler.Create)
		community.GET("/:code", handler.Get)
		community.DELETE("/:code", handler.Delete)
		community.POST("/:code/use", limit, handler.Use)
	}
	return nil
}
