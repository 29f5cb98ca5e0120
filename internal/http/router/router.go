package router

import (
	"github.com/gin-gonic/gin"

	"threadline.app/agent/internal/action"
	"threadline.app/agent/internal/http/handler"
	"threadline.app/agent/internal/queue"
	"threadline.app/agent/internal/store"
)

func SetupRoutes(router *gin.Engine, stores store.Provider, producer queue.Producer, engine *action.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	runHandler := handler.NewRunHandler(producer)
	webhookHandler := handler.NewGmailWebhookHandler(stores.Users(), producer)
	proposalHandler := handler.NewProposalHandler(engine, stores.Proposals())

	api := router.Group("/api/v1")
	{
		api.POST("/runs", runHandler.Trigger)
		api.POST("/webhooks/gmail", webhookHandler.Receive)

		api.POST("/threads/:id/proposals", proposalHandler.Propose)
		api.GET("/threads/:id/proposals", proposalHandler.List)
		api.PATCH("/proposals/:id", proposalHandler.UpdateStatus)
	}
}
