package approuters

import (
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/configuration"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/uc/api/chat")
	{
		chatRoute.POST("/conversations", container.ChatHandler.StartConversation)
		chatRoute.GET("/conversations", container.ChatHandler.ListConversations)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.ListMessages)
		chatRoute.POST("/conversations/:conversationId/messages", container.ChatHandler.SendMessage)
		chatRoute.DELETE("/conversations/:conversationId/messages/:messageId", container.ChatHandler.DeleteMessage)

		chatRoute.POST("/conversations/:conversationId/read", container.ChatHandler.MarkConversationRead)
		chatRoute.POST("/conversations/:conversationId/messages/:messageId/read", container.ChatHandler.MarkMessageRead)
		chatRoute.POST("/conversations/:conversationId/read-all", container.ChatHandler.MarkAllRead)
		chatRoute.POST("/conversations/:conversationId/watch", container.ChatHandler.WatchConversation)

		chatRoute.POST("/evidence", container.ChatHandler.UploadEvidence)
		chatRoute.POST("/conversations/:conversationId/requests", container.ChatHandler.SendRequest)
		chatRoute.POST("/conversations/:conversationId/requests/:messageId/response", container.ChatHandler.Respond)
		chatRoute.POST("/conversations/:conversationId/requests/:messageId/confirm", container.ChatHandler.Confirm)
		chatRoute.POST("/conversations/:conversationId/requests/:messageId/reject", container.ChatHandler.RejectAfterConfirmation)
	}
}
