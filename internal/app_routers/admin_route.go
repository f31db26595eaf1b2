package approuters

import (
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/configuration"

	"github.com/gin-gonic/gin"
)

func AdminRouters(router *gin.Engine, container *configuration.Container) {
	adminRoute := router.Group("/uc/api/admin")
	{
		adminRoute.GET("/health/quick", container.AdminHandler.QuickHealthCheck)
		adminRoute.GET("/health/full", container.AdminHandler.ComprehensiveHealthCheck)
		adminRoute.POST("/cleanup", container.AdminHandler.RunCleanup)
		adminRoute.DELETE("/conversations/:conversationId", container.AdminHandler.DeleteConversation)
		adminRoute.POST("/users/:userId/refresh-profile", container.AdminHandler.RefreshProfile)
	}
}
