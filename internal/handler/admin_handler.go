package handler

import (
	"net/http"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler interface {
	QuickHealthCheck(c *gin.Context)
	ComprehensiveHealthCheck(c *gin.Context)
	RunCleanup(c *gin.Context)
	DeleteConversation(c *gin.Context)
	RefreshProfile(c *gin.Context)
}

type adminHandler struct {
	integrity service.IntegrityService
	cleanup   service.CleanupService
	profiles  service.ProfileService
}

func NewAdminHandler(integrity service.IntegrityService, cleanup service.CleanupService, profiles service.ProfileService) AdminHandler {
	return &adminHandler{
		integrity: integrity,
		cleanup:   cleanup,
		profiles:  profiles,
	}
}

func (h *adminHandler) QuickHealthCheck(c *gin.Context) {
	summary, err := h.integrity.QuickHealthCheck(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": summary})
}

func (h *adminHandler) ComprehensiveHealthCheck(c *gin.Context) {
	report, err := h.integrity.ComprehensiveHealthCheck(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// RunCleanup detects and deletes ghost conversations and orphaned messages in
// one pass. Per-target failures are tallied in the result, not surfaced as an
// HTTP error.
func (h *adminHandler) RunCleanup(c *gin.Context) {
	result := h.cleanup.RunPeriodicCleanup(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *adminHandler) DeleteConversation(c *gin.Context) {
	if err := h.cleanup.DeleteConversationCascade(c.Request.Context(), c.Param("conversationId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *adminHandler) RefreshProfile(c *gin.Context) {
	if err := h.profiles.RefreshSnapshot(c.Request.Context(), c.Param("userId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}
