package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/apperror"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/event"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/hub"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler interface {
	StartConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	MarkConversationRead(c *gin.Context)
	MarkMessageRead(c *gin.Context)
	MarkAllRead(c *gin.Context)
	WatchConversation(c *gin.Context)
	UploadEvidence(c *gin.Context)
	SendRequest(c *gin.Context)
	Respond(c *gin.Context)
	Confirm(c *gin.Context)
	RejectAfterConfirmation(c *gin.Context)
}

type chatHandler struct {
	chat       service.ChatService
	requests   service.RequestService
	reads      service.ReadTracker
	evidence   service.EvidenceService
	reconciler *hub.Reconciler
	events     *hub.Hub
}

func NewChatHandler(
	chat service.ChatService,
	requests service.RequestService,
	reads service.ReadTracker,
	evidence service.EvidenceService,
	reconciler *hub.Reconciler,
	events *hub.Hub,
) ChatHandler {
	return &chatHandler{
		chat:       chat,
		requests:   requests,
		reads:      reads,
		evidence:   evidence,
		reconciler: reconciler,
		events:     events,
	}
}

func (h *chatHandler) StartConversation(c *gin.Context) {
	var input struct {
		PostID string `json:"postId" binding:"required"`
		UserID string `json:"userId" binding:"required"`
		Text   string `json:"text"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.chat.StartConversation(c.Request.Context(), input.PostID, input.UserID, input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	conversations, err := h.chat.ListConversations(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *chatHandler) ListMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")
	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	msgs, err := h.chat.ListMessages(c.Request.Context(), conversationID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var input struct {
		SenderID string `json:"senderId" binding:"required"`
		Text     string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), c.Param("conversationId"), input.SenderID, input.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	err := h.chat.DeleteMessage(c.Request.Context(), c.Param("conversationId"), c.Param("messageId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *chatHandler) MarkConversationRead(c *gin.Context) {
	var input struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reads.MarkConversationRead(c.Request.Context(), c.Param("conversationId"), input.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *chatHandler) MarkMessageRead(c *gin.Context) {
	var input struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.reads.MarkMessageRead(c.Request.Context(), c.Param("conversationId"), c.Param("messageId"), input.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *chatHandler) MarkAllRead(c *gin.Context) {
	var input struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.reads.MarkAllUnreadRead(c.Request.Context(), c.Param("conversationId"), input.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// WatchConversation subscribes the caller to a conversation_gone event for
// this conversation, delivered over their websocket connections.
func (h *chatHandler) WatchConversation(c *gin.Context) {
	var input struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := input.UserID
	h.reconciler.OnConversationGone(c.Param("conversationId"), func(conversationID string) {
		h.events.PushToUser(userID, event.New(event.EventConversationGone, conversationID, nil))
	})
	c.JSON(http.StatusOK, gin.H{"watching": true})
}

func (h *chatHandler) UploadEvidence(c *gin.Context) {
	var input struct {
		Kind   string   `json:"kind" binding:"required"`
		Images []string `json:"images" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := make([][]byte, 0, len(input.Images))
	for _, image := range input.Images {
		decoded, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 image"})
			return
		}
		files = append(files, decoded)
	}

	urls, err := h.evidence.UploadEvidence(c.Request.Context(), input.Kind, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

func (h *chatHandler) SendRequest(c *gin.Context) {
	var input struct {
		Kind       string `json:"kind" binding:"required"`
		SenderID   string `json:"senderId" binding:"required"`
		Reason     string `json:"reason"`
		IDPhotoURL string `json:"idPhotoUrl" binding:"required"`
		Photos     []struct {
			URL         string `json:"url" binding:"required"`
			Description string `json:"description"`
		} `json:"photos"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	photos := make([]model.EvidencePhoto, 0, len(input.Photos))
	for _, photo := range input.Photos {
		photos = append(photos, model.EvidencePhoto{
			URL:         photo.URL,
			Description: photo.Description,
		})
	}

	msg, err := h.requests.SendRequest(c.Request.Context(), service.SendRequestInput{
		Kind:           input.Kind,
		ConversationID: c.Param("conversationId"),
		SenderID:       input.SenderID,
		Reason:         input.Reason,
		IDPhotoURL:     input.IDPhotoURL,
		Photos:         photos,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *chatHandler) Respond(c *gin.Context) {
	var input struct {
		Kind            string `json:"kind" binding:"required"`
		Status          string `json:"status" binding:"required"`
		ResponderID     string `json:"responderId" binding:"required"`
		CounterPhotoURL string `json:"counterPhotoUrl"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.requests.Respond(c.Request.Context(), service.RespondInput{
		Kind:            input.Kind,
		ConversationID:  c.Param("conversationId"),
		MessageID:       c.Param("messageId"),
		Status:          input.Status,
		ResponderID:     input.ResponderID,
		CounterPhotoURL: input.CounterPhotoURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": record})
}

func (h *chatHandler) Confirm(c *gin.Context) {
	var input struct {
		Kind   string `json:"kind" binding:"required"`
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.requests.Confirm(c.Request.Context(), input.Kind, c.Param("conversationId"), c.Param("messageId"), input.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (h *chatHandler) RejectAfterConfirmation(c *gin.Context) {
	var input struct {
		Kind   string `json:"kind" binding:"required"`
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.requests.RejectAfterConfirmation(c.Request.Context(), input.Kind, c.Param("conversationId"), c.Param("messageId"), input.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": record})
}

// respondError maps the error taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperror.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperror.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
