package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_chat/internal/service"
	"crm_chat/pkg/logger"
)

type MessageHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewMessageHandler(chatService service.ChatService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		log:         log,
	}
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.chatService.ListMessages(c.Request.Context(), conversationID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content       string  `json:"content" binding:"required"`
	IsUrgent      bool    `json:"is_urgent"`
	AttachmentURL *string `json:"attachment_url"`
}

// SendMessage - REST-путь отправки; используется клиентом, когда сокет
// не подключен
func (h *MessageHandler) SendMessage(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.chatService.PostMessage(c.Request.Context(), conversationID, userID, req.Content, req.IsUrgent, req.AttachmentURL)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)

	if err := h.chatService.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	count, err := h.chatService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}
