package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crm_chat/internal/service"
	"crm_chat/pkg/logger"
)

type ConversationHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewConversationHandler(chatService service.ChatService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		chatService: chatService,
		log:         log,
	}
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	conversations, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

type CreateConversationRequest struct {
	Name          *string     `json:"name"`
	TeamID        *uuid.UUID  `json:"team_id"`
	IsTeamChannel bool        `json:"is_team_channel"`
	IsChannelType bool        `json:"is_channel_type"`
	ChannelTag    *string     `json:"channel_tag"`
	IsPublic      bool        `json:"is_public"`
	MemberIDs     []uuid.UUID `json:"member_ids"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, err := h.chatService.CreateConversation(c.Request.Context(), service.CreateConversationParams{
		Name:          req.Name,
		TeamID:        req.TeamID,
		IsTeamChannel: req.IsTeamChannel,
		IsChannelType: req.IsChannelType,
		ChannelTag:    req.ChannelTag,
		IsPublic:      req.IsPublic,
		CreatorID:     &userID,
		MemberIDs:     req.MemberIDs,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)

	if err := h.chatService.DeleteConversation(c.Request.Context(), conversationID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
}

func (h *ConversationHandler) GetParticipants(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	participants, err := h.chatService.ListParticipants(c.Request.Context(), conversationID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, participants)
}

type AddParticipantRequest struct {
	UserID  uuid.UUID `json:"user_id" binding:"required"`
	IsAdmin bool      `json:"is_admin"`
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	actorID := c.MustGet("user_id").(uuid.UUID)

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.chatService.AddParticipant(c.Request.Context(), conversationID, actorID, req.UserID, req.IsAdmin)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, participant)
}

func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	actorID := c.MustGet("user_id").(uuid.UUID)

	if err := h.chatService.RemoveParticipant(c.Request.Context(), conversationID, actorID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Participant removed"})
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	userID := c.MustGet("user_id").(uuid.UUID)

	if err := h.chatService.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation marked read"})
}
