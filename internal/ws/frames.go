package ws

import (
	"github.com/google/uuid"

	"crm_chat/internal/domain"
)

// Типы кадров клиент -> сервер
const (
	FrameAuthenticate = "authenticate"
	FrameSubscribe    = "subscribe"
	FrameChatMessage  = "chat_message"
)

// Типы кадров сервер -> клиент
const (
	FrameAuthenticated      = "authenticated"
	FrameNewMessage         = "new_message"
	FrameError              = "error"
	FrameUnreadCountChanged = "unread_count_changed"
)

// InboundFrame - любой кадр от клиента; значимые поля зависят от Type
type InboundFrame struct {
	Type           string    `json:"type"`
	Token          string    `json:"token,omitempty"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	IsUrgent       bool      `json:"is_urgent,omitempty"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
}

type AuthenticatedFrame struct {
	Type   string    `json:"type"`
	UserID uuid.UUID `json:"user_id"`
}

type NewMessageFrame struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type UnreadCountChangedFrame struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

func NewAuthenticatedFrame(userID uuid.UUID) AuthenticatedFrame {
	return AuthenticatedFrame{Type: FrameAuthenticated, UserID: userID}
}

func NewNewMessageFrame(message *domain.Message) NewMessageFrame {
	return NewMessageFrame{Type: FrameNewMessage, Message: message}
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

func NewUnreadCountChangedFrame(conversationID uuid.UUID) UnreadCountChangedFrame {
	return UnreadCountChangedFrame{Type: FrameUnreadCountChanged, ConversationID: conversationID}
}
