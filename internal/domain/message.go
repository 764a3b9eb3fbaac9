package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message неизменяемо после создания, кроме переключения IsRead и удаления
type Message struct {
	ID             int64      `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Content        string     `json:"content"`
	AttachmentURL  *string    `json:"attachment_url,omitempty"`
	IsRead         bool       `json:"is_read"`
	IsUrgent       bool       `json:"is_urgent"`
	CreatedAt      time.Time  `json:"created_at"`
	SenderUsername string     `json:"sender_username,omitempty"`
	SenderFullName string     `json:"sender_full_name,omitempty"`
}
