package chatclient

import (
	"github.com/google/uuid"

	"crm_chat/internal/domain"
)

// Event - размеченное объединение входящих событий сессии. Обработчик
// получает конкретный тип через type switch вместо разбора строковых
// полей кадра.
type Event interface {
	isEvent()
}

type AuthenticatedEvent struct {
	UserID uuid.UUID
}

type NewMessageEvent struct {
	Message *domain.Message
}

type UnreadCountChangedEvent struct {
	ConversationID uuid.UUID
}

type ErrorEvent struct {
	Message string
}

func (AuthenticatedEvent) isEvent()      {}
func (NewMessageEvent) isEvent()         {}
func (UnreadCountChangedEvent) isEvent() {}
func (ErrorEvent) isEvent()              {}
