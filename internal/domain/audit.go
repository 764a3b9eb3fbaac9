package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             int64                  `json:"id"`
	EventTime      time.Time              `json:"event_time"`
	ActorUserID    *uuid.UUID             `json:"actor_user_id,omitempty"`
	ConversationID *uuid.UUID             `json:"conversation_id,omitempty"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
}

const (
	EventTypeConversationCreated = "CONVERSATION_CREATED"
	EventTypeConversationDeleted = "CONVERSATION_DELETED"
	EventTypeParticipantAdded    = "PARTICIPANT_ADDED"
	EventTypeParticipantRemoved  = "PARTICIPANT_REMOVED"
	EventTypeMessageDeleted      = "MESSAGE_DELETED"
)
