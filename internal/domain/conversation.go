package domain

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	Name          *string    `json:"name,omitempty"`
	TeamID        *uuid.UUID `json:"team_id,omitempty"`
	IsTeamChannel bool       `json:"is_team_channel"`
	IsChannelType bool       `json:"is_channel_type"`
	ChannelTag    *string    `json:"channel_tag,omitempty"`
	IsPublic      bool       `json:"is_public"`
	CreatorID     *uuid.UUID `json:"creator_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Participant - членство пользователя в беседе.
// Пара (ConversationID, UserID) уникальна. Поля Username/FullName/IsManager -
// денормализованный снимок из справочника пользователей для отображения.
type Participant struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	IsAdmin        bool       `json:"is_admin"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	IsManager      bool       `json:"is_manager"`
}

// Kind - категория беседы для отображения в списке
type Kind string

const (
	KindDirect  Kind = "direct"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// Classify относит беседу ровно к одной категории:
// канал, если стоит любой из канальных флагов; личная переписка, если
// участников ровно двое; иначе группа. Неизвестное число участников
// (participantsKnown=false) считается группой.
func Classify(c *Conversation, participantCount int, participantsKnown bool) Kind {
	if c.IsTeamChannel || c.IsChannelType {
		return KindChannel
	}
	if participantsKnown && participantCount == 2 {
		return KindDirect
	}
	return KindGroup
}
