package handler

import (
	"crm_chat/internal/config"
	"crm_chat/internal/service"
	"crm_chat/internal/ws"
	"crm_chat/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *ws.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Auth:         NewAuthHandler(services.Auth, log),
		Conversation: NewConversationHandler(services.Chat, log),
		Message:      NewMessageHandler(services.Chat, log),
		WebSocket:    NewWebSocketHandler(services.Chat, services.Auth, hub, cfg.Chat, log),
	}
}
