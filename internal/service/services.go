package service

import (
	"crm_chat/internal/config"
	"crm_chat/internal/repository"
	"crm_chat/pkg/logger"
)

type Services struct {
	Auth      AuthService
	Chat      ChatService
	Audit     AuditService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	audit := NewAuditService(repos.Audit, log)

	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		Chat:      NewChatService(repos.Conversation, repos.Message, repos.User, repos.UnreadCache, audit, cfg.Chat, log),
		Audit:     audit,
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
