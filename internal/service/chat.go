package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm_chat/internal/config"
	"crm_chat/internal/domain"
	"crm_chat/internal/repository"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

type CreateConversationParams struct {
	Name          *string
	TeamID        *uuid.UUID
	IsTeamChannel bool
	IsChannelType bool
	ChannelTag    *string
	IsPublic      bool
	CreatorID     *uuid.UUID
	MemberIDs     []uuid.UUID
}

type ChatService interface {
	CreateConversation(ctx context.Context, params CreateConversationParams) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) error

	AddParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID, isAdmin bool) (*domain.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID) error
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	PostMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string, isUrgent bool, attachmentURL *string) (*domain.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, requesterID uuid.UUID) error

	MarkRead(ctx context.Context, conversationID, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type chatService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	unreadCache      repository.UnreadCacheRepository
	audit            AuditService
	cfg              config.ChatConfig
	log              logger.Logger
}

func NewChatService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	unreadCache repository.UnreadCacheRepository,
	audit AuditService,
	cfg config.ChatConfig,
	log logger.Logger,
) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		unreadCache:      unreadCache,
		audit:            audit,
		cfg:              cfg,
		log:              log,
	}
}

func (s *chatService) CreateConversation(ctx context.Context, params CreateConversationParams) (*domain.Conversation, error) {
	// Инвариант: у канала всегда есть создатель
	if params.IsChannelType && params.CreatorID == nil {
		return nil, apperrors.ErrValidation
	}

	now := time.Now()
	conversation := &domain.Conversation{
		ID:            uuid.New(),
		Name:          params.Name,
		TeamID:        params.TeamID,
		IsTeamChannel: params.IsTeamChannel,
		IsChannelType: params.IsChannelType,
		ChannelTag:    params.ChannelTag,
		IsPublic:      params.IsPublic,
		CreatorID:     params.CreatorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.conversationRepo.Create(ctx, conversation); err != nil {
		return nil, err
	}

	// Создатель становится админом беседы
	memberIDs := params.MemberIDs
	if params.CreatorID != nil {
		if err := s.addMember(ctx, conversation.ID, *params.CreatorID, true); err != nil {
			return nil, err
		}
	}
	for _, memberID := range memberIDs {
		if params.CreatorID != nil && memberID == *params.CreatorID {
			continue
		}
		if err := s.addMember(ctx, conversation.ID, memberID, false); err != nil {
			s.log.Warn("Failed to add initial member", "error", err,
				"conversation_id", conversation.ID, "user_id", memberID)
		}
	}

	if err := s.audit.LogEvent(ctx, params.CreatorID, &conversation.ID, domain.EventTypeConversationCreated, map[string]interface{}{
		"is_channel_type": params.IsChannelType,
		"is_team_channel": params.IsTeamChannel,
	}); err != nil {
		s.log.Warn("Failed to write audit log", "error", err)
	}

	return conversation, nil
}

func (s *chatService) addMember(ctx context.Context, conversationID, userID uuid.UUID, isAdmin bool) error {
	participant := &domain.Participant{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		IsAdmin:        isAdmin,
		CreatedAt:      time.Now(),
	}
	return s.conversationRepo.AddParticipant(ctx, participant)
}

func (s *chatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	return s.conversationRepo.ListForUser(ctx, userID)
}

// DeleteConversation: обычную беседу может удалить любой запрашивающий,
// канал - только создатель или менеджер
func (s *chatService) DeleteConversation(ctx context.Context, conversationID, requesterID uuid.UUID) error {
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}

	if conversation.IsChannelType {
		isCreator := conversation.CreatorID != nil && *conversation.CreatorID == requesterID
		if !isCreator {
			requester, err := s.userRepo.GetByID(ctx, requesterID)
			if err != nil {
				return err
			}
			if !requester.IsManager {
				return apperrors.ErrForbidden
			}
		}
	}

	// Снимаем участников до удаления, чтобы сбросить их кеши
	participants, err := s.conversationRepo.ListParticipants(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := s.conversationRepo.Delete(ctx, conversationID); err != nil {
		return err
	}

	s.invalidateUnread(ctx, participants, uuid.Nil)

	if err := s.audit.LogEvent(ctx, &requesterID, &conversationID, domain.EventTypeConversationDeleted, nil); err != nil {
		s.log.Warn("Failed to write audit log", "error", err)
	}

	return nil
}

func (s *chatService) AddParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID, isAdmin bool) (*domain.Participant, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}

	if err := s.addMember(ctx, conversationID, userID, isAdmin); err != nil {
		return nil, err
	}

	participant, err := s.conversationRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.unreadCache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("Failed to invalidate unread cache", "error", err)
	}
	if err := s.audit.LogEvent(ctx, &actorID, &conversationID, domain.EventTypeParticipantAdded, map[string]interface{}{
		"user_id":  userID.String(),
		"is_admin": isAdmin,
	}); err != nil {
		s.log.Warn("Failed to write audit log", "error", err)
	}

	return participant, nil
}

// RemoveParticipant: выйти самому можно всегда, удалить другого - только
// админу беседы
func (s *chatService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID uuid.UUID) error {
	if actorID != userID {
		actor, err := s.conversationRepo.GetParticipant(ctx, conversationID, actorID)
		if err != nil {
			return apperrors.ErrForbidden
		}
		if !actor.IsAdmin {
			return apperrors.ErrForbidden
		}
	}

	if err := s.conversationRepo.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	if err := s.unreadCache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("Failed to invalidate unread cache", "error", err)
	}
	if err := s.audit.LogEvent(ctx, &actorID, &conversationID, domain.EventTypeParticipantRemoved, map[string]interface{}{
		"user_id": userID.String(),
	}); err != nil {
		s.log.Warn("Failed to write audit log", "error", err)
	}

	return nil
}

func (s *chatService) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error) {
	return s.conversationRepo.ListParticipants(ctx, conversationID)
}

func (s *chatService) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	_, err := s.conversationRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if err == apperrors.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *chatService) PostMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string, isUrgent bool, attachmentURL *string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.ErrValidation
	}

	// Отправитель обязан быть участником
	sender, err := s.conversationRepo.GetParticipant(ctx, conversationID, senderID)
	if err != nil {
		if err == apperrors.ErrNotFound {
			return nil, apperrors.ErrValidation
		}
		return nil, err
	}

	message := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		AttachmentURL:  attachmentURL,
		IsRead:         false,
		IsUrgent:       isUrgent,
		CreatedAt:      time.Now(),
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	message.SenderUsername = sender.Username
	message.SenderFullName = sender.FullName

	if err := s.conversationRepo.Touch(ctx, conversationID); err != nil {
		s.log.Warn("Failed to touch conversation", "error", err)
	}

	// Счетчики непрочитанных остальных участников устарели
	participants, err := s.conversationRepo.ListParticipants(ctx, conversationID)
	if err != nil {
		s.log.Warn("Failed to list participants for cache invalidation", "error", err)
	} else {
		s.invalidateUnread(ctx, participants, senderID)
	}

	return message, nil
}

func (s *chatService) invalidateUnread(ctx context.Context, participants []*domain.Participant, except uuid.UUID) {
	userIDs := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.UserID == except {
			continue
		}
		userIDs = append(userIDs, p.UserID)
	}
	if err := s.unreadCache.Invalidate(ctx, userIDs...); err != nil {
		s.log.Warn("Failed to invalidate unread cache", "error", err)
	}
}

func (s *chatService) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > s.cfg.MessagePageMax {
		limit = s.cfg.MessagePageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.messageRepo.List(ctx, conversationID, limit, offset)
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID int64, requesterID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	if message.SenderID != requesterID {
		return apperrors.ErrForbidden
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return err
	}

	if err := s.audit.LogEvent(ctx, &requesterID, &message.ConversationID, domain.EventTypeMessageDeleted, map[string]interface{}{
		"message_id": messageID,
	}); err != nil {
		s.log.Warn("Failed to write audit log", "error", err)
	}

	return nil
}

func (s *chatService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.conversationRepo.SetLastRead(ctx, conversationID, userID, time.Now()); err != nil {
		return err
	}
	if err := s.messageRepo.MarkRead(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.unreadCache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("Failed to invalidate unread cache", "error", err)
	}
	return nil
}

func (s *chatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if count, ok, err := s.unreadCache.Get(ctx, userID); err == nil && ok {
		return count, nil
	}

	count, err := s.messageRepo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.unreadCache.Set(ctx, userID, count, s.cfg.UnreadCacheTTL); err != nil {
		s.log.Warn("Failed to cache unread count", "error", err)
	}

	return count, nil
}
