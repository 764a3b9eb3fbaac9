package chatclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"crm_chat/internal/domain"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

// Ключи кеша данных, которые контроллер сбрасывает после мутаций.
// Сам кеш (слой выборки и инвалидации) - внешний соседний компонент,
// контроллер только зовет его Invalidate.
const (
	CacheKeyConversations = "conversations"
	CacheKeyUnreadCount   = "unread-count"
)

func CacheKeyMessages(conversationID uuid.UUID) string {
	return "messages:" + conversationID.String()
}

func CacheKeyParticipants(conversationID uuid.UUID) string {
	return "participants:" + conversationID.String()
}

type Invalidator interface {
	Invalidate(keys ...string)
}

// DeleteResult - итог пакетного удаления: часть бесед может быть
// удалена, часть отклонена, и вызывающий показывает оба списка
type DeleteResult struct {
	DeletedIDs []uuid.UUID
	Errors     map[uuid.UUID]error
}

const defaultDeleteTimeout = 10 * time.Second

// Controller сводит REST и realtime-канал в одну модель представления:
// загрузки и мутации идут через data API, доставка сообщений - через
// сессию, отправка - через сокет с откатом на REST.
type Controller struct {
	api           *RESTClient
	session       *Session
	cache         Invalidator
	log           logger.Logger
	deleteTimeout time.Duration

	mu                sync.Mutex
	active            uuid.UUID
	participantCounts map[uuid.UUID]int
}

type ControllerOption func(*Controller)

func WithDeleteTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.deleteTimeout = d }
}

func NewController(api *RESTClient, session *Session, cache Invalidator, log logger.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:               api,
		session:           session,
		cache:             cache,
		log:               log,
		deleteTimeout:     defaultDeleteTimeout,
		participantCounts: make(map[uuid.UUID]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) LoadConversations(ctx context.Context) ([]*domain.Conversation, error) {
	return c.api.ListConversations(ctx)
}

// LoadParticipants запоминает число участников - оно нужно Classify,
// чтобы отличить личную переписку от группы
func (c *Controller) LoadParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.Participant, error) {
	participants, err := c.api.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.participantCounts[conversationID] = len(participants)
	c.mu.Unlock()

	return participants, nil
}

func (c *Controller) LoadMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	return c.api.ListMessages(ctx, conversationID, limit, offset)
}

// SelectConversation переключает активную беседу: подписка на сокете
// плюс свежая загрузка истории, чтобы не потерять отправленное, пока
// подписки не было
func (c *Controller) SelectConversation(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	c.mu.Lock()
	c.active = conversationID
	c.mu.Unlock()

	if c.session != nil {
		c.session.Subscribe(conversationID)
	}

	return c.api.ListMessages(ctx, conversationID, 0, 0)
}

func (c *Controller) ActiveConversation() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SendMessage шлет в активную беседу: через сокет, если сессия готова,
// иначе ровно один POST через data API. Пути не гоняются наперегонки,
// поэтому дубликата сообщения не бывает.
func (c *Controller) SendMessage(ctx context.Context, content string, isUrgent bool, attachmentURL *string) error {
	c.mu.Lock()
	conversationID := c.active
	c.mu.Unlock()

	if conversationID == uuid.Nil {
		return apperrors.ErrValidation
	}

	var err error
	if c.session != nil {
		err = c.session.Send(conversationID, content, isUrgent, attachmentURL)
	} else {
		err = apperrors.ErrNotConnected
	}

	if errors.Is(err, apperrors.ErrNotConnected) {
		if _, err := c.api.PostMessage(ctx, conversationID, content, isUrgent, attachmentURL); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	c.invalidate(CacheKeyMessages(conversationID), CacheKeyConversations, CacheKeyUnreadCount)
	return nil
}

// Classify относит беседу к одной из трех категорий списка. Если
// участники еще не загружены, беседа считается группой.
func (c *Controller) Classify(conversation *domain.Conversation) domain.Kind {
	c.mu.Lock()
	count, known := c.participantCounts[conversation.ID]
	c.mu.Unlock()

	return domain.Classify(conversation, count, known)
}

// DeleteConversations удаляет по одной, последовательно: отказ или
// таймаут по одной беседе не прерывает остальные, итог - частичный
// успех
func (c *Controller) DeleteConversations(ctx context.Context, ids []uuid.UUID) *DeleteResult {
	result := &DeleteResult{
		Errors: make(map[uuid.UUID]error),
	}

	for _, id := range ids {
		itemCtx, cancel := context.WithTimeout(ctx, c.deleteTimeout)
		err := c.api.DeleteConversation(itemCtx, id)
		cancel()

		if err != nil {
			result.Errors[id] = err
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, id)
	}

	if len(result.DeletedIDs) > 0 {
		c.invalidate(CacheKeyConversations, CacheKeyUnreadCount)
	}

	return result
}

func (c *Controller) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID, isAdmin bool) (*domain.Participant, error) {
	participant, err := c.api.AddParticipant(ctx, conversationID, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if count, ok := c.participantCounts[conversationID]; ok {
		c.participantCounts[conversationID] = count + 1
	}
	c.mu.Unlock()

	c.invalidate(CacheKeyParticipants(conversationID))
	return participant, nil
}

func (c *Controller) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := c.api.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	c.mu.Lock()
	if count, ok := c.participantCounts[conversationID]; ok && count > 0 {
		c.participantCounts[conversationID] = count - 1
	}
	c.mu.Unlock()

	c.invalidate(CacheKeyParticipants(conversationID))
	return nil
}

func (c *Controller) DeleteMessage(ctx context.Context, messageID int64) error {
	if err := c.api.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	c.mu.Lock()
	conversationID := c.active
	c.mu.Unlock()

	c.invalidate(CacheKeyMessages(conversationID))
	return nil
}

func (c *Controller) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	if err := c.api.MarkRead(ctx, conversationID); err != nil {
		return err
	}

	c.invalidate(CacheKeyUnreadCount)
	return nil
}

func (c *Controller) UnreadCount(ctx context.Context) (int64, error) {
	return c.api.UnreadCount(ctx)
}

func (c *Controller) invalidate(keys ...string) {
	if c.cache != nil {
		c.cache.Invalidate(keys...)
	}
}
