package ws

import (
	"sync"

	"github.com/google/uuid"

	"crm_chat/pkg/logger"
)

// Hub держит активные соединения и их подписки. Индексируем в обе стороны:
// по беседе - для рассылки new_message, по пользователю - для сигналов
// о непрочитанных на другие вкладки/устройства.
type Hub struct {
	mu     sync.RWMutex
	byConv map[uuid.UUID]map[*Client]struct{}
	byUser map[uuid.UUID]map[*Client]struct{}
	subs   map[*Client]map[uuid.UUID]struct{}

	convLocks sync.Map // uuid.UUID -> *sync.Mutex
	log       logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		byConv: make(map[uuid.UUID]map[*Client]struct{}),
		byUser: make(map[uuid.UUID]map[*Client]struct{}),
		subs:   make(map[*Client]map[uuid.UUID]struct{}),
		log:    log,
	}
}

// Add регистрирует соединение после успешной аутентификации
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = make(map[*Client]struct{})
	}
	h.byUser[c.userID][c] = struct{}{}
	h.subs[c] = make(map[uuid.UUID]struct{})
}

// Remove снимает все подписки соединения и закрывает его.
// Побочных эффектов в хранилище нет.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()

	for convID := range h.subs[c] {
		delete(h.byConv[convID], c)
		if len(h.byConv[convID]) == 0 {
			delete(h.byConv, convID)
		}
	}
	delete(h.subs, c)

	if set, ok := h.byUser[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}

	h.mu.Unlock()

	c.Close()
}

func (h *Hub) Subscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[c]; !ok {
		return // соединение уже снято
	}
	h.subs[c][conversationID] = struct{}{}

	if h.byConv[conversationID] == nil {
		h.byConv[conversationID] = make(map[*Client]struct{})
	}
	h.byConv[conversationID][c] = struct{}{}
}

// ConversationLock выдает мьютекс беседы. Держа его на время
// фиксации сообщения и постановки кадров в очереди, шлюз гарантирует,
// что порядок доставки внутри беседы совпадает с порядком коммитов.
func (h *Hub) ConversationLock(conversationID uuid.UUID) *sync.Mutex {
	lock, _ := h.convLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// BroadcastNewMessage рассылает кадр всем подписчикам беседы, кроме
// соединения-отправителя
func (h *Hub) BroadcastNewMessage(conversationID uuid.UUID, origin *Client, frame NewMessageFrame) {
	h.mu.RLock()
	var overflowed []*Client
	for c := range h.byConv[conversationID] {
		if c == origin {
			continue
		}
		if !c.Enqueue(frame) {
			overflowed = append(overflowed, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range overflowed {
		h.log.Warn("Dropping slow websocket client", "user_id", c.userID)
		h.Remove(c)
	}
}

// NotifyUnread шлет сигнал об изменении счетчика непрочитанных на
// соединения участников, НЕ подписанные на эту беседу (подписанные
// получают само сообщение)
func (h *Hub) NotifyUnread(conversationID uuid.UUID, userIDs []uuid.UUID, origin *Client) {
	frame := NewUnreadCountChangedFrame(conversationID)

	h.mu.RLock()
	for _, userID := range userIDs {
		for c := range h.byUser[userID] {
			if c == origin {
				continue
			}
			if _, subscribed := h.subs[c][conversationID]; subscribed {
				continue
			}
			c.Enqueue(frame)
		}
	}
	h.mu.RUnlock()
}
