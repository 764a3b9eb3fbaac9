package chatclient

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crm_chat/internal/domain"
	"crm_chat/internal/ws"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingAuth
	StateReady
	StateClosed
)

// DefaultReconnectDelay - фиксированная пауза перед переподключением.
// Экспоненциального отступа нет намеренно: поведение всегда предсказуемо
// и проверяемо таймером.
const DefaultReconnectDelay = 3 * time.Second

// Session владеет ровно одним WebSocket-соединением со шлюзом: рукопожатие
// первым кадром, воспроизведение подписок после реаутентификации,
// автоматическое переподключение, пока сессия не закрыта явно.
type Session struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            logger.Logger

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	token   string
	userID  uuid.UUID
	handler func(Event)
	wanted  map[uuid.UUID]struct{}
	timer   *time.Timer
	torn    bool

	writeMu sync.Mutex
}

type SessionOption func(*Session)

func WithReconnectDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.reconnectDelay = d }
}

func WithDialer(d *websocket.Dialer) SessionOption {
	return func(s *Session) { s.dialer = d }
}

func WithLogger(log logger.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

func NewSession(url string, opts ...SessionOption) *Session {
	s := &Session{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		log:            logger.Nop(),
		state:          StateIdle,
		wanted:         make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnEvent регистрирует единственный обработчик входящих событий.
// Вызывается до Connect.
func (s *Session) OnEvent(handler func(Event)) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Connect открывает соединение и шлет authenticate. Ошибка набора номера
// не фатальна: переподключение уже запланировано.
func (s *Session) Connect(token string) error {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return apperrors.ErrNotConnected
	}
	s.token = token
	s.state = StateConnecting
	s.mu.Unlock()

	conn, _, err := s.dialer.Dial(s.url, nil)
	if err != nil {
		s.log.Warn("Failed to dial chat gateway", "error", err)
		s.scheduleReconnect()
		return err
	}

	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		conn.Close()
		return apperrors.ErrNotConnected
	}
	s.conn = conn
	s.state = StateAwaitingAuth
	s.mu.Unlock()

	if err := s.write(conn, ws.InboundFrame{Type: ws.FrameAuthenticate, Token: token}); err != nil {
		s.handleClose(conn)
		return err
	}

	go s.readLoop(conn)
	return nil
}

// Subscribe запоминает интерес к беседе и, если сессия готова, сразу
// шлет subscribe. Иначе кадр уйдет после следующего authenticated.
func (s *Session) Subscribe(conversationID uuid.UUID) {
	s.mu.Lock()
	s.wanted[conversationID] = struct{}{}
	conn := s.conn
	ready := s.state == StateReady
	s.mu.Unlock()

	if ready {
		if err := s.write(conn, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: conversationID}); err != nil {
			s.log.Warn("Failed to send subscribe", "error", err)
		}
	}
}

// Send шлет chat_message, если сессия готова; иначе возвращает
// ErrNotConnected, и вызывающий уходит на REST
func (s *Session) Send(conversationID uuid.UUID, content string, isUrgent bool, attachmentURL *string) error {
	s.mu.Lock()
	conn := s.conn
	ready := s.state == StateReady
	s.mu.Unlock()

	if !ready {
		return apperrors.ErrNotConnected
	}

	return s.write(conn, ws.InboundFrame{
		Type:           ws.FrameChatMessage,
		ConversationID: conversationID,
		Content:        content,
		IsUrgent:       isUrgent,
		AttachmentURL:  attachmentURL,
	})
}

// Close окончательно останавливает сессию и отменяет запланированное
// переподключение. После Close сессия не восстанавливается.
func (s *Session) Close() {
	s.mu.Lock()
	s.torn = true
	s.state = StateClosed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) write(conn *websocket.Conn, frame ws.InboundFrame) error {
	if conn == nil {
		return apperrors.ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// envelope разбирает общий конверт серверного кадра; поле message
// декодируется по типу кадра (в error это строка, в new_message - объект)
type envelope struct {
	Type           string          `json:"type"`
	UserID         *uuid.UUID      `json:"user_id,omitempty"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn)
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.emit(ErrorEvent{Message: "malformed frame from gateway"})
			continue
		}

		switch env.Type {
		case ws.FrameAuthenticated:
			s.handleAuthenticated(conn, env)
		case ws.FrameNewMessage:
			var message domain.Message
			if err := json.Unmarshal(env.Message, &message); err != nil {
				s.emit(ErrorEvent{Message: "malformed message payload"})
				continue
			}
			s.emit(NewMessageEvent{Message: &message})
		case ws.FrameUnreadCountChanged:
			if env.ConversationID != nil {
				s.emit(UnreadCountChangedEvent{ConversationID: *env.ConversationID})
			}
		case ws.FrameError:
			var message string
			_ = json.Unmarshal(env.Message, &message)
			s.emit(ErrorEvent{Message: message})
		}
	}
}

func (s *Session) handleAuthenticated(conn *websocket.Conn, env envelope) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.state = StateReady
	if env.UserID != nil {
		s.userID = *env.UserID
	}
	userID := s.userID
	wanted := make([]uuid.UUID, 0, len(s.wanted))
	for id := range s.wanted {
		wanted = append(wanted, id)
	}
	s.mu.Unlock()

	// Воспроизводим подписки, накопленные до готовности или до обрыва
	for _, id := range wanted {
		if err := s.write(conn, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: id}); err != nil {
			s.log.Warn("Failed to replay subscription", "error", err)
		}
	}

	s.emit(AuthenticatedEvent{UserID: userID})
}

func (s *Session) handleClose(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		// Уже переподключились, событие от старого соединения
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	conn.Close()
	s.scheduleReconnect()
}

func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torn || s.token == "" {
		return
	}
	if s.timer != nil {
		return // попытка уже запланирована
	}

	s.state = StateClosed
	token := s.token
	s.timer = time.AfterFunc(s.reconnectDelay, func() {
		s.mu.Lock()
		s.timer = nil
		torn := s.torn
		s.mu.Unlock()
		if torn {
			return
		}
		_ = s.Connect(token)
	})
}

func (s *Session) emit(event Event) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		handler(event)
	}
}
