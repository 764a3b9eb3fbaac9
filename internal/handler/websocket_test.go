package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crm_chat/internal/config"
	"crm_chat/internal/domain"
	"crm_chat/internal/service"
	"crm_chat/internal/ws"
	apperrors "crm_chat/pkg/errors"
	"crm_chat/pkg/logger"
)

// Фейковый AuthService: токен вида "token:<uuid>" считается валидным
type fakeAuthService struct {
	users map[string]*domain.User
}

func (s *fakeAuthService) Login(context.Context, string, string) (*service.LoginResponse, error) {
	return nil, apperrors.ErrInternalServer
}

func (s *fakeAuthService) ValidateToken(_ context.Context, token string) (*domain.User, error) {
	user, ok := s.users[token]
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	return user, nil
}

// Фейковый ChatService держит участников в памяти; реализует только то,
// что нужно шлюзу
type fakeChatService struct {
	mu           sync.Mutex
	nextID       int64
	participants map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeChatService() *fakeChatService {
	return &fakeChatService{nextID: 1, participants: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (s *fakeChatService) join(conversationID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[conversationID] == nil {
		s.participants[conversationID] = make(map[uuid.UUID]bool)
	}
	s.participants[conversationID][userID] = true
}

func (s *fakeChatService) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[conversationID][userID], nil
}

func (s *fakeChatService) PostMessage(_ context.Context, conversationID, senderID uuid.UUID, content string, isUrgent bool, attachmentURL *string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.ErrValidation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.participants[conversationID][senderID] {
		return nil, apperrors.ErrValidation
	}
	msg := &domain.Message{
		ID:             s.nextID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		IsUrgent:       isUrgent,
		AttachmentURL:  attachmentURL,
		CreatedAt:      time.Now(),
	}
	s.nextID++
	return msg, nil
}

func (s *fakeChatService) ListParticipants(_ context.Context, conversationID uuid.UUID) ([]*domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Participant
	for userID := range s.participants[conversationID] {
		out = append(out, &domain.Participant{ConversationID: conversationID, UserID: userID})
	}
	return out, nil
}

func (s *fakeChatService) CreateConversation(context.Context, service.CreateConversationParams) (*domain.Conversation, error) {
	return nil, apperrors.ErrInternalServer
}

func (s *fakeChatService) ListConversations(context.Context, uuid.UUID) ([]*domain.Conversation, error) {
	return nil, apperrors.ErrInternalServer
}

func (s *fakeChatService) DeleteConversation(context.Context, uuid.UUID, uuid.UUID) error {
	return apperrors.ErrInternalServer
}

func (s *fakeChatService) AddParticipant(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, bool) (*domain.Participant, error) {
	return nil, apperrors.ErrInternalServer
}

func (s *fakeChatService) RemoveParticipant(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return apperrors.ErrInternalServer
}

func (s *fakeChatService) ListMessages(context.Context, uuid.UUID, int, int) ([]*domain.Message, error) {
	return nil, apperrors.ErrInternalServer
}

func (s *fakeChatService) DeleteMessage(context.Context, int64, uuid.UUID) error {
	return apperrors.ErrInternalServer
}

func (s *fakeChatService) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return apperrors.ErrInternalServer
}

func (s *fakeChatService) UnreadCount(context.Context, uuid.UUID) (int64, error) {
	return 0, apperrors.ErrInternalServer
}

// outboundFrame - общая оболочка для чтения любых кадров сервера
type outboundFrame struct {
	Type           string          `json:"type"`
	UserID         uuid.UUID       `json:"user_id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        json.RawMessage `json:"message"`
}

type gatewayFixture struct {
	server *httptest.Server
	chat   *fakeChatService
	auth   *fakeAuthService
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chat := newFakeChatService()
	auth := &fakeAuthService{users: make(map[string]*domain.User)}
	cfg := config.ChatConfig{
		MessagePageSize: 50,
		MessagePageMax:  200,
		WriteTimeout:    2 * time.Second,
		PingInterval:    30 * time.Second,
		AuthTimeout:     2 * time.Second,
		SendBufferSize:  16,
	}
	hub := ws.NewHub(logger.Nop())
	h := NewWebSocketHandler(chat, auth, hub, cfg, logger.Nop())

	router := gin.New()
	router.GET("/ws", h.Handle)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{server: server, chat: chat, auth: auth}
}

func (f *gatewayFixture) addUser(username string) (uuid.UUID, string) {
	id := uuid.New()
	token := "token:" + id.String()
	f.auth.users[token] = &domain.User{ID: id, Username: username, IsActive: true}
	return id, token
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame interface{}) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outboundFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// connect проходит рукопожатие и возвращает готовое соединение
func (f *gatewayFixture) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn := f.dial(t)
	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameAuthenticate, Token: token})
	frame := readFrame(t, conn)
	if frame.Type != ws.FrameAuthenticated {
		t.Fatalf("expected authenticated frame, got %q", frame.Type)
	}
	return conn
}

func TestGatewayHandshake(t *testing.T) {
	f := newGatewayFixture(t)
	userID, token := f.addUser("rep")

	conn := f.dial(t)
	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameAuthenticate, Token: token})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameAuthenticated {
		t.Fatalf("expected authenticated, got %q", frame.Type)
	}
	if frame.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, frame.UserID)
	}
}

func TestGatewayHandshakeBadToken(t *testing.T) {
	f := newGatewayFixture(t)

	conn := f.dial(t)
	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameAuthenticate, Token: "garbage"})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameError {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}

	// После неудачной аутентификации сервер закрывает соединение
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection must be closed after failed authentication")
	}
}

func TestGatewayFirstFrameMustAuthenticate(t *testing.T) {
	f := newGatewayFixture(t)

	conn := f.dial(t)
	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: uuid.New()})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameError {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}
}

func TestGatewaySubscribeNonParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	_, token := f.addUser("rep")
	conn := f.connect(t, token)

	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: uuid.New()})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameError {
		t.Fatalf("expected error frame for foreign conversation, got %q", frame.Type)
	}
}

func TestGatewayChatMessageFanout(t *testing.T) {
	f := newGatewayFixture(t)
	senderID, senderToken := f.addUser("sender")
	receiverID, receiverToken := f.addUser("receiver")

	convID := uuid.New()
	f.chat.join(convID, senderID)
	f.chat.join(convID, receiverID)

	sender := f.connect(t, senderToken)
	receiver := f.connect(t, receiverToken)

	sendFrame(t, sender, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: convID})
	sendFrame(t, receiver, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: convID})

	// Подписки обрабатываются асинхронно относительно отправителя
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, sender, ws.InboundFrame{Type: ws.FrameChatMessage, ConversationID: convID, Content: "first", IsUrgent: true})
	sendFrame(t, sender, ws.InboundFrame{Type: ws.FrameChatMessage, ConversationID: convID, Content: "second"})

	for i, want := range []struct {
		content string
		urgent  bool
	}{{"first", true}, {"second", false}} {
		frame := readFrame(t, receiver)
		if frame.Type != ws.FrameNewMessage {
			t.Fatalf("frame %d: expected new_message, got %q", i, frame.Type)
		}
		var msg domain.Message
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			t.Fatalf("frame %d: decode message: %v", i, err)
		}
		if msg.Content != want.content {
			t.Fatalf("frame %d: expected %q, got %q", i, want.content, msg.Content)
		}
		if msg.IsUrgent != want.urgent {
			t.Fatalf("frame %d: urgent flag mismatch", i)
		}
		if msg.SenderID != senderID {
			t.Fatalf("frame %d: unexpected sender %s", i, msg.SenderID)
		}
	}

	// Отправитель не получает эха собственных сообщений
	sender.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := sender.ReadMessage(); err == nil {
		t.Fatal("sender must not receive its own message back")
	}
}

func TestGatewayUnreadSignalForUnsubscribed(t *testing.T) {
	f := newGatewayFixture(t)
	senderID, senderToken := f.addUser("sender")
	idleID, idleToken := f.addUser("idle")

	convID := uuid.New()
	f.chat.join(convID, senderID)
	f.chat.join(convID, idleID)

	sender := f.connect(t, senderToken)
	idle := f.connect(t, idleToken)

	sendFrame(t, sender, ws.InboundFrame{Type: ws.FrameSubscribe, ConversationID: convID})
	time.Sleep(100 * time.Millisecond)

	sendFrame(t, sender, ws.InboundFrame{Type: ws.FrameChatMessage, ConversationID: convID, Content: "hello"})

	frame := readFrame(t, idle)
	if frame.Type != ws.FrameUnreadCountChanged {
		t.Fatalf("expected unread_count_changed, got %q", frame.Type)
	}
	if frame.ConversationID != convID {
		t.Fatalf("unexpected conversation id %s", frame.ConversationID)
	}
}

func TestGatewayMalformedFrameKeepsConnection(t *testing.T) {
	f := newGatewayFixture(t)
	userID, token := f.addUser("rep")
	conn := f.connect(t, token)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameError {
		t.Fatalf("expected error frame, got %q", frame.Type)
	}

	// Соединение живо: валидный кадр после битого обрабатывается
	convID := uuid.New()
	f.chat.join(convID, userID)
	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameChatMessage, ConversationID: convID, Content: "still alive"})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("no frame expected: sender gets no echo and no error")
	}
}

func TestGatewayEmptyMessageRejected(t *testing.T) {
	f := newGatewayFixture(t)
	userID, token := f.addUser("rep")
	conn := f.connect(t, token)

	convID := uuid.New()
	f.chat.join(convID, userID)

	sendFrame(t, conn, ws.InboundFrame{Type: ws.FrameChatMessage, ConversationID: convID, Content: "   "})

	frame := readFrame(t, conn)
	if frame.Type != ws.FrameError {
		t.Fatalf("expected error frame for blank content, got %q", frame.Type)
	}
}
