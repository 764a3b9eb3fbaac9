package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crm_chat/internal/config"
	"crm_chat/internal/service"
	"crm_chat/internal/ws"
	"crm_chat/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // В продакшене нужно проверять origin
	},
}

type WebSocketHandler struct {
	chatService service.ChatService
	authService service.AuthService
	hub         *ws.Hub
	cfg         config.ChatConfig
	log         logger.Logger
}

func NewWebSocketHandler(chatService service.ChatService, authService service.AuthService, hub *ws.Hub, cfg config.ChatConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		authService: authService,
		hub:         hub,
		cfg:         cfg,
		log:         log,
	}
}

// Handle ведет соединение по протоколу шлюза: один кадр authenticate,
// затем subscribe/chat_message до закрытия. Битый кадр получает error
// в ответ, соединение при этом не рвется.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client, ok := h.authenticate(c.Request.Context(), conn)
	if !ok {
		conn.Close()
		return
	}

	h.hub.Add(client)
	go client.WritePump(h.cfg.WriteTimeout, h.cfg.PingInterval)
	client.Enqueue(ws.NewAuthenticatedFrame(client.UserID()))

	defer h.hub.Remove(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return // сеть или закрытие - подписки снимет Remove
		}

		var frame ws.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			client.Enqueue(ws.NewErrorFrame("malformed frame"))
			continue
		}

		switch frame.Type {
		case ws.FrameSubscribe:
			h.handleSubscribe(c.Request.Context(), client, frame)
		case ws.FrameChatMessage:
			h.handleChatMessage(c.Request.Context(), client, frame)
		default:
			client.Enqueue(ws.NewErrorFrame("unknown frame type: " + frame.Type))
		}
	}
}

// authenticate ждет ровно один кадр authenticate. Неудача - кадр error
// и закрытие соединения.
func (h *WebSocketHandler) authenticate(ctx context.Context, conn *websocket.Conn) (*ws.Client, bool) {
	conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var frame ws.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != ws.FrameAuthenticate {
		h.writeError(conn, "expected authenticate frame")
		return nil, false
	}

	user, err := h.authService.ValidateToken(ctx, frame.Token)
	if err != nil {
		h.writeError(conn, "authentication failed")
		return nil, false
	}

	return ws.NewClient(user.ID, conn, h.cfg.SendBufferSize), true
}

// writeError пишет напрямую в соединение - используется только до запуска
// writePump
func (h *WebSocketHandler) writeError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	_ = conn.WriteJSON(ws.NewErrorFrame(message))
}

func (h *WebSocketHandler) handleSubscribe(ctx context.Context, client *ws.Client, frame ws.InboundFrame) {
	if frame.ConversationID == uuid.Nil {
		client.Enqueue(ws.NewErrorFrame("subscribe requires conversation_id"))
		return
	}

	// Подписка чужого на беседу отклоняется явно, чтобы клиент мог это
	// заметить, а не молча не получать сообщения
	isParticipant, err := h.chatService.IsParticipant(ctx, frame.ConversationID, client.UserID())
	if err != nil {
		client.Enqueue(ws.NewErrorFrame("failed to check participation"))
		return
	}
	if !isParticipant {
		client.Enqueue(ws.NewErrorFrame("not a participant of conversation"))
		return
	}

	h.hub.Subscribe(client, frame.ConversationID)
}

func (h *WebSocketHandler) handleChatMessage(ctx context.Context, client *ws.Client, frame ws.InboundFrame) {
	if frame.ConversationID == uuid.Nil {
		client.Enqueue(ws.NewErrorFrame("chat_message requires conversation_id"))
		return
	}

	// Блокировка беседы держится от коммита до постановки кадров в
	// очереди: так порядок доставки совпадает с порядком записи
	lock := h.hub.ConversationLock(frame.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	message, err := h.chatService.PostMessage(ctx, frame.ConversationID, client.UserID(), frame.Content, frame.IsUrgent, frame.AttachmentURL)
	if err != nil {
		client.Enqueue(ws.NewErrorFrame(err.Error()))
		return
	}

	h.hub.BroadcastNewMessage(frame.ConversationID, client, ws.NewNewMessageFrame(message))

	participants, err := h.chatService.ListParticipants(ctx, frame.ConversationID)
	if err != nil {
		h.log.Warn("Failed to list participants for unread notification", "error", err)
		return
	}
	userIDs := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.UserID == client.UserID() {
			continue
		}
		userIDs = append(userIDs, p.UserID)
	}
	h.hub.NotifyUnread(frame.ConversationID, userIDs, client)
}
