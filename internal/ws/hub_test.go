package ws

import (
	"testing"

	"github.com/google/uuid"

	"crm_chat/internal/domain"
	"crm_chat/pkg/logger"
)

func newTestClient(userID uuid.UUID, buffer int) *Client {
	return &Client{
		userID: userID,
		send:   make(chan interface{}, buffer),
		done:   make(chan struct{}),
	}
}

func drain(t *testing.T, c *Client) []interface{} {
	t.Helper()
	var frames []interface{}
	for {
		select {
		case frame := <-c.send:
			frames = append(frames, frame)
		default:
			return frames
		}
	}
}

func TestBroadcastSkipsOrigin(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()

	sender := newTestClient(uuid.New(), 4)
	receiver := newTestClient(uuid.New(), 4)
	hub.Add(sender)
	hub.Add(receiver)
	hub.Subscribe(sender, convID)
	hub.Subscribe(receiver, convID)

	frame := NewNewMessageFrame(&domain.Message{ID: 1, ConversationID: convID, Content: "hello"})
	hub.BroadcastNewMessage(convID, sender, frame)

	if got := drain(t, sender); len(got) != 0 {
		t.Fatalf("origin must not receive its own message, got %d frames", len(got))
	}
	got := drain(t, receiver)
	if len(got) != 1 {
		t.Fatalf("expected 1 frame for receiver, got %d", len(got))
	}
	nm, ok := got[0].(NewMessageFrame)
	if !ok {
		t.Fatalf("expected NewMessageFrame, got %T", got[0])
	}
	if nm.Message.Content != "hello" {
		t.Fatalf("unexpected content %q", nm.Message.Content)
	}
}

func TestBroadcastPreservesOrder(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()

	receiver := newTestClient(uuid.New(), 8)
	hub.Add(receiver)
	hub.Subscribe(receiver, convID)

	hub.BroadcastNewMessage(convID, nil, NewNewMessageFrame(&domain.Message{ID: 1, Content: "A"}))
	hub.BroadcastNewMessage(convID, nil, NewNewMessageFrame(&domain.Message{ID: 2, Content: "B"}))

	got := drain(t, receiver)
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	first := got[0].(NewMessageFrame)
	second := got[1].(NewMessageFrame)
	if first.Message.ID != 1 || second.Message.ID != 2 {
		t.Fatalf("frames out of order: %d then %d", first.Message.ID, second.Message.ID)
	}
}

func TestBroadcastRemovesOverflowedClient(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()

	slow := newTestClient(uuid.New(), 1)
	hub.Add(slow)
	hub.Subscribe(slow, convID)

	hub.BroadcastNewMessage(convID, nil, NewNewMessageFrame(&domain.Message{ID: 1}))
	hub.BroadcastNewMessage(convID, nil, NewNewMessageFrame(&domain.Message{ID: 2}))

	// Переполненный клиент снят со всех подписок
	hub.mu.RLock()
	_, stillThere := hub.subs[slow]
	convSubs := len(hub.byConv[convID])
	hub.mu.RUnlock()
	if stillThere {
		t.Fatal("overflowed client must be removed from hub")
	}
	if convSubs != 0 {
		t.Fatalf("conversation still has %d subscribers", convSubs)
	}

	select {
	case <-slow.done:
	default:
		t.Fatal("overflowed client must be closed")
	}
}

func TestNotifyUnreadTargetsUnsubscribedOnly(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()

	// Две вкладки A: одна смотрит беседу, вторая нет
	tabOpen := newTestClient(userA, 4)
	tabIdle := newTestClient(userA, 4)
	clientB := newTestClient(userB, 4)
	hub.Add(tabOpen)
	hub.Add(tabIdle)
	hub.Add(clientB)
	hub.Subscribe(tabOpen, convID)

	hub.NotifyUnread(convID, []uuid.UUID{userA, userB}, nil)

	if got := drain(t, tabOpen); len(got) != 0 {
		t.Fatalf("subscribed tab must not receive unread signal, got %d", len(got))
	}
	got := drain(t, tabIdle)
	if len(got) != 1 {
		t.Fatalf("idle tab expected 1 frame, got %d", len(got))
	}
	frame, ok := got[0].(UnreadCountChangedFrame)
	if !ok {
		t.Fatalf("expected UnreadCountChangedFrame, got %T", got[0])
	}
	if frame.ConversationID != convID {
		t.Fatalf("unexpected conversation id %s", frame.ConversationID)
	}
	if got := drain(t, clientB); len(got) != 1 {
		t.Fatalf("clientB expected 1 frame, got %d", len(got))
	}
}

func TestNotifyUnreadSkipsOrigin(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()
	userID := uuid.New()

	origin := newTestClient(userID, 4)
	hub.Add(origin)

	hub.NotifyUnread(convID, []uuid.UUID{userID}, origin)

	if got := drain(t, origin); len(got) != 0 {
		t.Fatalf("origin must not receive unread signal, got %d", len(got))
	}
}

func TestConversationLockIsStable(t *testing.T) {
	hub := NewHub(logger.Nop())
	convID := uuid.New()

	if hub.ConversationLock(convID) != hub.ConversationLock(convID) {
		t.Fatal("same conversation must map to the same lock")
	}
	if hub.ConversationLock(convID) == hub.ConversationLock(uuid.New()) {
		t.Fatal("different conversations must not share a lock")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	hub := NewHub(logger.Nop())
	c := newTestClient(uuid.New(), 4)
	hub.Add(c)
	hub.Subscribe(c, uuid.New())

	hub.Remove(c)
	hub.Remove(c)

	// Подписка после снятия игнорируется
	convID := uuid.New()
	hub.Subscribe(c, convID)
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if len(hub.byConv[convID]) != 0 {
		t.Fatal("subscribe after remove must be a no-op")
	}
}
