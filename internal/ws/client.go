package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client - одно аутентифицированное WebSocket-соединение. Все исходящие
// кадры проходят через буферизованный канал send и один writePump,
// поэтому порядок постановки в канал равен порядку доставки.
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan interface{}
	done   chan struct{}
}

func NewClient(userID uuid.UUID, conn *websocket.Conn, sendBuffer int) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan interface{}, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Enqueue ставит кадр в очередь отправки. Возвращает false, если буфер
// переполнен - такого клиента хаб отключает, чтобы медленный получатель
// не тормозил рассылку.
func (c *Client) Enqueue(frame interface{}) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) WritePump(writeTimeout, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close останавливает writePump и закрывает соединение. Безопасно
// вызывать несколько раз не из нескольких горутин одновременно -
// хаб вызывает его только из Remove.
func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
