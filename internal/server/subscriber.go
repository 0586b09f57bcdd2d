package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nhdewitt/telemon/internal/broadcast"
	"github.com/nhdewitt/telemon/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// wsSubscriber adapts one WebSocket connection to broadcast.Subscriber.
// Outgoing messages go through a bounded queue drained by writePump, so
// Send never waits on the network.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan protocol.Message
	closed bool
}

func newWSSubscriber(conn *websocket.Conn, buffer int) *wsSubscriber {
	return &wsSubscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan protocol.Message, buffer),
	}
}

func (c *wsSubscriber) ID() string {
	return c.id
}

func (c *wsSubscriber) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return broadcast.ErrClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return broadcast.ErrQueueFull
	}
}

// close stops the write pump. Safe to call more than once.
func (c *wsSubscriber) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump is the only writer on conn. It sends queued messages and
// pings, and closes conn when the queue is closed or a write fails.
func (c *wsSubscriber) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("ws write to %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound text frames to handle until the connection
// fails. A pong within two ping intervals keeps the connection alive.
func (c *wsSubscriber) readPump(pingInterval time.Duration, handle func([]byte)) {
	pongWait := 2 * pingInterval

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read from %s: %v", c.id, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}
