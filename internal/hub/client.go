package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/pkg/log"
)

// Client is one live websocket connection. UserID and Username are fixed
// at upgrade time; room is owned by the hub and guarded by its lock. The
// send queue has its own lifecycle guard: every enqueue and the close
// serialize on sendMu, so a broadcast racing a disconnect can never send
// on a closed channel.
type Client struct {
	ID       string
	UserID   string
	Username string

	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	sendMu sync.Mutex
	closed bool
	room   string

	config config.WebSocketConfig
}

// NewClient wraps an upgraded connection.
func NewClient(id, userID, username string, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, buffer),
		config:   cfg,
	}
}

// ReadPump consumes inbound frames until the connection drops, then
// unregisters the client. Closing the socket is the only cancellation
// signal; unregistering synchronously removes registry state.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			break
		}
		handler(c, message)
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues a frame for this client without blocking. Frames to a full
// or closed queue are dropped; durable state is unaffected.
func (c *Client) Send(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		l := log.L()
		l.Error().Err(err).Str(log.FieldConnectionID, c.ID).Msg("failed to marshal frame")
		return
	}
	c.enqueue(data)
}

// enqueue places data on the send queue without blocking. Returns false
// when the client is closed or its queue is full.
func (c *Client) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend shuts the send queue exactly once. After it returns no
// enqueue can touch the channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Outbound exposes the send queue for delivery assertions in tests.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}
