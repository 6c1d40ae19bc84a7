package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MB
)

// Client is one websocket connection bound to one chat session. Inbound
// frames drive the session; session updates and hub broadcasts flow out
// through Send.
type Client struct {
	ID       string
	UserID   string
	UserName string
	RoomID   string
	Conn     *websocket.Conn
	Send     chan []byte

	hub     *Hub
	session *chat.Session

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

func newClient(id, userID, userName, roomID string, conn *websocket.Conn, hub *Hub, session *chat.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:       id,
		UserID:   userID,
		UserName: userName,
		RoomID:   roomID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      hub,
		session:  session,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.lastSeen.Store(time.Now().UnixNano())
	return c
}

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) IsClientActive() bool {
	return c.ctx.Err() == nil
}

func (c *Client) GetLastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Close tears the connection down exactly once: the session stops first so
// no snapshot is emitted into a dead channel.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.session.Close()
		_ = c.Conn.Close()
		c.hub.Unregister(c.RoomID, c)
	})
}

// Deliver queues an outgoing frame without blocking. A full buffer means a
// slow consumer; the client is closed rather than stalling the sender.
func (c *Client) Deliver(msg OutgoingMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("clientID", c.ID).Msg("ws: failed to marshal outgoing frame")
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	default:
		log.Warn().Str("clientID", c.ID).Str("roomID", c.RoomID).Msg("ws: slow consumer, dropping connection")
		go c.Close()
	}
}

// writePump drains c.Send onto the socket and keeps the connection alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				_ = w.Close()
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound frames and dispatches them to the session.
func (c *Client) readPump() {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.lastSeen.Store(time.Now().UnixNano())
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("clientID", c.ID).Msg("ws: unexpected close")
			}
			return
		}
		c.lastSeen.Store(time.Now().UnixNano())

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Deliver(OutgoingMessage{Type: "error", Data: "malformed frame", Timestamp: time.Now().Unix()})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg IncomingMessage) {
	switch msg.Type {
	case "send":
		if _, appErr := c.session.Send(c.ctx, msg.Content, msg.ReplyTo); appErr != nil {
			c.Deliver(OutgoingMessage{Type: "error", Data: appErr.Message, Timestamp: time.Now().Unix()})
		}
	case "mark_read":
		if appErr := c.session.MarkAsRead(c.ctx); appErr != nil {
			c.Deliver(OutgoingMessage{Type: "error", Data: appErr.Message, Timestamp: time.Now().Unix()})
		}
	case "load_more":
		if appErr := c.session.LoadMore(c.ctx); appErr != nil {
			c.Deliver(OutgoingMessage{Type: "error", Data: appErr.Message, Timestamp: time.Now().Unix()})
		}
	case "typing":
		c.hub.BroadcastToRoomExcept(c.RoomID, OutgoingMessage{
			Type: "typing",
			Data: map[string]any{
				"userId":   c.UserID,
				"userName": c.UserName,
			},
			Timestamp: time.Now().Unix(),
		}, c)
	default:
		c.Deliver(OutgoingMessage{Type: "error", Data: "unknown frame type: " + msg.Type, Timestamp: time.Now().Unix()})
	}
}
