package chatws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IslandManSwevo/island-rides-api/internal/app/metrics"
	"github.com/IslandManSwevo/island-rides-api/internal/middleware"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultMaxMessage = 4096
	sendBuffer        = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer for the REST surface; mobile
	// clients do not send a browser origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan Frame
}

// ServeHTTP upgrades an authenticated request to a chat WebSocket. Requests
// must already have passed the auth middleware.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{hub: h, conn: conn, userID: userID, send: make(chan Frame, sendBuffer)}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	pongWait := c.hub.cfg.PongTimeout
	c.conn.SetReadLimit(c.hub.cfg.MaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.WithError(err).WithField("user_id", c.userID).Debug("chat read error")
			}
			return
		}
		c.handleFrame(frame)
	}
}

func (c *client) handleFrame(frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch frame.Type {
	case "send":
		conv, err := c.hub.chat.Get(ctx, c.userID, frame.ConversationID)
		if err != nil {
			c.fail(frame.ConversationID, err)
			return
		}
		msg, err := c.hub.chat.Send(ctx, c.userID, frame.ConversationID, frame.Body)
		if err != nil {
			c.fail(frame.ConversationID, err)
			return
		}
		metrics.RecordChatMessage()

		out := Frame{Type: "message", ConversationID: msg.ConversationID, Message: &msg}
		c.hub.deliver(conv.Peer(c.userID), out)
		c.hub.deliver(c.userID, out)
	default:
		c.fail(frame.ConversationID, errUnknownFrame)
	}
}

var errUnknownFrame = errors.New("unknown frame type")

// fail reports an error back on this connection only.
func (c *client) fail(conversationID string, err error) {
	select {
	case c.send <- Frame{Type: "error", ConversationID: conversationID, Error: err.Error()}:
	default:
	}
}

func (c *client) writePump() {
	writeWait := c.hub.cfg.WriteTimeout
	// Ping a little ahead of the pong deadline so healthy peers never miss it.
	ticker := time.NewTicker(c.hub.cfg.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
