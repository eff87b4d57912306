// Package chatws carries live chat traffic over WebSocket connections.
package chatws

import (
	"sync"
	"time"

	chatdomain "github.com/IslandManSwevo/island-rides-api/internal/app/domain/chat"
	"github.com/IslandManSwevo/island-rides-api/internal/app/metrics"
	"github.com/IslandManSwevo/island-rides-api/internal/app/services/chat"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

// Config tunes socket deadlines and limits. Zero values use the package
// defaults.
type Config struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	MaxMessage   int64
}

func (c *Config) applyDefaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteWait
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaultPongWait
	}
	if c.MaxMessage == 0 {
		c.MaxMessage = defaultMaxMessage
	}
}

// Frame is the wire envelope exchanged over a chat socket.
type Frame struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Body           string              `json:"body,omitempty"`
	Message        *chatdomain.Message `json:"message,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// Hub tracks live connections per user and fans messages out to them.
// A user may hold several connections at once (multiple devices).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	chat    *chat.Service
	cfg     Config
	log     *logger.Logger
}

// NewHub creates a hub backed by the given chat service.
func NewHub(chatSvc *chat.Service, cfg Config, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("chatws")
	}
	cfg.applyDefaults()
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		chat:    chatSvc,
		cfg:     cfg,
		log:     log,
	}
}

// Online reports whether the user has at least one live connection. It
// satisfies chat.Presence.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

var _ chat.Presence = (*Hub)(nil)

func (h *Hub) register(c *client) {
	h.mu.Lock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.ChatClientConnected()
	h.log.WithField("user_id", c.userID).Debug("chat client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		if _, present := conns[c]; present {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
	h.mu.Unlock()
	metrics.ChatClientDisconnected()
	h.log.WithField("user_id", c.userID).Debug("chat client disconnected")
}

// deliver queues a frame for every live connection of the user. Connections
// with a full send buffer are dropped rather than allowed to stall the hub.
func (h *Hub) deliver(userID string, frame Frame) {
	h.mu.RLock()
	stalled := make([]*client, 0)
	for c := range h.clients[userID] {
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.unregister(c)
	}
}
