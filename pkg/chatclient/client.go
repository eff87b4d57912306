// Package chatclient provides a reconnecting WebSocket client for the chat
// endpoint, intended for bots, integration tests and other Go consumers.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrGaveUp is returned when the client exhausts its reconnection attempts.
var ErrGaveUp = errors.New("chatclient: gave up reconnecting")

// ErrClosed is returned from Send after Close.
var ErrClosed = errors.New("chatclient: client is closed")

// Frame mirrors the wire envelope of the chat WebSocket.
type Frame struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Body           string   `json:"body,omitempty"`
	Message        *Message `json:"message,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Message is a delivered chat message.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Handler receives delivered frames.
type Handler func(Frame)

// Config configures a chat client.
type Config struct {
	// URL is the server base URL. http(s) schemes are rewritten to ws(s).
	URL string
	// Token is the bearer token, passed as a query parameter on dial.
	Token string
	// InitialBackoff is the delay before the first reconnection attempt.
	// Defaults to 1 second. Each subsequent attempt doubles the delay.
	InitialBackoff time.Duration
	// MaxBackoff caps the per-attempt delay. Defaults to 30 seconds.
	MaxBackoff time.Duration
	// MaxAttempts bounds consecutive failed reconnection attempts before
	// the client gives up. Defaults to 8.
	MaxAttempts int
	// HandshakeTimeout bounds each dial. Defaults to 10 seconds.
	HandshakeTimeout time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
}

// Client maintains a chat WebSocket connection, transparently reconnecting
// with exponential backoff when the connection drops.
type Client struct {
	mu       sync.Mutex
	cfg      Config
	conn     *websocket.Conn
	handlers []Handler
	done     chan struct{}
	closed   bool
	errs     chan error

	// dial is swapped out in tests.
	dial  func(ctx context.Context) (*websocket.Conn, error)
	sleep func(time.Duration)
}

// New creates a client. Call Connect to establish the connection.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:   cfg,
		done:  make(chan struct{}),
		errs:  make(chan error, 1),
		sleep: time.Sleep,
	}
	c.dial = c.dialWebSocket
	return c
}

// wsURL converts the configured base URL into the websocket endpoint.
func (c *Client) wsURL() string {
	url := c.cfg.URL
	if strings.HasPrefix(url, "https") {
		url = "wss" + url[5:]
	} else if strings.HasPrefix(url, "http") {
		url = "ws" + url[4:]
	}
	if !strings.Contains(url, "/ws/chat") {
		url = strings.TrimRight(url, "/") + "/ws/chat"
	}
	return url + "?token=" + c.cfg.Token
}

func (c *Client) dialWebSocket(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// OnMessage registers a handler for delivered frames. Handlers must be
// registered before Connect.
func (c *Client) OnMessage(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// Errors reports terminal failures, such as giving up on reconnection.
func (c *Client) Errors() <-chan error { return c.errs }

// Connect establishes the connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// Send writes a message to the conversation.
func (c *Client) Send(conversationID, body string) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("chatclient: not connected")
	}
	return conn.WriteJSON(Frame{Type: "send", ConversationID: conversationID, Body: body})
}

// Close tears down the connection and stops reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.reconnect()
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}

// reconnect retries the dial with a doubling delay until it succeeds or the
// attempt ceiling is reached.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	delay := c.cfg.InitialBackoff
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-c.done:
			return
		default:
		}

		c.sleep(delay)
		if delay *= 2; delay > c.cfg.MaxBackoff {
			delay = c.cfg.MaxBackoff
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()
		go c.readLoop(conn)
		return
	}

	select {
	case c.errs <- fmt.Errorf("%w after %d attempts", ErrGaveUp, c.cfg.MaxAttempts):
	default:
	}
}
