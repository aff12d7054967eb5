package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a WebSocketConnection.
type WebSocketConfig struct {
	// HandshakeTimeout bounds the opening handshake.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadBufferSize and WriteBufferSize are the I/O buffer sizes in bytes.
	// Default: 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// MaxMessageSize is the largest inbound frame accepted, in bytes. Zero
	// means no limit. Screenshots and large DOM serializations can be
	// several megabytes.
	// Default: 64 MB.
	MaxMessageSize int64

	// MessageBuffer is the capacity of the inbound frame channel.
	// Default: 256.
	MessageBuffer int

	// EnableCompression negotiates permessage-deflate.
	// Default: false.
	EnableCompression bool

	// Header is sent with the opening handshake.
	Header http.Header

	// Logger receives connection-level logs.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultWebSocketConfig returns a WebSocketConfig with sensible defaults.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		MaxMessageSize:   64 * 1024 * 1024,
		MessageBuffer:    256,
	}
}

// Clone returns a copy of the config.
func (c *WebSocketConfig) Clone() *WebSocketConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Header != nil {
		clone.Header = c.Header.Clone()
	}
	return &clone
}

// WebSocketConnection is a Connection over a gorilla/websocket client.
type WebSocketConnection struct {
	config *WebSocketConfig
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu  sync.Mutex
	messages chan []byte
	done     chan struct{}

	closed      atomic.Bool
	closeOnce   sync.Once
	messageOnce sync.Once
}

// NewWebSocketConnection creates an unconnected WebSocketConnection. A nil
// config uses DefaultWebSocketConfig.
func NewWebSocketConnection(config *WebSocketConfig) *WebSocketConnection {
	if config == nil {
		config = DefaultWebSocketConfig()
	} else {
		config = config.Clone()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := config.MessageBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &WebSocketConnection{
		config:   config,
		logger:   logger.With("component", "websocket"),
		messages: make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

// Connect dials url and starts the read pump.
func (c *WebSocketConnection) Connect(ctx context.Context, url string) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  c.config.HandshakeTimeout,
		ReadBufferSize:    c.config.ReadBufferSize,
		WriteBufferSize:   c.config.WriteBufferSize,
		EnableCompression: c.config.EnableCompression,
	}
	conn, resp, err := dialer.DialContext(ctx, url, c.config.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return fmt.Errorf("transport: dial %s: %w", url, err)
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn = conn

	c.logger.Debug("websocket connected", "url", url)
	go c.readPump(conn)
	return nil
}

// Send writes data as a single text frame.
func (c *WebSocketConnection) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// Messages returns the inbound frame stream. It is closed once the read pump
// stops or, for a connection that was never opened, on Close.
func (c *WebSocketConnection) Messages() <-chan []byte {
	return c.messages
}

// Close sends a normal closure frame and closes the socket. Safe to call
// more than once.
func (c *WebSocketConnection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			c.closeMessages()
			return
		}

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = conn.Close()
	})
	return err
}

func (c *WebSocketConnection) closeMessages() {
	c.messageOnce.Do(func() {
		close(c.messages)
	})
}

// readPump forwards inbound frames until the socket fails or is closed.
func (c *WebSocketConnection) readPump(conn *websocket.Conn) {
	defer c.closeMessages()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case c.closed.Load():
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Warn("websocket closed unexpectedly", "error", err)
			case errors.Is(err, websocket.ErrReadLimit):
				c.logger.Error("inbound frame exceeds read limit", "limit", c.config.MaxMessageSize)
			default:
				c.logger.Debug("websocket read ended", "error", err)
			}
			c.closed.Store(true)
			return
		}

		select {
		case c.messages <- data:
		case <-c.done:
			return
		}
	}
}
