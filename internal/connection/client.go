package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single realtime WebSocket connection.
type Client interface {
	// Connect dials and completes the connection_init/ack handshake.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Messages returns a channel of protocol messages other than keepalives.
	// Each message includes a local timestamp for when it was received.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu               sync.RWMutex
	connected        bool
	lastKeepaliveAt  time.Time
	keepaliveTimeout time.Duration
	closed           bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultClientConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}

	return &client{
		cfg:              cfg,
		logger:           logger,
		messages:         make(chan TimestampedMessage, cfg.BufferSize),
		errors:           make(chan error, 1),
		done:             make(chan struct{}),
		keepaliveTimeout: cfg.KeepaliveTimeout,
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	// Dial with context
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Subprotocols:     []string{Subprotocol},
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastKeepaliveAt = time.Now()
	c.mu.Unlock()

	// Server pings count as liveness too
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Start goroutines
	go c.readLoop()
	go c.keepaliveLoop()

	c.logger.Debug("realtime connected", "keepalive_timeout", c.currentKeepaliveTimeout())

	return nil
}

// handshake sends connection_init and waits for connection_ack.
func (c *client) handshake(ctx context.Context, conn *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(Message{Type: TypeConnectionInit}); err != nil {
		return fmt.Errorf("send connection_init: %w", err)
	}

	conn.SetReadDeadline(deadline)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}

		switch msg.Type {
		case TypeConnectionAck:
			var ack ConnectionAckPayload
			_ = json.Unmarshal(msg.Payload, &ack)
			if c.keepaliveTimeout == 0 && ack.ConnectionTimeoutMs > 0 {
				c.mu.Lock()
				c.keepaliveTimeout = time.Duration(ack.ConnectionTimeoutMs) * time.Millisecond
				c.mu.Unlock()
			}
			conn.SetReadDeadline(time.Time{})
			conn.SetWriteDeadline(time.Time{})
			return nil
		case TypeKeepalive:
			continue
		case TypeConnectionError, TypeError:
			return newProtocolError(msg)
		default:
			c.logger.Debug("ignoring message before connection_ack", "type", msg.Type)
		}
	}
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	// Close the WebSocket connection
	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}

	return nil
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastKeepaliveAt = time.Now()
	c.mu.Unlock()
}

func (c *client) currentKeepaliveTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keepaliveTimeout
}

// readLoop reads messages from the WebSocket and sends them to the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				c.report(err)
				return
			}
		}

		// Any traffic proves liveness; keepalives stop here.
		c.touch()
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Type == TypeKeepalive {
			continue
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// keepaliveLoop monitors for stale connections.
func (c *client) keepaliveLoop() {
	timeout := c.currentKeepaliveTimeout()
	if timeout <= 0 {
		return
	}

	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			last := c.lastKeepaliveAt
			c.mu.RUnlock()

			if time.Since(last) > timeout {
				c.logger.Warn("no keepalive received, connection stale",
					"last_keepalive", last,
					"timeout", timeout,
				)
				c.report(ErrStaleConnection)
				return
			}
		}
	}
}

func (c *client) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}
