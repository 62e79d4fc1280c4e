// ABOUTME: WebSocket connection with a bounded send buffer and a single writer goroutine
// ABOUTME: Implements hub.Sink; a peer that falls behind is disconnected instead of blocking fan-out

package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/support-gateway/internal/hub"
)

var (
	// ErrConnectionClosed is returned by Send after Close.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the peer is too slow; the
	// connection is closed as a side effect.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Options tunes a connection.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Connection wraps one websocket. Send is safe for concurrent use; every
// write to the socket happens on the write loop goroutine.
type Connection struct {
	id     string
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger

	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

var _ hub.Sink = (*Connection)(nil)

// NewConnection wraps ws. Call Start to begin writing.
func NewConnection(ws *websocket.Conn, opts Options, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	id := uuid.NewString()
	return &Connection{
		id:     id,
		ws:     ws,
		opts:   opts,
		logger: logger.With("component", "connection", "conn_id", id),
		send:   make(chan []byte, opts.SendBuffer),
		closed: make(chan struct{}),
	}
}

// ID implements hub.Sink.
func (c *Connection) ID() string { return c.id }

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send implements hub.Sink. It never blocks, including when it disconnects
// a slow peer.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrConnectionClosed
	default:
		c.logger.Warn("send buffer full, disconnecting slow peer", "buffer", cap(c.send))
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// Close marks the connection closed and tears the socket down in the
// background: a close frame with code and reason, then the socket itself.
// It returns immediately even when the write loop is stuck on a slow peer.
// Safe to call more than once and from any goroutine.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		go c.teardown(websocket.FormatCloseMessage(code, reason))
	})
}

// abort closes the socket without a close frame, for when the socket is
// already broken.
func (c *Connection) abort() {
	c.once.Do(func() {
		close(c.closed)
		go c.teardown(nil)
	})
}

// teardown waits at most one write timeout for the write lock, which a
// stuck WriteMessage may hold, then closes the socket.
func (c *Connection) teardown(closeFrame []byte) {
	if closeFrame != nil {
		deadline := time.Now().Add(c.writeTimeout())
		_ = c.ws.WriteControl(websocket.CloseMessage, closeFrame, deadline)
	}
	_ = c.ws.Close()
}

func (c *Connection) writeTimeout() time.Duration {
	if c.opts.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return c.opts.WriteTimeout
}

func (c *Connection) writeLoop() {
	var pings <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.abort()
				return
			}
		case <-pings:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.abort()
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout())); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
