// Package websocket adapts gorilla/websocket connections to the hub: it
// upgrades requests, decodes inbound frames and owns the single writer for
// each peer.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rendezvous/pkg/interfaces"
)

// Options tune one WebSocket connection.
type Options struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
	AllowedOrigins []string
}

// DefaultOptions matches the config package defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 256,
		MaxMessageSize: 64 * 1024,
	}
}

// Connection wraps a gorilla connection. All data frames are written by one
// goroutine; Send only queues.
type Connection struct {
	id      string
	conn    *websocket.Conn
	writeCh chan []byte
	opts    Options
	logger  zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ interfaces.Sender = (*Connection)(nil)

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, opts Options, logger zerolog.Logger) *Connection {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = DefaultOptions().SendBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultOptions().WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	c := &Connection{
		id:      id,
		conn:    conn,
		writeCh: make(chan []byte, opts.SendBufferSize),
		opts:    opts,
		logger:  logger.With().Str("conn", id).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// ID is a random correlation ID used in logs and the stats endpoint.
func (c *Connection) ID() string {
	return c.id
}

// Send queues data for the writer. It never blocks: a full queue returns
// ErrSendBufferFull and the frame is dropped.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return interfaces.ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return interfaces.ErrSendBufferFull
	}
}

// Close sends a going-away close frame and releases the socket. Frames still
// queued are discarded.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))

		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) writeLoop() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// fail closes the socket after a write error so the read loop ends too.
func (c *Connection) fail(err error) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	c.logger.Debug().Err(err).Msg("write failed; closing connection")
	_ = c.Close()
}
