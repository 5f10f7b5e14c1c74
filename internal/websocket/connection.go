package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"campushub/pkg/types"
)

// maxFrameSize caps inbound frames; bodies are bounded separately.
const maxFrameSize = 128 * 1024

// Options are the connection timing knobs, fed from configuration.
type Options struct {
	// PingInterval must be comfortably below ReadTimeout.
	PingInterval time.Duration
	// ReadTimeout is how long a connection may stay silent before the
	// read side gives up on it.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// SendBuffer is the per-session outbound queue. A session that falls
	// this far behind gets events dropped rather than stalling a room.
	SendBuffer int
}

func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   100,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = def.SendBuffer
	}
	return o
}

// Connection is one authenticated socket: a session id, the identity it
// was bound to at handshake, and a single-writer outbound queue. All
// frame writes happen on the writeLoop goroutine, so Send is safe from
// any goroutine and never blocks.
type Connection struct {
	id       string
	identity *types.Identity
	conn     *websocket.Conn
	opts     Options

	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded socket and starts its writer.
func NewConnection(conn *websocket.Conn, identity *types.Identity, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		opts:     opts,
		writeCh:  make(chan []byte, opts.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) ID() string                { return c.id }
func (c *Connection) Identity() *types.Identity { return c.identity }

// Send marshals and enqueues an event for this session. It returns
// ErrConnectionClosed after Close and ErrSendBufferFull when the
// session cannot keep up; in both cases the caller moves on.
func (c *Connection) Send(event *types.ServerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// writeLoop is the only goroutine that touches the socket's write side.
// It also owns the keepalive pings.
func (c *Connection) writeLoop() {
	pings := time.NewTicker(c.opts.PingInterval)
	defer pings.Stop()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("session", c.id).Msg("write failed, closing session")
				c.close()
				return
			}
		case <-pings.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close shuts the session down. Safe to call more than once and from
// any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

func (c *Connection) close() { _ = c.Close() }

// Done is closed once the session is shut down.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }
