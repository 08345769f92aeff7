package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is the callback executed when a text frame arrives.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// OnCloseHandler fires exactly once when the connection terminates,
// whichever side initiated it.
type OnCloseHandler func(connID uuid.UUID, err error)

type Config struct {
	// ReadLimit caps a single inbound frame, in bytes.
	ReadLimit int64
}

// Connection represents a single, thread-safe WebSocket connection.
// The wire protocol is text-only: binary frames are read and dropped.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config Config
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config Config, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	// Counted here, not in Run, so a connection closed before it ever
	// runs still balances the waitgroup.
	wg.Add(1)
	return &Connection{
		id:        id,
		conn:      conn,
		config:    config,
		send:      make(chan []byte, 256), // Buffered channel
		onMessage: onMessage,
		onClose:   onClose,
		done:      make(chan struct{}),
		wg:        wg,
		ctx:       connCtx,
		cancel:    cancel,
		logger:    connLogger,
	}
}

func (c *Connection) Run() {
	if c.config.ReadLimit > 0 {
		c.conn.SetReadLimit(c.config.ReadLimit)
	}
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps frames from the WebSocket connection to the message
// handler. Receive waits are cancelled through the connection context.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		typ, r, err := c.conn.Reader(c.ctx)
		if err != nil {
			readErr = err
			return
		}
		message, err := io.ReadAll(r)
		if err != nil {
			readErr = err
			return
		}
		// Binary frames are accepted but carry nothing for us.
		if typ != websocket.MessageText {
			c.logger.Debug("dropping non-text frame", slog.Int("bytes", len(message)))
			continue
		}
		c.onMessage(c.ctx, c.id, message)
	}
}

// writePump pumps messages from the send channel to the WebSocket
// connection. A single writer preserves per-sender delivery order.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues a text frame to the client. Safe for concurrent use;
// frames queued after closure are discarded.
func (c *Connection) Send(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
		c.logger.Debug("dropped send on closed connection")
	}
}

// Close gracefully shuts down the connection and its resources. The
// first caller wins; the close reason is handed to the OnCloseHandler.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Info("connection closing", slog.Any("reason", err))

		c.cancel() // Signal both pumps to stop.
		c.conn.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully
// terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
