package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tempchat/internal/app/chat"
	"tempchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. Base64 images
	// of the maximum decoded size fit with room for the envelope.
	maxMessageSize = 10 << 20

	// capacity of the per-connection outbound queue.
	sendQueueSize = 256

	// maximum length of a close frame reason.
	maxCloseReason = 123

	// WsCloseCodeRejected is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the server ended the session.
	WsCloseCodeRejected = 4001
)

// frame is an entry in the outbound queue. A frame with closing set writes a close
// frame with reason and ends the write pump.
type frame struct {
	data    []byte
	closing bool
	reason  string
}

// Client represents an active WebSocket connection.
type Client struct {
	// handle identifies the connection in the hub and the presence registry.
	handle chat.Handle

	// identity resolved from the connection's token.
	identity string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// admitted is set by Hub.Admit under the hub lock.
	admitted bool

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan frame

	// done is closed when the connection must stop without flushing its queue.
	done     chan struct{}
	doneOnce sync.Once

	// closeOnce guards the graceful close request.
	closeOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance.
func NewClient(conn *websocket.Conn, handle chat.Handle, identity string) *Client {
	return &Client{
		handle:   handle,
		identity: identity,
		conn:     conn,
		send:     make(chan frame, sendQueueSize),
		done:     make(chan struct{}),
		logger: logx.Logger().With().
			Str("handle", string(handle)).
			Str("identity", identity).
			Logger(),
	}
}

// Handle returns the connection handle.
func (c *Client) Handle() chat.Handle {
	return c.handle
}

// Done is closed once the connection has been dropped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// enqueue queues data without blocking. A full queue drops the connection.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame{data: data}:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping connection")
		c.drop()
	}
}

// CloseWith queues a close frame with reason after the frames already queued.
func (c *Client) CloseWith(reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}

	c.closeOnce.Do(func() {
		select {
		case c.send <- frame{closing: true, reason: reason}:
		default:
			c.drop()
		}
	})
}

// drop stops the connection immediately.
func (c *Client) drop() {
	c.doneOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error")
		}
	})
}

// ReadPump reads frames until the connection fails or closes and hands each one to handle.
// It returns when the connection is gone; the caller runs disconnect handling.
func (c *Client) ReadPump(ctx context.Context, handle func(ctx context.Context, data []byte)) {
	defer c.drop()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}

		handle(ctx, data)
	}
}

// WritePump handles writing frames from the send queue to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.drop()
	}()

	for {
		select {
		case <-c.done:
			return

		case f := <-c.send:
			if f.closing {
				c.writeClose(f.reason)
				return
			}
			if !c.writeQueuedMessage(f.data) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage writes one frame. Returns false if the pump should terminate.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// writeClose sends the 4001 close frame carrying reason.
func (c *Client) writeClose(reason string) {
	c.logger.Info().
		Int("close_code", WsCloseCodeRejected).
		Str("reason", reason).
		Msg("Closing connection")

	closeMessage := websocket.FormatCloseMessage(WsCloseCodeRejected, reason)

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send WS 4001 Close Message.")
	}
}
