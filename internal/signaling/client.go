package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// pingPeriod must stay below pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is large enough for SDP offers with many candidates.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultSendBuffer is the number of outbound messages queued per client.
	DefaultSendBuffer = 256
)

// ClientOptions tunes a connection.
type ClientOptions struct {
	SendBuffer     int
	MaxMessageSize int64
}

// Client is one websocket connection attached to a Hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	codec  Codec
	handle Handle

	// send is drained by WritePump and closed by the hub.
	send chan *Message

	maxMessageSize int64
	log            *slog.Logger
}

// NewClient wraps conn. The codec follows the negotiated subprotocol.
func NewClient(hub *Hub, conn *websocket.Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	handle := NewHandle()
	return &Client{
		hub:            hub,
		conn:           conn,
		codec:          CodecFor(conn.Subprotocol()),
		handle:         handle,
		send:           make(chan *Message, opts.SendBuffer),
		maxMessageSize: opts.MaxMessageSize,
		log:            hub.log.With("handle", handle),
	}
}

// Handle returns the connection's handle.
func (c *Client) Handle() Handle {
	return c.handle
}

// ReadPump decodes frames and hands them to the hub in arrival order. It is
// the connection's only reader and unregisters the client when it returns.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		msg, err := c.codec.Decode(data)
		select {
		case c.hub.inbound <- inbound{from: c, msg: msg, err: err}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump is the connection's only writer. It writes a close frame once the
// hub closes send.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Error("failed to encode message", "type", msg.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
