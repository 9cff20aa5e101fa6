// Package client talks to a callrelay server over a websocket.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/callrelay/internal/signaling"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	handshakeTimeout = 10 * time.Second
)

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	codec     signaling.Codec
	serverURL string
	incoming  chan *signaling.Message
	outgoing  chan *signaling.Message
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// NewClient creates a client that will speak codec to serverURL.
func NewClient(serverURL string, codec signaling.Codec, log *slog.Logger) *Client {
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		incoming:  make(chan *signaling.Message, 16),
		outgoing:  make(chan *signaling.Message, 16),
		done:      make(chan struct{}),
		log:       log,
	}
}

// Connect dials the server and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return NewError("connect", fmt.Errorf("invalid server URL: %w", err))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{c.codec.Subprotocol()},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return NewError("connect", err)
	}
	if conn.Subprotocol() != c.codec.Subprotocol() {
		c.log.Debug("server did not accept subprotocol, using JSON", "wanted", c.codec.Subprotocol())
		c.codec = signaling.JSONCodec
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := c.codec.Decode(data)
		if err != nil {
			c.log.Debug("dropping undecodable frame", "error", err)
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			data, err := c.codec.Encode(msg)
			if err != nil {
				c.log.Error("failed to encode message", "type", msg.Type, "error", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the server.
func (c *Client) Send(msg *signaling.Message) error {
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	}
}

func (c *Client) send(t signaling.MessageType, payload any) error {
	msg, err := signaling.NewMessage(t, payload)
	if err != nil {
		return NewError(string(t), err)
	}
	return c.Send(msg)
}

// JoinRoom asks to join roomID as email.
func (c *Client) JoinRoom(roomID, email string) error {
	return c.send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: roomID, Email: email})
}

// CallUser sends an offer to email.
func (c *Client) CallUser(email string, offer []byte) error {
	return c.send(signaling.TypeCallUser, signaling.CallUserPayload{Email: email, Offer: offer})
}

// AnswerCall sends an answer to email as answer-call.
func (c *Client) AnswerCall(email string, answer []byte) error {
	return c.send(signaling.TypeAnswerCall, signaling.AnswerCallPayload{Email: email, Answer: answer})
}

// AcceptCall sends an answer to email as call-accepted.
func (c *Client) AcceptCall(email string, ans []byte) error {
	return c.send(signaling.TypeCallAccepted, signaling.AcceptCallPayload{Email: email, Ans: ans})
}

// SendCandidate trickles an ICE candidate to email.
func (c *Client) SendCandidate(email string, candidate []byte) error {
	return c.send(signaling.TypeICECandidate, signaling.SendCandidatePayload{Email: email, Candidate: candidate})
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *signaling.Message {
	return c.incoming
}

// Close closes the WebSocket connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
