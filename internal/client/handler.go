package client

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/callrelay/internal/signaling"
)

const eventBuffer = 32

// Handler routes incoming signaling messages to typed channels. All channels
// are closed once the connection ends.
type Handler struct {
	client *Client
	log    *slog.Logger

	Joined       chan *signaling.JoinedRoomPayload
	UserJoined   chan string
	IncomingCall chan *signaling.IncomingCallPayload
	// Answer carries SDP answers from both call-answered and call-accepted.
	Answer    chan json.RawMessage
	Candidate chan json.RawMessage
	Error     chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, log *slog.Logger) *Handler {
	return &Handler{
		client:       client,
		log:          log,
		Joined:       make(chan *signaling.JoinedRoomPayload, 1),
		UserJoined:   make(chan string, eventBuffer),
		IncomingCall: make(chan *signaling.IncomingCallPayload, eventBuffer),
		Answer:       make(chan json.RawMessage, eventBuffer),
		Candidate:    make(chan json.RawMessage, eventBuffer),
		Error:        make(chan string, eventBuffer),
	}
}

// Start listens to incoming messages until the connection closes.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case signaling.TypeJoinedRoom:
			var p signaling.JoinedRoomPayload
			if h.decode(msg, &p) {
				deliver(h, h.Joined, &p)
			}

		case signaling.TypeUserJoined:
			var p signaling.UserJoinedPayload
			if h.decode(msg, &p) {
				deliver(h, h.UserJoined, p.Email)
			}

		case signaling.TypeIncomingCall:
			var p signaling.IncomingCallPayload
			if h.decode(msg, &p) {
				deliver(h, h.IncomingCall, &p)
			}

		case signaling.TypeCallAnswered:
			var p signaling.CallAnsweredPayload
			if h.decode(msg, &p) {
				deliver(h, h.Answer, p.Answer)
			}

		case signaling.TypeCallAccepted:
			var p signaling.CallAcceptedPayload
			if h.decode(msg, &p) {
				deliver(h, h.Answer, p.Ans)
			}

		case signaling.TypeICECandidate:
			var p signaling.CandidatePayload
			if h.decode(msg, &p) {
				deliver(h, h.Candidate, p.Candidate)
			}

		case signaling.TypeError:
			var p signaling.ErrorPayload
			if h.decode(msg, &p) {
				deliver(h, h.Error, p.Error)
			}

		default:
			h.log.Debug("ignoring message", "type", msg.Type)
		}
	}
}

func (h *Handler) decode(msg *signaling.Message, v any) bool {
	if err := msg.DecodePayload(v); err != nil {
		h.log.Debug("bad payload from server", "type", msg.Type, "error", err)
		return false
	}
	return true
}

// deliver never blocks the read loop; a full channel drops the event.
func deliver[T any](h *Handler, ch chan T, v T) {
	select {
	case ch <- v:
	default:
		h.log.Warn("event dropped, consumer too slow")
	}
}

func (h *Handler) close() {
	close(h.Joined)
	close(h.UserJoined)
	close(h.IncomingCall)
	close(h.Answer)
	close(h.Candidate)
	close(h.Error)
}

// WaitJoined blocks until the join acknowledgment arrives.
func (h *Handler) WaitJoined(ctx context.Context) (*signaling.JoinedRoomPayload, error) {
	select {
	case p, ok := <-h.Joined:
		if !ok {
			return nil, NewError("join room", ErrConnectionClosed)
		}
		return p, nil
	case msg, ok := <-h.Error:
		if !ok {
			return nil, NewError("join room", ErrConnectionClosed)
		}
		return nil, WrapError("join room", ErrServer, msg)
	case <-ctx.Done():
		return nil, NewError("join room", ErrTimeout)
	}
}
