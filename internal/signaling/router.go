//go:generate go run go.uber.org/mock/mockgen -source=router.go -destination=../mocks/mock_transport.go -package=mocks

package signaling

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/BioHazard786/callrelay/internal/identity"
	"github.com/BioHazard786/callrelay/internal/rooms"
)

var (
	// ErrUnknownType is returned by Dispatch for a message type the relay does
	// not handle.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformedPayload is returned by Dispatch when a payload does not
	// match its message type.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Transport delivers a message to one live connection. Send must not block;
// a message for a handle that is gone is dropped.
type Transport interface {
	Send(to Handle, msg *Message)
}

// Router applies the signaling rules: room joins, targeted relay of offers,
// answers and candidates, and cleanup on close. An unresolvable target is
// not an error; the message is dropped.
type Router struct {
	identities *identity.Registry
	rooms      *rooms.Set
	transport  Transport
	log        *slog.Logger
}

// NewRouter wires a Router to its registry, room set and transport.
func NewRouter(identities *identity.Registry, roomSet *rooms.Set, transport Transport, log *slog.Logger) *Router {
	return &Router{
		identities: identities,
		rooms:      roomSet,
		transport:  transport,
		log:        log,
	}
}

// Dispatch handles one inbound message from the connection from. It only
// returns an error when the message itself cannot be understood.
func (r *Router) Dispatch(from Handle, msg *Message) error {
	switch msg.Type {
	case TypeJoinRoom:
		var p JoinRoomPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		r.JoinRoom(from, p)

	case TypeCallUser:
		var p CallUserPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		r.CallUser(from, p)

	case TypeAnswerCall:
		var p AnswerCallPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		r.AnswerCall(from, p)

	case TypeICECandidate:
		var p SendCandidatePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		r.ICECandidate(from, p)

	case TypeCallAccepted:
		var p AcceptCallPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		r.CallAccepted(from, p)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return nil
}

func decode(msg *Message, v any) error {
	if err := msg.DecodePayload(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, msg.Type, err)
	}
	return nil
}

// JoinRoom binds the sender's identity, adds it to the room, acknowledges
// with the identities already present and tells the others.
func (r *Router) JoinRoom(from Handle, p JoinRoomPayload) {
	if d := r.identities.Register(p.Email, string(from)); d.Any() {
		r.log.Warn("identity rebound",
			"identity", p.Email,
			"handle", from,
			"orphaned_handle", d.Handle,
			"previous_identity", d.Identity,
		)
	}
	r.rooms.Join(p.RoomID, string(from))
	r.log.Info("user joined room", "identity", p.Email, "room", p.RoomID, "handle", from)

	others := lo.Filter(r.rooms.Members(p.RoomID), func(h string, _ int) bool {
		return h != string(from)
	})
	existing := lo.Map(others, func(h string, _ int) *string {
		if id, ok := r.identities.ResolveIdentity(h); ok {
			return &id
		}
		return nil
	})

	r.send(from, TypeJoinedRoom, JoinedRoomPayload{RoomID: p.RoomID, ExistingUsers: existing})

	joined := UserJoinedPayload{Email: p.Email}
	for _, h := range others {
		r.send(Handle(h), TypeUserJoined, joined)
	}
}

// CallUser forwards an offer to the target when both the target and the
// caller have an identity. An empty caller identity counts as none.
func (r *Router) CallUser(from Handle, p CallUserPayload) {
	caller, ok := r.identities.ResolveIdentity(string(from))
	if !ok || caller == "" {
		r.log.Debug("call dropped: caller has no identity", "handle", from)
		return
	}
	target, ok := r.resolve(p.Email, TypeCallUser)
	if !ok {
		return
	}
	r.send(target, TypeIncomingCall, IncomingCallPayload{From: caller, Offer: p.Offer})
}

// AnswerCall forwards an answer to the target.
func (r *Router) AnswerCall(from Handle, p AnswerCallPayload) {
	if target, ok := r.resolve(p.Email, TypeAnswerCall); ok {
		r.send(target, TypeCallAnswered, CallAnsweredPayload{Answer: p.Answer})
	}
}

// ICECandidate forwards a candidate to the target.
func (r *Router) ICECandidate(from Handle, p SendCandidatePayload) {
	if target, ok := r.resolve(p.Email, TypeICECandidate); ok {
		r.send(target, TypeICECandidate, CandidatePayload{Candidate: p.Candidate})
	}
}

// CallAccepted forwards the callee's answer to the target.
func (r *Router) CallAccepted(from Handle, p AcceptCallPayload) {
	if target, ok := r.resolve(p.Email, TypeCallAccepted); ok {
		r.send(target, TypeCallAccepted, CallAcceptedPayload{Ans: p.Ans})
	}
}

// Closed forgets the connection: its identity binding and its rooms. Remaining
// members are not notified.
func (r *Router) Closed(h Handle) {
	left := r.rooms.LeaveAll(string(h))
	if id, ok := r.identities.Remove(string(h)); ok {
		r.log.Info("user disconnected", "identity", id, "handle", h, "rooms", left)
		return
	}
	r.log.Debug("connection closed without identity", "handle", h, "rooms", left)
}

func (r *Router) resolve(target string, t MessageType) (Handle, bool) {
	h, ok := r.identities.ResolveHandle(target)
	if !ok {
		r.log.Debug("relay dropped: target not connected", "type", t, "target", target)
		return "", false
	}
	return Handle(h), true
}

func (r *Router) send(to Handle, t MessageType, payload any) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		r.log.Error("failed to encode message", "type", t, "error", err)
		return
	}
	r.transport.Send(to, msg)
}
