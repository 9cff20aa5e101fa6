package signaling

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Handle identifies one live websocket connection.
type Handle string

// NewHandle returns a fresh random handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// MessageType names a signaling event.
type MessageType string

// Client to server.
const (
	TypeJoinRoom     MessageType = "join-room"
	TypeCallUser     MessageType = "call-user"
	TypeAnswerCall   MessageType = "answer-call"
	TypeICECandidate MessageType = "ice-candidate"
	TypeCallAccepted MessageType = "call-accepted"
)

// Server to client. ice-candidate and call-accepted keep their inbound names.
const (
	TypeJoinedRoom   MessageType = "joined-room"
	TypeUserJoined   MessageType = "user-joined"
	TypeIncomingCall MessageType = "incoming-call"
	TypeCallAnswered MessageType = "call-answered"
	TypeError        MessageType = "error"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage marshals payload into a Message of type t.
func NewMessage(t MessageType, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: t, Payload: b}, nil
}

// DecodePayload unmarshals the payload into v. An empty payload leaves v
// untouched.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// JoinRoomPayload asks to join RoomID as Email.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Email  string `json:"email"`
}

// CallUserPayload carries an SDP offer for Email.
type CallUserPayload struct {
	Email string          `json:"email"`
	Offer json.RawMessage `json:"offer"`
}

// AnswerCallPayload carries an SDP answer for Email.
type AnswerCallPayload struct {
	Email  string          `json:"email"`
	Answer json.RawMessage `json:"answer"`
}

// SendCandidatePayload carries an ICE candidate for Email.
type SendCandidatePayload struct {
	Email     string          `json:"email"`
	Candidate json.RawMessage `json:"candidate"`
}

// AcceptCallPayload carries the callee's answer back to the caller Email.
type AcceptCallPayload struct {
	Email string          `json:"email"`
	Ans   json.RawMessage `json:"ans"`
}

// JoinedRoomPayload acknowledges a join. ExistingUsers holds the identities
// of the other members; a member without a registered identity is nil.
type JoinedRoomPayload struct {
	RoomID        string    `json:"roomId"`
	ExistingUsers []*string `json:"existingUsers"`
}

// UserJoinedPayload tells room members that Email joined.
type UserJoinedPayload struct {
	Email string `json:"email"`
}

// IncomingCallPayload delivers an offer from the caller identity From.
type IncomingCallPayload struct {
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

// CallAnsweredPayload delivers an answer.
type CallAnsweredPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// CandidatePayload delivers an ICE candidate.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// CallAcceptedPayload delivers the callee's answer.
type CallAcceptedPayload struct {
	Ans json.RawMessage `json:"ans"`
}

// ErrorPayload reports a frame the server could not understand.
type ErrorPayload struct {
	Error string `json:"error"`
}
