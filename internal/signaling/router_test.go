package signaling_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/BioHazard786/callrelay/internal/identity"
	"github.com/BioHazard786/callrelay/internal/mocks"
	"github.com/BioHazard786/callrelay/internal/rooms"
	"github.com/BioHazard786/callrelay/internal/signaling"
)

const (
	connA signaling.Handle = "conn-a"
	connB signaling.Handle = "conn-b"
	connC signaling.Handle = "conn-c"
	connD signaling.Handle = "conn-d"
)

var (
	offer     = json.RawMessage(`{"type":"offer","sdp":"v=0 offer"}`)
	answer    = json.RawMessage(`{"type":"answer","sdp":"v=0 answer"}`)
	candidate = json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}`)
)

type messageMatcher struct {
	t       signaling.MessageType
	payload []byte
}

// isMessage matches a *signaling.Message by type and JSON-equal payload.
func isMessage(t signaling.MessageType, payload any) gomock.Matcher {
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return messageMatcher{t: t, payload: b}
}

func (m messageMatcher) Matches(x any) bool {
	msg, ok := x.(*signaling.Message)
	if !ok || msg.Type != m.t {
		return false
	}
	var got, want any
	if json.Unmarshal(msg.Payload, &got) != nil || json.Unmarshal(m.payload, &want) != nil {
		return false
	}
	return reflect.DeepEqual(got, want)
}

func (m messageMatcher) String() string {
	return fmt.Sprintf("%s %s", m.t, m.payload)
}

type fixture struct {
	router     *signaling.Router
	transport  *mocks.MockTransport
	identities *identity.Registry
	rooms      *rooms.Set
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		transport:  mocks.NewMockTransport(ctrl),
		identities: identity.NewRegistry(),
		rooms:      rooms.NewSet(),
	}
	f.router = signaling.NewRouter(f.identities, f.rooms, f.transport, slog.New(slog.DiscardHandler))
	return f
}

func (f *fixture) join(h signaling.Handle, room, email string, existing ...*string) {
	if existing == nil {
		existing = []*string{}
	}
	f.transport.EXPECT().
		Send(h, isMessage(signaling.TypeJoinedRoom, signaling.JoinedRoomPayload{RoomID: room, ExistingUsers: existing})).
		Times(1)
	f.router.JoinRoom(h, signaling.JoinRoomPayload{RoomID: room, Email: email})
}

func str(s string) *string { return &s }

func TestRouter_JoinRoom_First_Member_Gets_Empty_List(t *testing.T) {
	f := newFixture(t)

	f.join(connA, "R1", "alice")

	h, ok := f.identities.ResolveHandle("alice")
	require.True(t, ok)
	require.Equal(t, string(connA), h)
	require.Equal(t, []string{string(connA)}, f.rooms.Members("R1"))
}

func TestRouter_JoinRoom_Second_Member_Sees_First_And_First_Is_Notified(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")

	f.transport.EXPECT().Send(connA, isMessage(signaling.TypeUserJoined, signaling.UserJoinedPayload{Email: "bob"})).Times(1)
	f.join(connB, "R1", "bob", str("alice"))
}

func TestRouter_JoinRoom_Other_Rooms_Are_Not_Notified(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")

	// connA is in R1 only, so no user-joined reaches it
	f.join(connB, "R2", "bob")
}

func TestRouter_JoinRoom_Unresolved_Member_Is_Null(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")

	// connC takes over "alice"; connA stays in the room without an identity
	f.transport.EXPECT().Send(connA, isMessage(signaling.TypeUserJoined, signaling.UserJoinedPayload{Email: "alice"})).Times(1)
	f.join(connC, "R1", "alice", nil)

	f.transport.EXPECT().Send(connA, isMessage(signaling.TypeUserJoined, signaling.UserJoinedPayload{Email: "dave"})).Times(1)
	f.transport.EXPECT().Send(connC, isMessage(signaling.TypeUserJoined, signaling.UserJoinedPayload{Email: "dave"})).Times(1)
	f.join(connD, "R1", "dave", nil, str("alice"))
}

func TestRouter_CallUser(t *testing.T) {
	t.Run("delivers offer with caller identity", func(t *testing.T) {
		f := newFixture(t)
		f.join(connA, "R1", "alice")
		f.transport.EXPECT().Send(connA, gomock.Any()).Times(1)
		f.join(connB, "R1", "bob", str("alice"))

		f.transport.EXPECT().
			Send(connB, isMessage(signaling.TypeIncomingCall, signaling.IncomingCallPayload{From: "alice", Offer: offer})).
			Times(1)
		f.router.CallUser(connA, signaling.CallUserPayload{Email: "bob", Offer: offer})
	})

	t.Run("drops when target never joined", func(t *testing.T) {
		f := newFixture(t)
		f.join(connA, "R1", "alice")

		f.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
		f.router.CallUser(connA, signaling.CallUserPayload{Email: "bob", Offer: offer})
	})

	t.Run("drops when caller has no identity", func(t *testing.T) {
		f := newFixture(t)
		f.join(connB, "R1", "bob")

		f.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
		f.router.CallUser(connC, signaling.CallUserPayload{Email: "bob", Offer: offer})
	})

	t.Run("drops when caller joined with empty identity", func(t *testing.T) {
		f := newFixture(t)
		f.join(connA, "R1", "")
		f.transport.EXPECT().Send(connA, gomock.Any()).Times(1)
		f.join(connB, "R1", "bob", str(""))

		f.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
		f.router.CallUser(connA, signaling.CallUserPayload{Email: "bob", Offer: offer})
	})
}

func TestRouter_AnswerCall(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")

	f.transport.EXPECT().
		Send(connA, isMessage(signaling.TypeCallAnswered, signaling.CallAnsweredPayload{Answer: answer})).
		Times(1)
	f.router.AnswerCall(connB, signaling.AnswerCallPayload{Email: "alice", Answer: answer})

	// unknown target is dropped
	f.router.AnswerCall(connB, signaling.AnswerCallPayload{Email: "carol", Answer: answer})
}

func TestRouter_ICECandidate(t *testing.T) {
	f := newFixture(t)
	f.join(connB, "R1", "bob")

	f.transport.EXPECT().
		Send(connB, isMessage(signaling.TypeICECandidate, signaling.CandidatePayload{Candidate: candidate})).
		Times(1)
	f.router.ICECandidate(connA, signaling.SendCandidatePayload{Email: "bob", Candidate: candidate})
	f.router.ICECandidate(connA, signaling.SendCandidatePayload{Email: "nobody", Candidate: candidate})
}

func TestRouter_CallAccepted_Is_Guarded(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")

	f.transport.EXPECT().
		Send(connA, isMessage(signaling.TypeCallAccepted, signaling.CallAcceptedPayload{Ans: answer})).
		Times(1)
	f.router.CallAccepted(connB, signaling.AcceptCallPayload{Email: "alice", Ans: answer})
	f.router.CallAccepted(connB, signaling.AcceptCallPayload{Email: "ghost", Ans: answer})
}

func TestRouter_Closed_Makes_Identity_Unreachable_Without_Broadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.join(connA, "R1", "alice")
	f.transport.EXPECT().Send(connA, gomock.Any()).Times(1)
	f.join(connB, "R1", "bob", str("alice"))

	// no departure notice and nothing relayed afterwards
	f.transport.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)
	f.router.Closed(connA)
	f.router.CallUser(connB, signaling.CallUserPayload{Email: "alice", Offer: offer})

	_, ok := f.identities.ResolveHandle("alice")
	req.False(ok)
	req.Equal([]string{string(connB)}, f.rooms.Members("R1"))

	// closing twice is harmless
	f.router.Closed(connA)
}

func TestRouter_Closed_Of_Evicted_Connection_Keeps_New_Binding(t *testing.T) {
	f := newFixture(t)
	f.join(connA, "R1", "alice")
	f.join(connB, "R2", "alice")

	f.router.Closed(connA)

	h, ok := f.identities.ResolveHandle("alice")
	require.True(t, ok)
	require.Equal(t, string(connB), h)
}

func TestRouter_Dispatch(t *testing.T) {
	t.Run("routes by type", func(t *testing.T) {
		f := newFixture(t)
		msg, err := signaling.NewMessage(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
		require.NoError(t, err)

		f.transport.EXPECT().
			Send(connA, isMessage(signaling.TypeJoinedRoom, signaling.JoinedRoomPayload{RoomID: "R1", ExistingUsers: []*string{}})).
			Times(1)
		require.NoError(t, f.router.Dispatch(connA, msg))
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		f := newFixture(t)
		err := f.router.Dispatch(connA, &signaling.Message{Type: "leave-room"})
		require.ErrorIs(t, err, signaling.ErrUnknownType)
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		f := newFixture(t)
		err := f.router.Dispatch(connA, &signaling.Message{Type: signaling.TypeCallUser, Payload: json.RawMessage(`"bob"`)})
		require.ErrorIs(t, err, signaling.ErrMalformedPayload)
	})

	t.Run("outbound-only types are unknown inbound", func(t *testing.T) {
		f := newFixture(t)
		err := f.router.Dispatch(connA, &signaling.Message{Type: signaling.TypeIncomingCall})
		require.ErrorIs(t, err, signaling.ErrUnknownType)
	})
}
