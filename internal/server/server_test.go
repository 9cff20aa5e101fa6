package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/callrelay/internal/config"
	"github.com/BioHazard786/callrelay/internal/identity"
	"github.com/BioHazard786/callrelay/internal/rooms"
	"github.com/BioHazard786/callrelay/internal/signaling"
)

const readTimeout = 2 * time.Second

func newTestServer(t *testing.T, origins string) *httptest.Server {
	t.Helper()
	cfg := &config.ServerConfig{
		AllowedOrigins: origins,
		SendBuffer:     16,
		MaxMessageSize: signaling.DefaultMaxMessageSize,
	}
	log := slog.New(slog.DiscardHandler)
	hub := signaling.NewHub(identity.NewRegistry(), rooms.NewSet(), log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ts := httptest.NewServer(New(cfg, hub, log).Handler())
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		ts.Close()
	})
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server, subprotocols ...string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Subprotocols: subprotocols, HandshakeTimeout: readTimeout}
	conn, _, err := d.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ signaling.MessageType, payload any) {
	t.Helper()
	msg, err := signaling.NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

func recv(t *testing.T, conn *websocket.Conn) *signaling.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := signaling.CodecFor(conn.Subprotocol()).Decode(data)
	require.NoError(t, err)
	return msg
}

func recvType(t *testing.T, conn *websocket.Conn, want signaling.MessageType, payload string) {
	t.Helper()
	msg := recv(t, conn)
	require.Equal(t, want, msg.Type)
	require.JSONEq(t, payload, string(msg.Payload))
}

// expectSilence must be the last read on conn: a timed-out gorilla
// connection cannot be read again.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
}

func snapshot(t *testing.T, ts *httptest.Server) signaling.Snapshot {
	t.Helper()
	resp, err := http.Get(ts.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var s signaling.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func TestRelay_Join_Call_Answer_Disconnect(t *testing.T) {
	ts := newTestServer(t, "*")
	a := dial(t, ts)
	b := dial(t, ts)

	// A joins R1 as alice
	send(t, a, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
	recvType(t, a, signaling.TypeJoinedRoom, `{"roomId":"R1","existingUsers":[]}`)

	// B joins R1 as bob
	send(t, b, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "bob"})
	recvType(t, b, signaling.TypeJoinedRoom, `{"roomId":"R1","existingUsers":["alice"]}`)
	recvType(t, a, signaling.TypeUserJoined, `{"email":"bob"}`)

	// A calls bob
	send(t, a, signaling.TypeCallUser, map[string]any{"email": "bob", "offer": map[string]string{"type": "offer", "sdp": "O"}})
	recvType(t, b, signaling.TypeIncomingCall, `{"from":"alice","offer":{"type":"offer","sdp":"O"}}`)

	// B answers both ways and trickles a candidate
	send(t, b, signaling.TypeAnswerCall, map[string]any{"email": "alice", "answer": "Ans"})
	recvType(t, a, signaling.TypeCallAnswered, `{"answer":"Ans"}`)

	send(t, b, signaling.TypeCallAccepted, map[string]any{"email": "alice", "ans": map[string]string{"sdp": "A"}})
	recvType(t, a, signaling.TypeCallAccepted, `{"ans":{"sdp":"A"}}`)

	send(t, b, signaling.TypeICECandidate, map[string]any{"email": "alice", "candidate": map[string]any{"candidate": "c1", "sdpMLineIndex": 0}})
	recvType(t, a, signaling.TypeICECandidate, `{"candidate":{"candidate":"c1","sdpMLineIndex":0}}`)

	// A disconnects; alice becomes unreachable and bob hears nothing
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return snapshot(t, ts).Identities == 1
	}, readTimeout, 10*time.Millisecond)

	send(t, b, signaling.TypeCallUser, map[string]any{"email": "alice", "offer": "O2"})
	expectSilence(t, b)
}

func TestRelay_Call_To_Unknown_Target_Delivers_Nothing(t *testing.T) {
	ts := newTestServer(t, "*")
	a := dial(t, ts)
	b := dial(t, ts)

	send(t, a, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
	recv(t, a)
	send(t, b, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "bob"})
	recv(t, b)
	recv(t, a)

	send(t, a, signaling.TypeCallUser, map[string]any{"email": "carol", "offer": "O"})
	expectSilence(t, b)
	expectSilence(t, a)
}

func TestRelay_Bad_Frames_Get_Error_And_Keep_Connection(t *testing.T) {
	ts := newTestServer(t, "*")
	a := dial(t, ts)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := recv(t, a)
	require.Equal(t, signaling.TypeError, msg.Type)

	send(t, a, "leave-room", nil)
	msg = recv(t, a)
	require.Equal(t, signaling.TypeError, msg.Type)
	require.Contains(t, string(msg.Payload), "unknown message type")

	// still usable
	send(t, a, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
	recvType(t, a, signaling.TypeJoinedRoom, `{"roomId":"R1","existingUsers":[]}`)
}

func TestRelay_Msgpack_And_JSON_Clients_Interoperate(t *testing.T) {
	ts := newTestServer(t, "*")
	a := dial(t, ts, signaling.SubprotocolJSON)
	b := dial(t, ts, signaling.SubprotocolMsgpack)
	require.Equal(t, signaling.SubprotocolMsgpack, b.Subprotocol())

	send(t, a, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
	recv(t, a)

	join, err := signaling.NewMessage(signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "bob"})
	require.NoError(t, err)
	frame, err := signaling.MsgpackCodec.Encode(join)
	require.NoError(t, err)
	require.NoError(t, b.WriteMessage(websocket.BinaryMessage, frame))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(readTimeout)))
	kind, data, err := b.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	msg, err := signaling.MsgpackCodec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, signaling.TypeJoinedRoom, msg.Type)
	require.JSONEq(t, `{"roomId":"R1","existingUsers":["alice"]}`, string(msg.Payload))
	recvType(t, a, signaling.TypeUserJoined, `{"email":"bob"}`)

	send(t, a, signaling.TypeCallUser, map[string]any{"email": "bob", "offer": map[string]any{"type": "offer", "sdp": "v=0"}})
	recvType(t, b, signaling.TypeIncomingCall, `{"from":"alice","offer":{"type":"offer","sdp":"v=0"}}`)

	// integers beyond float64 precision arrive intact
	send(t, a, signaling.TypeICECandidate, map[string]any{"email": "bob", "candidate": json.RawMessage(`{"id":9007199254740993,"sdpMLineIndex":1}`)})
	msg = recv(t, b)
	require.Equal(t, signaling.TypeICECandidate, msg.Type)
	require.Contains(t, string(msg.Payload), `"id":9007199254740993`)
}

func TestRooms_Endpoint(t *testing.T) {
	ts := newTestServer(t, "*")
	a := dial(t, ts)
	b := dial(t, ts)
	dial(t, ts) // connected but never joins

	send(t, a, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "alice"})
	recv(t, a)
	send(t, b, signaling.TypeJoinRoom, signaling.JoinRoomPayload{RoomID: "R1", Email: "bob"})
	recv(t, b)

	// the idle connection registers after its handshake completes
	var s signaling.Snapshot
	require.Eventually(t, func() bool {
		s = snapshot(t, ts)
		return s.Connections == 3
	}, readTimeout, 10*time.Millisecond)
	require.Equal(t, 2, s.Identities)
	require.Len(t, s.Rooms, 1)
	require.Equal(t, "R1", s.Rooms[0].ID)
	require.Len(t, s.Rooms[0].Members, 2)
	require.Equal(t, "alice", s.Rooms[0].Members[0].Identity)
	require.Equal(t, "bob", s.Rooms[0].Members[1].Identity)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, "*")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Signaling server is healthy.", string(body))
}

func TestServeWs_Rejects_Disallowed_Origin(t *testing.T) {
	ts := newTestServer(t, "https://app.example")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	conn.Close()
}

func TestRun_Stops_On_Cancel(t *testing.T) {
	cfg := &config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		AllowedOrigins:  "*",
		SendBuffer:      16,
		MaxMessageSize:  signaling.DefaultMaxMessageSize,
		ShutdownTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg, slog.New(slog.DiscardHandler)) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
