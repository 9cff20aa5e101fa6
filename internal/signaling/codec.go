package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Websocket subprotocols understood by the relay. A client that negotiates
// neither gets JSON.
const (
	SubprotocolJSON    = "callrelay.json"
	SubprotocolMsgpack = "callrelay.msgpack"
)

// Subprotocols lists every supported subprotocol in server preference order.
var Subprotocols = []string{SubprotocolJSON, SubprotocolMsgpack}

// Codec converts between Messages and websocket frames.
type Codec interface {
	Subprotocol() string
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

var (
	// JSONCodec sends text frames and is the fallback for unknown subprotocols.
	JSONCodec Codec = jsonCodec{}
	// MsgpackCodec sends binary frames.
	MsgpackCodec Codec = msgpackCodec{}
)

// CodecFor returns the codec for a negotiated subprotocol.
func CodecFor(subprotocol string) Codec {
	if subprotocol == SubprotocolMsgpack {
		return MsgpackCodec
	}
	return JSONCodec
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string { return SubprotocolJSON }

func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &msg, nil
}

// msgpackEnvelope is the binary form of Message. Payloads stay JSON in
// memory, so a msgpack client and a JSON client can signal each other.
type msgpackEnvelope struct {
	Type    MessageType `msgpack:"type"`
	Payload any         `msgpack:"payload,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Subprotocol() string { return SubprotocolMsgpack }

func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(msg *Message) ([]byte, error) {
	env := msgpackEnvelope{Type: msg.Type}
	if len(msg.Payload) > 0 {
		payload, err := unmarshalNumbers(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		env.Payload = payload
	}
	return msgpack.Marshal(&env)
}

// unmarshalNumbers decodes JSON keeping integers as integers, so they cross
// into msgpack without passing through float64.
func unmarshalNumbers(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return convertNumbers(v), nil
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = convertNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = convertNumbers(e)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}

func (msgpackCodec) Decode(data []byte) (*Message, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	msg := &Message{Type: env.Type}
	if env.Payload != nil {
		b, err := json.Marshal(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		msg.Payload = b
	}
	return msg, nil
}
