// Package peer holds the WebRTC side of a call: one pion PeerConnection with a
// single ordered "chat" data channel carrying msgpack frames.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/callrelay/internal/config"
)

// ChannelLabel names the data channel both sides use.
const ChannelLabel = "chat"

var (
	ErrChannelNotOpen = errors.New("channel not open")
	ErrBadDescription = errors.New("bad session description")
	ErrBadCandidate   = errors.New("bad ICE candidate")
)

type PeerError struct {
	Op  string
	Err error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *PeerError {
	return &PeerError{Op: op, Err: err}
}

// ChatMessage is one frame on the chat channel.
type ChatMessage struct {
	From   string    `msgpack:"from"`
	Text   string    `msgpack:"text"`
	SentAt time.Time `msgpack:"sentAt"`
}

// Peer is one end of a call.
type Peer struct {
	pc  *pion.PeerConnection
	log *slog.Logger

	mu        sync.Mutex
	dc        *pion.DataChannel
	pending   []pion.ICECandidateInit
	remoteSet bool

	opened     chan struct{}
	openOnce   sync.Once
	done       chan struct{}
	doneOnce   sync.Once
	messages   chan ChatMessage
	candidates func([]byte)
}

// NewPeerConnection builds a pion PeerConnection with the STUN and TURN
// servers from cfg. Relay-only mode kicks in when cfg.ForceRelay is set or the
// host looks tunneled.
func NewPeerConnection(cfg *config.ClientConfig) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: transportPolicy(cfg, behindRestrictiveNAT),
	})
	if err != nil {
		return nil, newError("create peer connection", err)
	}
	return pc, nil
}

// New creates a peer. Call CreateOffer on the calling side or Accept on the
// answering side.
func New(cfg *config.ClientConfig, log *slog.Logger) (*Peer, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		pc:       pc,
		log:      log,
		opened:   make(chan struct{}),
		done:     make(chan struct{}),
		messages: make(chan ChatMessage, 64),
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debug("ICE state", "state", state.String())
		if state == pion.ICEConnectionStateFailed || state == pion.ICEConnectionStateClosed {
			p.doneOnce.Do(func() { close(p.done) })
		}
	})

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		p.mu.Lock()
		fn := p.candidates
		p.mu.Unlock()
		if fn == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Error("failed to encode candidate", "error", err)
			return
		}
		fn(data)
	})

	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ChannelLabel {
			p.log.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		p.attach(dc)
	})

	return p, nil
}

// OnCandidate registers fn to receive each local ICE candidate as JSON, in the
// browser's RTCIceCandidateInit shape.
func (p *Peer) OnCandidate(fn func(candidate []byte)) {
	p.mu.Lock()
	p.candidates = fn
	p.mu.Unlock()
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.openOnce.Do(func() { close(p.opened) })
	})

	dc.OnClose(func() {
		p.doneOnce.Do(func() { close(p.done) })
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		var chat ChatMessage
		if err := msgpack.Unmarshal(msg.Data, &chat); err != nil {
			p.log.Warn("failed to parse chat frame", "error", err)
			return
		}
		select {
		case p.messages <- chat:
		default:
			p.log.Warn("chat message dropped")
		}
	})
}

// CreateOffer opens the chat channel and returns the local offer as JSON.
// Candidates trickle through OnCandidate.
func (p *Peer) CreateOffer() ([]byte, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, newError("create data channel", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, newError("create offer", err)
	}
	if err = p.pc.SetLocalDescription(offer); err != nil {
		return nil, newError("set local description", err)
	}
	return json.Marshal(p.pc.LocalDescription())
}

// Accept applies a remote offer and returns the local answer as JSON.
func (p *Peer) Accept(offer []byte) ([]byte, error) {
	desc, err := parseDescription(offer, pion.SDPTypeOffer)
	if err != nil {
		return nil, err
	}
	if err := p.setRemote(desc); err != nil {
		return nil, err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, newError("create answer", err)
	}
	if err = p.pc.SetLocalDescription(answer); err != nil {
		return nil, newError("set local description", err)
	}
	return json.Marshal(p.pc.LocalDescription())
}

// SetAnswer applies the remote answer to a previously created offer.
func (p *Peer) SetAnswer(answer []byte) error {
	desc, err := parseDescription(answer, pion.SDPTypeAnswer)
	if err != nil {
		return err
	}
	return p.setRemote(desc)
}

func (p *Peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return newError("set remote description", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Warn("failed to add queued candidate", "error", err)
		}
	}
	return nil
}

func parseDescription(data []byte, want pion.SDPType) (pion.SessionDescription, error) {
	var desc pion.SessionDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, newError("parse description", fmt.Errorf("%w: %v", ErrBadDescription, err))
	}
	if desc.Type != want || desc.SDP == "" {
		return desc, newError("parse description", fmt.Errorf("%w: want %s, got %s", ErrBadDescription, want, desc.Type))
	}
	return desc, nil
}

// AddCandidate applies a remote ICE candidate. Candidates that arrive before
// the remote description are queued.
func (p *Peer) AddCandidate(candidate []byte) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &ice); err != nil {
		return newError("parse ICE candidate", fmt.Errorf("%w: %v", ErrBadCandidate, err))
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, ice)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(ice); err != nil {
		return newError("add ICE candidate", err)
	}
	return nil
}

// Pending returns how many remote candidates are waiting for a remote
// description.
func (p *Peer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Send writes a chat line.
func (p *Peer) Send(from, text string) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return newError("send", ErrChannelNotOpen)
	}

	data, err := msgpack.Marshal(ChatMessage{From: from, Text: text, SentAt: time.Now()})
	if err != nil {
		return newError("send", err)
	}
	if err := dc.Send(data); err != nil {
		return newError("send", err)
	}
	return nil
}

// Opened is closed once the chat channel is open.
func (p *Peer) Opened() <-chan struct{} {
	return p.opened
}

// Done is closed when the connection fails or the chat channel closes.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Messages delivers incoming chat lines.
func (p *Peer) Messages() <-chan ChatMessage {
	return p.messages
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
