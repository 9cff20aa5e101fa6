package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/BioHazard786/callrelay/internal/identity"
	"github.com/BioHazard786/callrelay/internal/rooms"
)

// ErrHubClosed is returned when registering with a hub that has stopped.
var ErrHubClosed = errors.New("hub closed")

// inbound is one decoded frame, or the decode error, from a client.
type inbound struct {
	from *Client
	msg  *Message
	err  error
}

// Hub owns the live connections. Every lifecycle event and inbound message
// is handled on the single goroutine running Run, so the router sees one
// ordered event stream.
type Hub struct {
	// clients is only touched by the Run goroutine.
	clients map[Handle]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	router      *Router
	identities  *identity.Registry
	rooms       *rooms.Set
	connections atomic.Int64
	log         *slog.Logger
}

// NewHub creates a Hub routing through a Router built on the given registry
// and room set.
func NewHub(identities *identity.Registry, roomSet *rooms.Set, log *slog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[Handle]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		identities: identities,
		rooms:      roomSet,
		log:        log,
	}
	h.router = NewRouter(identities, roomSet, h, log)
	return h
}

// Run processes events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				h.drop(c)
			}
			h.log.Info("hub stopped")
			return

		case c := <-h.register:
			h.clients[c.handle] = c
			h.connections.Add(1)
			h.log.Debug("client registered", "handle", c.handle, "remote", c.conn.RemoteAddr(), "codec", c.codec.Subprotocol())

		case c := <-h.unregister:
			h.drop(c)

		case in := <-h.inbound:
			if cur, ok := h.clients[in.from.handle]; !ok || cur != in.from {
				continue
			}
			if in.err != nil {
				h.log.Debug("undecodable frame", "handle", in.from.handle, "error", in.err)
				h.reply(in.from.handle, in.err)
				continue
			}
			h.log.Debug("message received", "type", in.msg.Type, "handle", in.from.handle)
			if err := h.router.Dispatch(in.from.handle, in.msg); err != nil {
				h.log.Debug("message rejected", "type", in.msg.Type, "handle", in.from.handle, "error", err)
				h.reply(in.from.handle, err)
			}
		}
	}
}

// Register hands a freshly upgraded client to the hub.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Send queues msg for the client behind to. A client whose buffer is full is
// disconnected. Send must only be called from the Run goroutine, which is
// where the router calls it.
func (h *Hub) Send(to Handle, msg *Message) {
	c, ok := h.clients[to]
	if !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.log.Warn("send buffer full, dropping client", "handle", to)
		h.drop(c)
	}
}

func (h *Hub) reply(to Handle, err error) {
	msg, mErr := NewMessage(TypeError, ErrorPayload{Error: err.Error()})
	if mErr != nil {
		return
	}
	h.Send(to, msg)
}

// drop unregisters c once; later calls for the same client do nothing.
func (h *Hub) drop(c *Client) {
	if cur, ok := h.clients[c.handle]; !ok || cur != c {
		return
	}
	delete(h.clients, c.handle)
	h.connections.Add(-1)
	close(c.send)
	h.router.Closed(c.handle)
	h.log.Debug("client unregistered", "handle", c.handle)
}

// MemberView is one room member in a Snapshot.
type MemberView struct {
	Handle   Handle `json:"handle"`
	Identity string `json:"identity,omitempty"`
}

// RoomView is one room in a Snapshot.
type RoomView struct {
	ID      string       `json:"id"`
	Members []MemberView `json:"members"`
}

// Snapshot is a point-in-time view of the relay for diagnostics.
type Snapshot struct {
	Connections int        `json:"connections"`
	Identities  int        `json:"identities"`
	Rooms       []RoomView `json:"rooms"`
}

// Snapshot reports connections, identities and room membership. It is safe
// to call from any goroutine.
func (h *Hub) Snapshot() Snapshot {
	infos := h.rooms.Snapshot()
	views := make([]RoomView, 0, len(infos))
	for _, info := range infos {
		members := make([]MemberView, 0, len(info.Members))
		for _, m := range info.Members {
			id, _ := h.identities.ResolveIdentity(m)
			members = append(members, MemberView{Handle: Handle(m), Identity: id})
		}
		views = append(views, RoomView{ID: info.ID, Members: members})
	}
	return Snapshot{
		Connections: int(h.connections.Load()),
		Identities:  h.identities.Len(),
		Rooms:       views,
	}
}
