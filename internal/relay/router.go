package relay

import (
	"context"

	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/room"
	"github.com/quackvoice/quack/internal/util"
)

// RelayedEvent carries the observability data emitted after a signaling frame
// has been fanned out to a room.
type RelayedEvent struct {
	RoomID string
	Frame  *protocol.Frame
}

// Router classifies and validates inbound frames, mutates the room registry
// accordingly, and triggers fan-out. Malformed input is invisible to the
// sender: every drop is silent on the wire.
type Router struct {
	registry *room.Registry
	presence Presence

	// onRelayed is an optional subscription owned by the supervisor; it is
	// invoked after each successful fan-out.
	onRelayed func(RelayedEvent)
}

// NewRouter creates a router over the given registry. presence may be nil.
func NewRouter(registry *room.Registry, presence Presence) *Router {
	if presence == nil {
		presence = NopPresence{}
	}
	return &Router{registry: registry, presence: presence}
}

// OnRelayed registers the relayed-frame subscription. It must be set before
// the first connection is accepted.
func (rt *Router) OnRelayed(fn func(RelayedEvent)) {
	rt.onRelayed = fn
}

// Handle is the single entry point for a raw inbound frame from conn.
// Frames are processed on the connection's own read goroutine; the registry's
// critical section serializes cross-connection access per room.
func (rt *Router) Handle(conn *Conn, raw []byte) {
	f, err := protocol.Parse(raw)
	if err != nil {
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping malformed frame", conn.ID())
		return
	}

	switch f.Kind() {
	case protocol.KindJoin:
		rt.handleJoin(conn, f)

	case protocol.KindSignaling:
		rt.handleSignaling(conn, f)

	case protocol.KindSystem, protocol.KindInvalid:
		// System frames are relay-synthesized only; clients may not send
		// them. Unknown types fall out the same way.
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping frame of type %q", conn.ID(), f.Type)
	}
}

func (rt *Router) handleJoin(conn *Conn, f *protocol.Frame) {
	p, err := f.Join()
	if err != nil {
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping join with invalid payload", conn.ID())
		return
	}

	if roomID, _, bound := conn.meta(); bound {
		if roomID == p.RoomID {
			// Re-joining the same room with the same connection is legal
			// and a no-op.
			return
		}
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping join for %s, already bound to %s", conn.ID(), p.RoomID, roomID)
		return
	}

	conn.bind(p.RoomID, f.SenderID)
	rt.registry.Add(p.RoomID, conn)
	rt.registry.Broadcast(p.RoomID, protocol.SystemFrame(protocol.TypeUserJoined, f.SenderID), conn)
	rt.presence.Joined(context.Background(), p.RoomID, f.SenderID)

	util.Stats.AddJoin()
	util.LogInfo("user %s joined room %s", f.SenderID, p.RoomID)
}

func (rt *Router) handleSignaling(conn *Conn, f *protocol.Frame) {
	roomID, _, bound := conn.meta()
	if !bound {
		// Signaling before joining is invalid and unrecoverable for this
		// frame only; the connection stays open.
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping %s from unbound connection", conn.ID(), f.Type)
		return
	}

	if err := f.ValidateSignaling(); err != nil {
		util.Stats.AddDropped()
		util.LogDebug("conn %s: dropping %s with invalid payload", conn.ID(), f.Type)
		return
	}

	// Relay verbatim to every other member of the sender's room.
	rt.registry.Broadcast(roomID, f, conn)
	util.Stats.AddRelayed()

	if rt.onRelayed != nil {
		rt.onRelayed(RelayedEvent{RoomID: roomID, Frame: f})
	}
}
