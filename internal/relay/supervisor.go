// Package relay implements the server side of the signaling core: the
// message router that validates and fans out frames, and the connection
// supervisor that owns the physical WebSocket lifecycle.
package relay

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/room"
	"github.com/quackvoice/quack/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the HTTP layer.
		return true
	},
}

// StatsSnapshot is the read-only aggregate exposed on the HTTP surface.
// Values are computed on demand, never cached.
type StatsSnapshot struct {
	Connections  int `json:"connections"`
	Rooms        int `json:"rooms"`
	TotalClients int `json:"totalClients"`
}

// Supervisor owns every open connection: accept, per-connection pumps, and
// deterministic teardown. Teardown runs exactly once per connection even if
// close fires after an error.
type Supervisor struct {
	registry *room.Registry
	router   *Router
	presence Presence

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewSupervisor wires a supervisor over the registry and router.
// presence may be nil.
func NewSupervisor(registry *room.Registry, router *Router, presence Presence) *Supervisor {
	if presence == nil {
		presence = NopPresence{}
	}
	return &Supervisor{
		registry: registry,
		router:   router,
		presence: presence,
		conns:    make(map[*Conn]struct{}),
	}
}

// HandleWS upgrades an HTTP request and starts the connection's pumps.
func (s *Supervisor) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.LogWarning("upgrade failed: %v", err)
		return
	}

	c := newConn(uuid.NewString(), ws)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	util.LogDebug("conn %s accepted", c.ID())

	go c.writePump()
	go c.readPump(s.router, s.teardown)
}

// teardown removes the connection from its room, clears its metadata and
// broadcasts user-left if it was bound. Guarded by the connection's Once so
// an error followed by a close runs it a single time.
func (s *Supervisor) teardown(c *Conn) {
	c.once.Do(func() {
		roomID, userID, bound := c.meta()
		if bound {
			s.registry.Remove(roomID, c)
			c.clearMeta()
			s.registry.Broadcast(roomID, protocol.SystemFrame(protocol.TypeUserLeft, userID), nil)
			s.presence.Left(context.Background(), roomID, userID)
			util.Stats.AddLeave()
			util.LogInfo("user %s left room %s", userID, roomID)
		}

		c.markClosed()

		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()

		util.LogDebug("conn %s closed", c.ID())
	})
}

// Stats returns the current aggregate counters, computed on demand.
func (s *Supervisor) Stats() StatsSnapshot {
	s.mu.Lock()
	open := len(s.conns)
	s.mu.Unlock()

	return StatsSnapshot{
		Connections:  open,
		Rooms:        s.registry.Count(),
		TotalClients: s.registry.TotalMembers(),
	}
}

// CloseAll tears down every open connection. Used during graceful shutdown.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	open := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		s.teardown(c)
		c.ws.Close()
	}
}
