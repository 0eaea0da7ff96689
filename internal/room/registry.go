// Package room holds the in-memory room registry: the mapping from room
// identifier to the set of member connections. Rooms are created on first
// join and deleted the instant their member set becomes empty.
package room

import (
	"sync"

	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/util"
)

// Member is the registry's view of a connection. Enqueue must not block:
// it hands the frame to the member's writer and reports failure without
// retrying. Open reports whether the underlying channel can still accept
// frames.
type Member interface {
	ID() string
	Open() bool
	Enqueue(f *protocol.Frame) error
}

// Registry maps room identifiers to member sets. A single mutex guards the
// whole table; membership mutation and fan-out enqueue happen inside the
// critical section so frame order within a room matches router processing
// order.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[Member]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Member]struct{})}
}

// Add inserts m into the room, creating the room on demand. Adding a member
// that is already present is a no-op.
func (r *Registry) Add(roomID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[Member]struct{})
		r.rooms[roomID] = set
		util.LogDebug("room created: %s", roomID)
	}
	set[m] = struct{}{}
}

// Remove deletes m from the room. Removing an absent member is a no-op.
// If the removal empties the room, the room is deleted in the same critical
// section — an empty room is never observable.
func (r *Registry) Remove(roomID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(set, m)
	if len(set) == 0 {
		delete(r.rooms, roomID)
		util.LogDebug("room deleted (empty): %s", roomID)
	}
}

// Broadcast enqueues f to every member of the room except the excluded one.
// Members whose channel is no longer open are skipped silently; a failing
// member is logged and never blocks delivery to the rest.
func (r *Registry) Broadcast(roomID string, f *protocol.Frame, except Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for m := range r.rooms[roomID] {
		if m == except || !m.Open() {
			continue
		}
		if err := m.Enqueue(f); err != nil {
			util.LogWarning("broadcast to %s in room %s failed: %v", m.ID(), roomID, err)
		}
	}
}

// Members returns the current member count of the room, zero if it does not exist.
func (r *Registry) Members(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// TotalMembers returns the number of bound members across all rooms,
// computed on demand.
func (r *Registry) TotalMembers() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, set := range r.rooms {
		total += len(set)
	}
	return total
}
