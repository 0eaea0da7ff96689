// Package signaling binds the transport client and the negotiation session:
// it translates domain events (peer joined, stream arrived) into outbound
// frames and inbound frames into negotiation calls.
package signaling

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/quackvoice/quack/internal/peer"
	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/util"
)

// Transport is the coordinator's view of the relay connection. The wsclient
// package provides the real one; tests substitute a recorder.
type Transport interface {
	Send(f *protocol.Frame) error
}

// Coordinator owns at most one active negotiation session at a time.
// Creating a new one always tears down and releases the previous one first,
// as a single replace-and-dispose transition under the coordinator's lock.
type Coordinator struct {
	userID    string
	roomID    string
	transport Transport
	newSource peer.SourceFactory

	onRemoteTrack func(*webrtc.TrackRemote)

	mu      sync.Mutex
	session *peer.Session
	started bool
	muted   bool
}

// New creates a coordinator for one user in one room.
func New(userID, roomID string, transport Transport, newSource peer.SourceFactory) *Coordinator {
	return &Coordinator{
		userID:    userID,
		roomID:    roomID,
		transport: transport,
		newSource: newSource,
	}
}

// OnRemoteTrack registers the remote-stream subscription. Set before frames
// start flowing.
func (c *Coordinator) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	c.onRemoteTrack = fn
}

// HandleConnected announces this user to the room. Wired to the transport's
// open event, it also covers re-joins after a reconnect: the relay treats a
// repeated join from the same connection as a no-op.
func (c *Coordinator) HandleConnected() {
	c.sendSignal(protocol.TypeJoin, protocol.JoinPayload{RoomID: c.roomID})
	util.LogInfo("joined room %s as %s", c.roomID, c.userID)
}

// HandleFrame consumes one inbound frame from the relay.
func (c *Coordinator) HandleFrame(f *protocol.Frame) {
	// The relay never echoes a sender's own broadcast, but guard anyway.
	if f.SenderID == c.userID {
		return
	}

	switch f.Type {
	case protocol.TypeUserJoined:
		util.LogInfo("user joined: %s", f.SenderID)
		// Auto-initiate when a peer arrives and no call has started on this
		// side. If both peers join near-simultaneously, both sides may
		// initiate; there is no glare resolution here and the race is a
		// known, deliberate gap.
		if !c.callStarted() {
			if err := c.StartCall(); err != nil {
				util.LogError("failed to start call: %v", err)
			}
		}

	case protocol.TypeUserLeft:
		util.LogInfo("user left: %s", f.SenderID)

	case protocol.TypeOffer:
		c.handleOffer(f)

	case protocol.TypeAnswer:
		c.handleAnswer(f)

	case protocol.TypeCandidate:
		c.handleCandidate(f)

	default:
		util.LogDebug("ignoring frame of type %q", f.Type)
	}
}

// StartCall acquires local media, creates a fresh session (disposing any
// prior one), produces an offer and sends it.
func (c *Coordinator) StartCall() error {
	source, err := c.newSource()
	if err != nil {
		return fmt.Errorf("media acquisition failed: %w", err)
	}

	session, err := c.replaceSession(source)
	if err != nil {
		return err
	}

	offer, err := session.CreateOffer()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.sendSignal(protocol.TypeOffer, offer)
	return nil
}

// handleOffer always creates a brand-new session rather than reusing one, to
// avoid inheriting half-finished local/remote state from a prior negotiation.
func (c *Coordinator) handleOffer(f *protocol.Frame) {
	offer, err := f.Description()
	if err != nil {
		util.LogWarning("dropping offer with invalid payload from %s", f.SenderID)
		return
	}

	source, err := c.newSource()
	if err != nil {
		util.LogError("media acquisition failed: %v", err)
		return
	}

	session, err := c.replaceSession(source)
	if err != nil {
		util.LogError("failed to create session: %v", err)
		return
	}

	answer, err := session.HandleOffer(offer)
	if err != nil {
		util.LogError("failed to handle offer: %v", err)
		return
	}

	c.sendSignal(protocol.TypeAnswer, answer)
}

func (c *Coordinator) handleAnswer(f *protocol.Frame) {
	session := c.currentValidSession()
	if session == nil {
		util.LogWarning("dropping answer from %s: no valid session", f.SenderID)
		return
	}
	answer, err := f.Description()
	if err != nil {
		util.LogWarning("dropping answer with invalid payload from %s", f.SenderID)
		return
	}
	if err := session.HandleAnswer(answer); err != nil {
		util.LogWarning("failed to apply answer: %v", err)
	}
}

func (c *Coordinator) handleCandidate(f *protocol.Frame) {
	session := c.currentValidSession()
	if session == nil {
		util.LogWarning("dropping candidate from %s: no valid session", f.SenderID)
		return
	}
	cand, err := f.ICECandidate()
	if err != nil {
		util.LogWarning("dropping candidate with invalid payload from %s", f.SenderID)
		return
	}
	if err := session.AddCandidate(cand); err != nil {
		util.LogWarning("failed to add candidate: %v", err)
	}
}

// replaceSession closes the previous session (stopping its media tracks) and
// installs a new one as a single transition under the lock.
func (c *Coordinator) replaceSession(source peer.Source) (*peer.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			util.LogWarning("failed to close previous session: %v", err)
		}
	}

	session, err := peer.NewSession(source, c.sendCandidate, c.onRemoteTrack)
	if err != nil {
		c.session = nil
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.session = session
	if c.muted {
		// Mute is not persisted across replacement by the session itself;
		// the coordinator re-applies its own state.
		session.SetMuted(true)
	}
	return session, nil
}

func (c *Coordinator) currentValidSession() *peer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || !c.session.Valid() {
		return nil
	}
	return c.session
}

// Session returns the active session, nil when none exists.
func (c *Coordinator) Session() *peer.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Coordinator) callStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// SetMuted toggles local audio. Applied to the active session and remembered
// for replacements.
func (c *Coordinator) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	if c.session != nil {
		c.session.SetMuted(muted)
	}
}

// Muted reports the coordinator's mute state.
func (c *Coordinator) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close disposes the active session. The transport is owned by the caller.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			util.LogWarning("failed to close session: %v", err)
		}
		c.session = nil
	}
}

func (c *Coordinator) sendCandidate(cand protocol.Candidate) {
	c.sendSignal(protocol.TypeCandidate, cand)
}

func (c *Coordinator) sendSignal(t protocol.Type, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		util.LogError("failed to marshal %s payload: %v", t, err)
		return
	}
	f := &protocol.Frame{Type: t, SenderID: c.userID, Payload: data}
	if err := c.transport.Send(f); err != nil {
		util.LogWarning("failed to send %s: %v", t, err)
	}
}
