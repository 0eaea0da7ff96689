// Package peer wraps one peer-to-peer connection attempt: local/remote
// description state, track attachment and the validity gate that rejects
// frames arriving after the session was superseded.
package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/util"
)

// ErrInvalid is returned when an operation targets a session that is closed
// or whose underlying connection reached a terminal state.
var ErrInvalid = errors.New("peer: session no longer valid")

// Session is one negotiation attempt. It is alive from creation until Close
// or until a superseding session replaces it.
type Session struct {
	pc     *webrtc.PeerConnection
	source Source

	mu      sync.Mutex
	closed  bool
	pcState webrtc.PeerConnectionState
}

// NewSession creates a session over a fresh PeerConnection. onCandidate is
// invoked for each gathered local ICE candidate; onTrack when the remote
// audio stream arrives. The source is owned by the session and stopped on
// Close.
func NewSession(source Source, onCandidate func(protocol.Candidate), onTrack func(*webrtc.TrackRemote)) (*Session, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	s := &Session{
		pc:      pc,
		source:  source,
		pcState: webrtc.PeerConnectionStateNew,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// End of gathering.
			return
		}
		init := c.ToJSON()
		cand := protocol.Candidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *init.SDPMLineIndex
		}
		onCandidate(cand)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogInfo("remote track received: %s", track.Kind())
		if onTrack != nil {
			onTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		s.mu.Lock()
		s.pcState = state
		s.mu.Unlock()
	})

	return s, nil
}

// Valid reports whether the session may still consume negotiation frames:
// not closed, and the underlying connection has not reached a terminal state.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed &&
		s.pcState != webrtc.PeerConnectionStateClosed &&
		s.pc.SignalingState() != webrtc.SignalingStateClosed
}

// AttachLocalTracks adds the source's tracks to the connection, skipping any
// track whose identifier is already attached. Per-track failures are logged,
// not fatal.
func (s *Session) AttachLocalTracks() {
	attached := make(map[string]bool)
	for _, sender := range s.pc.GetSenders() {
		if t := sender.Track(); t != nil {
			attached[t.ID()] = true
		}
	}

	for _, track := range s.source.Tracks() {
		if attached[track.ID()] {
			continue
		}
		if _, err := s.pc.AddTrack(track); err != nil {
			util.LogWarning("failed to attach track %s: %v", track.ID(), err)
		}
	}
}

// CreateOffer attaches local tracks, produces an offer and applies it as the
// local description.
func (s *Session) CreateOffer() (protocol.SessionDescription, error) {
	if !s.Valid() {
		return protocol.SessionDescription{}, ErrInvalid
	}

	s.AttachLocalTracks()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("SetLocalDescription: %w", err)
	}
	return protocol.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// HandleOffer applies the remote offer, attaches local tracks best-effort,
// and produces the answer as the local description.
func (s *Session) HandleOffer(offer protocol.SessionDescription) (protocol.SessionDescription, error) {
	if !s.Valid() {
		return protocol.SessionDescription{}, ErrInvalid
	}

	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("SetRemoteDescription: %w", err)
	}

	// Failure to attach does not abort the exchange.
	s.AttachLocalTracks()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, fmt.Errorf("SetLocalDescription: %w", err)
	}
	return protocol.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// HandleAnswer applies the remote answer.
func (s *Session) HandleAnswer(answer protocol.SessionDescription) error {
	if !s.Valid() {
		return ErrInvalid
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}
	return nil
}

// AddCandidate adds a remote ICE candidate received through signaling.
func (s *Session) AddCandidate(cand protocol.Candidate) error {
	if !s.Valid() {
		return ErrInvalid
	}
	init := webrtc.ICECandidateInit{Candidate: cand.Candidate}
	if cand.SDPMid != "" {
		mid := cand.SDPMid
		init.SDPMid = &mid
	}
	if cand.SDPMLineIndex != 0 {
		idx := cand.SDPMLineIndex
		init.SDPMLineIndex = &idx
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("AddICECandidate: %w", err)
	}
	return nil
}

// SetMuted toggles the local audio mute gate.
func (s *Session) SetMuted(muted bool) {
	s.source.SetMuted(muted)
}

// Close removes all outbound senders, stops the media source, then releases
// the PeerConnection. It must run before a replacement session is created.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, sender := range s.pc.GetSenders() {
		if err := s.pc.RemoveTrack(sender); err != nil {
			util.LogWarning("failed to remove sender: %v", err)
		}
	}
	s.source.Stop()

	return s.pc.Close()
}
