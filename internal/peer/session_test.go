package peer

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/quackvoice/quack/internal/protocol"
)

type recordingSource struct {
	tracks []webrtc.TrackLocal
	muted  bool
	stops  int
}

func (s *recordingSource) Tracks() []webrtc.TrackLocal { return s.tracks }
func (s *recordingSource) SetMuted(muted bool)         { s.muted = muted }
func (s *recordingSource) Stop()                       { s.stops++ }

func newTestSession(t *testing.T, source Source) *Session {
	t.Helper()
	if source == nil {
		src, err := NewAudioSource()
		if err != nil {
			t.Fatalf("NewAudioSource failed: %v", err)
		}
		source = src
	}
	s, err := NewSession(source, func(protocol.Candidate) {}, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionValidUntilClosed(t *testing.T) {
	s := newTestSession(t, nil)

	if !s.Valid() {
		t.Fatal("fresh session not valid")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Valid() {
		t.Error("session still valid after Close")
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCreateOfferProducesLocalDescription(t *testing.T) {
	s := newTestSession(t, nil)

	offer, err := s.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		t.Errorf("offer = %+v, want type offer with non-empty SDP", offer)
	}
	if s.pc.LocalDescription() == nil {
		t.Error("local description not applied")
	}
}

func TestAttachLocalTracksIsIdempotent(t *testing.T) {
	s := newTestSession(t, nil)

	s.AttachLocalTracks()
	s.AttachLocalTracks()

	if got := len(s.pc.GetSenders()); got != 1 {
		t.Errorf("senders = %d after double attach, want 1", got)
	}
}

func TestOfferAnswerHandshake(t *testing.T) {
	caller := newTestSession(t, nil)
	callee := newTestSession(t, nil)

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer failed: %v", err)
	}

	answer, err := callee.HandleOffer(offer)
	if err != nil {
		t.Fatalf("HandleOffer failed: %v", err)
	}
	if answer.Type != "answer" || answer.SDP == "" {
		t.Fatalf("answer = %+v, want type answer with non-empty SDP", answer)
	}

	if err := caller.HandleAnswer(answer); err != nil {
		t.Fatalf("HandleAnswer failed: %v", err)
	}
}

func TestOperationsOnClosedSession(t *testing.T) {
	s := newTestSession(t, nil)
	s.Close()

	if _, err := s.CreateOffer(); err != ErrInvalid {
		t.Errorf("CreateOffer = %v, want ErrInvalid", err)
	}
	if _, err := s.HandleOffer(protocol.SessionDescription{Type: "offer", SDP: "v=0"}); err != ErrInvalid {
		t.Errorf("HandleOffer = %v, want ErrInvalid", err)
	}
	if err := s.HandleAnswer(protocol.SessionDescription{Type: "answer", SDP: "v=0"}); err != ErrInvalid {
		t.Errorf("HandleAnswer = %v, want ErrInvalid", err)
	}
	if err := s.AddCandidate(protocol.Candidate{Candidate: "candidate:1"}); err != ErrInvalid {
		t.Errorf("AddCandidate = %v, want ErrInvalid", err)
	}
}

func TestCloseStopsSource(t *testing.T) {
	src, err := NewAudioSource()
	if err != nil {
		t.Fatalf("NewAudioSource failed: %v", err)
	}
	rec := &recordingSource{tracks: src.Tracks()}

	s := newTestSession(t, rec)
	s.AttachLocalTracks()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rec.stops != 1 {
		t.Errorf("source stopped %d times, want 1", rec.stops)
	}
}

func TestSetMutedReachesSource(t *testing.T) {
	rec := &recordingSource{}
	s := newTestSession(t, rec)

	s.SetMuted(true)
	if !rec.muted {
		t.Error("mute did not reach the source")
	}
	s.SetMuted(false)
	if rec.muted {
		t.Error("unmute did not reach the source")
	}
}

func TestAudioSourceMuteAndStop(t *testing.T) {
	src, err := NewAudioSource()
	if err != nil {
		t.Fatalf("NewAudioSource failed: %v", err)
	}

	if src.Muted() {
		t.Error("fresh source is muted")
	}
	src.SetMuted(true)
	if !src.Muted() {
		t.Error("SetMuted(true) not applied")
	}
	src.SetMuted(false)

	if got := len(src.Tracks()); got != 1 {
		t.Errorf("tracks = %d, want 1", got)
	}

	src.Stop()
	src.Stop()
}
