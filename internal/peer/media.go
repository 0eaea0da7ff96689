package peer

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Source provides the local media tracks a session attaches. Device capture
// itself lives outside the core; the session only needs tracks it can attach,
// mute and stop.
type Source interface {
	Tracks() []webrtc.TrackLocal
	SetMuted(muted bool)
	Stop()
}

// SourceFactory acquires a fresh Source for a new session. Acquisition may
// fail (no device, permission denied); the failure propagates to the call
// initiator and the session is never considered valid.
type SourceFactory func() (Source, error)

// AudioSource is a single local Opus track fed by sample writes. Mute gates
// the writer rather than the track: while muted, samples are dropped.
type AudioSource struct {
	track   *webrtc.TrackLocalStaticSample
	muted   atomic.Bool
	stopped atomic.Bool
}

// NewAudioSource creates an audio source backed by a static sample track.
func NewAudioSource() (*AudioSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"quack-"+uuid.NewString(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	return &AudioSource{track: track}, nil
}

// Tracks returns the source's local tracks.
func (s *AudioSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

// SetMuted toggles the mute gate. Independent of session lifecycle; a
// replacement session gets a fresh, unmuted source unless the caller
// re-applies.
func (s *AudioSource) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports the current mute state.
func (s *AudioSource) Muted() bool {
	return s.muted.Load()
}

// WriteSample feeds one audio sample into the track. Samples are dropped
// while the source is muted or stopped.
func (s *AudioSource) WriteSample(sample media.Sample) error {
	if s.muted.Load() || s.stopped.Load() {
		return nil
	}
	return s.track.WriteSample(sample)
}

// Stop ends the source; subsequent writes are dropped. Safe to call more
// than once.
func (s *AudioSource) Stop() {
	s.stopped.Store(true)
}
