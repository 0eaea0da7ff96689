// Package protocol defines the JSON frame model exchanged between clients
// and the relay, and the per-type payload validation rules.
package protocol

import "encoding/json"

// Type identifies the kind of frame on the wire.
type Type string

const (
	// Signal frames — sent by clients, relayed within a room.
	TypeJoin      Type = "join"
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"

	// System frames — synthesized by the relay, never accepted from clients.
	TypeUserJoined Type = "user-joined"
	TypeUserLeft   Type = "user-left"
)

// Frame is the wire structure for both signal and system frames.
// Unknown extra fields in incoming JSON are ignored, not rejected.
type Frame struct {
	Type     Type            `json:"type"`
	SenderID string          `json:"senderId"`
	TargetID string          `json:"targetId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is the payload of a join frame.
type JoinPayload struct {
	RoomID string `json:"roomId"`
}

// SessionDescription is the payload of an offer or answer frame. The relay
// never inspects the SDP beyond the shape check; it is opaque negotiation data.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is the payload of a candidate frame.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

// Kind classifies a frame type for exhaustive matching.
type Kind int

const (
	KindInvalid Kind = iota
	KindJoin
	KindSignaling // offer, answer, candidate
	KindSystem    // user-joined, user-left
)

// Kind returns the classification of the frame's type. Anything outside the
// six known types is KindInvalid.
func (f *Frame) Kind() Kind {
	switch f.Type {
	case TypeJoin:
		return KindJoin
	case TypeOffer, TypeAnswer, TypeCandidate:
		return KindSignaling
	case TypeUserJoined, TypeUserLeft:
		return KindSystem
	default:
		return KindInvalid
	}
}

// SystemFrame builds a relay-synthesized membership frame.
func SystemFrame(t Type, senderID string) *Frame {
	return &Frame{Type: t, SenderID: senderID}
}
