package protocol

import (
	"encoding/json"
	"errors"
)

var (
	// ErrMalformed is returned when a raw frame is not a valid JSON object.
	ErrMalformed = errors.New("protocol: malformed frame")
	// ErrInvalidPayload is returned when a frame's payload fails its shape check.
	ErrInvalidPayload = errors.New("protocol: invalid payload")
)

// Parse decodes a raw text frame. It returns ErrMalformed on JSON errors;
// it does not validate the payload — callers run the per-type validator once
// they know how the frame will be used.
func Parse(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, ErrMalformed
	}
	return &f, nil
}

// Encode serializes a frame for transmission.
func Encode(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Join extracts and validates the join payload: both roomId and senderId
// must be non-empty.
func (f *Frame) Join() (JoinPayload, error) {
	var p JoinPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return JoinPayload{}, ErrInvalidPayload
	}
	if p.RoomID == "" || f.SenderID == "" {
		return JoinPayload{}, ErrInvalidPayload
	}
	return p, nil
}

// Description extracts and validates the session description payload of an
// offer or answer frame: type and sdp must be non-empty strings.
func (f *Frame) Description() (SessionDescription, error) {
	var p SessionDescription
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return SessionDescription{}, ErrInvalidPayload
	}
	if p.Type == "" || p.SDP == "" {
		return SessionDescription{}, ErrInvalidPayload
	}
	return p, nil
}

// ICECandidate extracts and validates the candidate payload: the candidate
// string must be non-empty.
func (f *Frame) ICECandidate() (Candidate, error) {
	var p Candidate
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return Candidate{}, ErrInvalidPayload
	}
	if p.Candidate == "" {
		return Candidate{}, ErrInvalidPayload
	}
	return p, nil
}

// ValidateSignaling runs the per-type payload validator for offer, answer and
// candidate frames. A frame whose sender is empty is always invalid.
func (f *Frame) ValidateSignaling() error {
	if f.SenderID == "" || len(f.Payload) == 0 {
		return ErrInvalidPayload
	}
	switch f.Type {
	case TypeOffer, TypeAnswer:
		_, err := f.Description()
		return err
	case TypeCandidate:
		_, err := f.ICECandidate()
		return err
	default:
		return ErrInvalidPayload
	}
}
