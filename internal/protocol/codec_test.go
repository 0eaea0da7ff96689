package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseMalformed(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "not JSON", raw: "hello"},
		{name: "truncated object", raw: `{"type":"join"`},
		{name: "JSON array", raw: `["join"]`},
		{name: "empty input", raw: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err != ErrMalformed {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformed", tc.raw, err)
			}
		})
	}
}

func TestParseIgnoresUnknownFields(t *testing.T) {
	raw := `{"type":"offer","senderId":"u1","payload":{"type":"offer","sdp":"v=0"},"version":3,"extra":"x"}`
	f, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Type != TypeOffer || f.SenderID != "u1" {
		t.Errorf("unexpected frame: %+v", f)
	}
	if err := f.ValidateSignaling(); err != nil {
		t.Errorf("ValidateSignaling failed: %v", err)
	}
}

func TestKind(t *testing.T) {
	testCases := []struct {
		typ  Type
		want Kind
	}{
		{TypeJoin, KindJoin},
		{TypeOffer, KindSignaling},
		{TypeAnswer, KindSignaling},
		{TypeCandidate, KindSignaling},
		{TypeUserJoined, KindSystem},
		{TypeUserLeft, KindSystem},
		{Type("ping"), KindInvalid},
		{Type(""), KindInvalid},
	}

	for _, tc := range testCases {
		if got := (&Frame{Type: tc.typ}).Kind(); got != tc.want {
			t.Errorf("Kind(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestJoinPayloadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		sender  string
		payload string
		wantErr bool
	}{
		{name: "valid", sender: "u1", payload: `{"roomId":"r1"}`, wantErr: false},
		{name: "empty roomId", sender: "u1", payload: `{"roomId":""}`, wantErr: true},
		{name: "missing roomId", sender: "u1", payload: `{}`, wantErr: true},
		{name: "empty senderId", sender: "", payload: `{"roomId":"r1"}`, wantErr: true},
		{name: "payload not an object", sender: "u1", payload: `"r1"`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Frame{Type: TypeJoin, SenderID: tc.sender, Payload: json.RawMessage(tc.payload)}
			p, err := f.Join()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Join() = %+v, want error", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("Join() failed: %v", err)
			}
			if p.RoomID != "r1" {
				t.Errorf("RoomID = %q, want r1", p.RoomID)
			}
		})
	}
}

func TestValidateSignaling(t *testing.T) {
	testCases := []struct {
		name    string
		typ     Type
		sender  string
		payload string
		wantErr bool
	}{
		{name: "valid offer", typ: TypeOffer, sender: "u1", payload: `{"type":"offer","sdp":"v=0"}`},
		{name: "valid answer", typ: TypeAnswer, sender: "u1", payload: `{"type":"answer","sdp":"v=0"}`},
		{name: "valid candidate", typ: TypeCandidate, sender: "u1", payload: `{"candidate":"candidate:1 1 udp 1 127.0.0.1 50000 typ host"}`},
		{name: "offer without sdp", typ: TypeOffer, sender: "u1", payload: `{"type":"offer"}`, wantErr: true},
		{name: "offer without type", typ: TypeOffer, sender: "u1", payload: `{"sdp":"v=0"}`, wantErr: true},
		{name: "answer with empty sdp", typ: TypeAnswer, sender: "u1", payload: `{"type":"answer","sdp":""}`, wantErr: true},
		{name: "candidate with empty string", typ: TypeCandidate, sender: "u1", payload: `{"candidate":""}`, wantErr: true},
		{name: "candidate with wrong shape", typ: TypeCandidate, sender: "u1", payload: `{"sdp":"x"}`, wantErr: true},
		{name: "missing sender", typ: TypeOffer, sender: "", payload: `{"type":"offer","sdp":"v=0"}`, wantErr: true},
		{name: "no payload", typ: TypeOffer, sender: "u1", payload: "", wantErr: true},
		{name: "join is not signaling", typ: TypeJoin, sender: "u1", payload: `{"roomId":"r1"}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := &Frame{Type: tc.typ, SenderID: tc.sender}
			if tc.payload != "" {
				f.Payload = json.RawMessage(tc.payload)
			}
			err := f.ValidateSignaling()
			if tc.wantErr && err == nil {
				t.Error("ValidateSignaling() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateSignaling() = %v, want nil", err)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	f := &Frame{
		Type:     TypeCandidate,
		SenderID: "u1",
		TargetID: "u2",
		Payload:  json.RawMessage(`{"candidate":"candidate:1"}`),
	}

	data, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got.Type != f.Type || got.SenderID != f.SenderID || got.TargetID != f.TargetID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, f)
	}
	cand, err := got.ICECandidate()
	if err != nil {
		t.Fatalf("ICECandidate failed: %v", err)
	}
	if cand.Candidate != "candidate:1" {
		t.Errorf("Candidate = %q", cand.Candidate)
	}
}

func TestSystemFrame(t *testing.T) {
	f := SystemFrame(TypeUserJoined, "u1")
	if f.Kind() != KindSystem {
		t.Errorf("Kind = %v, want KindSystem", f.Kind())
	}
	if f.SenderID != "u1" || f.Payload != nil {
		t.Errorf("unexpected frame: %+v", f)
	}
}
