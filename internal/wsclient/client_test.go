package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quackvoice/quack/internal/config"
	"github.com/quackvoice/quack/internal/protocol"
)

// unreachableURL points at a port nothing listens on, so dials fail fast.
const unreachableURL = "ws://127.0.0.1:1/ws"

func newEchoServer(t *testing.T, onRaw func([]byte)) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if onRaw != nil {
				onRaw(raw)
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEndpointsFlagColdStartHosts(t *testing.T) {
	testCases := []struct {
		url  string
		cold bool
	}{
		{url: "wss://quack.onrender.com/ws", cold: true},
		{url: "wss://QUACK.ONRENDER.COM/ws", cold: true},
		{url: "wss://relay.example.com/ws", cold: false},
		{url: "ws://localhost:3000/ws", cold: false},
	}

	for _, tc := range testCases {
		eps := Endpoints([]string{tc.url})
		if eps[0].ColdStart != tc.cold {
			t.Errorf("ColdStart(%q) = %v, want %v", tc.url, eps[0].ColdStart, tc.cold)
		}
	}
}

func TestConnectReachesOpenState(t *testing.T) {
	url := newEchoServer(t, nil)

	c := New(config.Client{URLs: []string{url}, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	defer c.Close()

	opened := make(chan struct{}, 1)
	c.OnOpen(func() { opened <- struct{}{} })

	c.Connect(context.Background())

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("connection did not open")
	}
	if got := c.State(); got != StateOpen {
		t.Errorf("State = %v, want StateOpen", got)
	}
}

func TestRetryBudgetAdvancesToNextEndpoint(t *testing.T) {
	received := make(chan []byte, 1)
	goodURL := newEchoServer(t, func(raw []byte) { received <- raw })

	c := New(config.Client{
		URLs:       []string{unreachableURL, goodURL},
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})
	defer c.Close()

	opened := make(chan struct{}, 1)
	c.OnOpen(func() { opened <- struct{}{} })

	c.Connect(context.Background())

	// Two failures on the first endpoint spend its budget; the client then
	// pauses briefly and succeeds on the second.
	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("client never reached the fallback endpoint")
	}

	c.mu.Lock()
	idx, count := c.urlIndex, c.retryCount
	c.mu.Unlock()
	if idx != 1 {
		t.Errorf("urlIndex = %d, want 1", idx)
	}
	if count != 0 {
		t.Errorf("retryCount = %d after successful connect, want 0", count)
	}

	// The open connection is usable.
	if err := c.Send(&protocol.Frame{Type: protocol.TypeJoin, SenderID: "u", Payload: []byte(`{"roomId":"r"}`)}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestTerminalAfterAllEndpointsFail(t *testing.T) {
	c := New(config.Client{
		URLs:       []string{unreachableURL, unreachableURL},
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
	})
	defer c.Close()

	terminal := make(chan struct{})
	c.OnTerminal(func() { close(terminal) })

	c.Connect(context.Background())

	select {
	case <-terminal:
	case <-time.After(10 * time.Second):
		t.Fatal("client never reached the terminal state")
	}
	if got := c.State(); got != StateTerminal {
		t.Errorf("State = %v, want StateTerminal", got)
	}

	// Terminal is sticky: a further Connect is a no-op.
	c.Connect(context.Background())
	if got := c.State(); got != StateTerminal {
		t.Errorf("State after re-Connect = %v, want StateTerminal", got)
	}
}

func TestQueuedFramesFlushInOrderOnOpen(t *testing.T) {
	received := make(chan []byte, 4)
	url := newEchoServer(t, func(raw []byte) { received <- raw })

	c := New(config.Client{URLs: []string{url}, MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	defer c.Close()

	// Sends before Connect are queued, not rejected.
	for _, id := range []string{"first", "second", "third"} {
		if err := c.Send(&protocol.Frame{Type: protocol.TypeOffer, SenderID: id, Payload: []byte(`{"type":"offer","sdp":"v=0"}`)}); err != nil {
			t.Fatalf("queued Send failed: %v", err)
		}
	}

	c.Connect(context.Background())

	for _, want := range []string{"first", "second", "third"} {
		select {
		case raw := <-received:
			f, err := protocol.Parse(raw)
			if err != nil {
				t.Fatalf("server received malformed frame: %v", err)
			}
			if f.SenderID != want {
				t.Fatalf("flushed frame from %q, want %q", f.SenderID, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("frame %q never flushed", want)
		}
	}
}

func TestProvisioningFiresOnFirstColdStartAttempt(t *testing.T) {
	c := New(config.Client{URLs: []string{unreachableURL}, MaxRetries: 1, RetryDelay: 10 * time.Millisecond})
	defer c.Close()
	c.endpoints[0].ColdStart = true

	provisioning := make(chan struct{}, 4)
	terminal := make(chan struct{})
	c.OnProvisioning(func() { provisioning <- struct{}{} })
	c.OnTerminal(func() { close(terminal) })

	c.Connect(context.Background())

	select {
	case <-provisioning:
	case <-time.After(3 * time.Second):
		t.Fatal("provisioning callback never fired")
	}
	select {
	case <-terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("client never reached the terminal state")
	}
}
