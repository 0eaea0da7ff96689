package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/util"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers fit comfortably.
	maxMessageSize = 64 * 1024

	// Outbound frame buffer per connection.
	sendBufferSize = 256
)

var errConnClosed = errors.New("relay: connection closed")
var errBufferFull = errors.New("relay: send buffer full")

// Conn wraps a single server-side WebSocket connection together with its
// mutable room metadata. Metadata is attached only after a valid join frame;
// until then the connection is unbound and non-join frames from it are dropped.
type Conn struct {
	id string
	ws *websocket.Conn

	mu     sync.Mutex
	roomID string
	userID string
	closed bool

	send chan *protocol.Frame

	// teardown guard — cleanup runs exactly once even if close fires after
	// an error.
	once sync.Once
}

func newConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		send: make(chan *protocol.Frame, sendBufferSize),
	}
}

// ID returns the connection identifier (distinct from the user identifier).
func (c *Conn) ID() string { return c.id }

// Open reports whether the connection can still accept outbound frames.
func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Enqueue hands a frame to the connection's writer without blocking.
// It fails when the connection is closed or its buffer is full; the caller
// logs and moves on — sends are fire-and-forget at this layer.
func (c *Conn) Enqueue(f *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return errBufferFull
	}
}

// bind attaches room metadata after a valid join.
func (c *Conn) bind(roomID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.userID = userID
}

// meta returns the bound metadata; bound is false before a valid join.
func (c *Conn) meta() (roomID, userID string, bound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.userID, c.roomID != ""
}

// clearMeta detaches the room metadata during teardown.
func (c *Conn) clearMeta() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.userID = ""
}

// markClosed flips the closed flag and closes the send channel, stopping the
// write pump. Must only be called from the teardown path.
func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the WebSocket into the router. It is the single
// reader for the connection; when it returns, the supervisor tears the
// connection down.
func (c *Conn) readPump(router *Router, onClose func(*Conn)) {
	defer func() {
		onClose(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.LogDebug("conn %s read error: %v", c.id, err)
			}
			return
		}
		router.Handle(c, raw)
	}
}

// writePump is the single writer for the connection. It drains the send
// buffer and keeps the connection alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(f); err != nil {
				util.LogDebug("conn %s write error: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
