// Package wsclient maintains one logical connection to the relay across
// multiple candidate endpoints, with a bounded retry budget and an outbound
// queue for frames sent while disconnected.
package wsclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quackvoice/quack/internal/config"
	"github.com/quackvoice/quack/internal/protocol"
	"github.com/quackvoice/quack/internal/util"
)

// State of the logical connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	// StateTerminal means every endpoint's retry budget is exhausted;
	// no further reconnect is attempted.
	StateTerminal
)

const (
	// maxBackoff caps the linearly growing retry delay.
	maxBackoff = 10 * time.Second

	// coldStartDelay replaces the configured base delay while retrying an
	// endpoint flagged as cold-start, to mask provisioning latency.
	coldStartDelay = 2 * time.Second

	// nextEndpointDelay is the fixed pause before trying the next endpoint.
	nextEndpointDelay = time.Second

	handshakeTimeout = 15 * time.Second
)

// Endpoint is one candidate relay address. ColdStart marks endpoints known
// to have provisioning latency (free-tier hosts that spin down when idle).
type Endpoint struct {
	URL       string
	ColdStart bool
}

// Endpoints flags known cold-start hosts in a plain URL list.
func Endpoints(urls []string) []Endpoint {
	eps := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, Endpoint{URL: u, ColdStart: isColdStartURL(u)})
	}
	return eps
}

func isColdStartURL(u string) bool {
	// Free Render instances sleep when idle and take tens of seconds to
	// wake; callers want a distinct waiting state for that.
	return strings.Contains(strings.ToLower(u), "onrender.com")
}

// Client is the reconnecting transport. Event callbacks are owned by the
// client and die with Close; set them before Connect.
type Client struct {
	endpoints  []Endpoint
	maxRetries int
	retryDelay time.Duration

	mu         sync.Mutex
	state      State
	urlIndex   int
	retryCount int
	conn       *websocket.Conn
	queue      [][]byte
	ctx        context.Context

	writeMu sync.Mutex

	onOpen         func()
	onClose        func()
	onMessage      func(*protocol.Frame)
	onProvisioning func()
	onTerminal     func()
}

// New creates a transport client from the dialing configuration.
func New(cfg config.Client) *Client {
	return &Client{
		endpoints:  Endpoints(cfg.URLs),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// Event subscriptions. All must be set before Connect.

func (c *Client) OnOpen(fn func())                   { c.onOpen = fn }
func (c *Client) OnClose(fn func())                  { c.onClose = fn }
func (c *Client) OnMessage(fn func(*protocol.Frame)) { c.onMessage = fn }
func (c *Client) OnProvisioning(fn func())           { c.onProvisioning = fn }
func (c *Client) OnTerminal(fn func())               { c.onTerminal = fn }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connect cycle. It is a no-op while already connecting
// or open.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen || c.state == StateTerminal {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.ctx = ctx
	c.mu.Unlock()

	go c.tryConnect()
}

// tryConnect dials the current endpoint once and hands off to the read loop
// or the retry scheduler.
func (c *Client) tryConnect() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	if c.urlIndex >= len(c.endpoints) {
		c.mu.Unlock()
		c.giveUp()
		return
	}
	ep := c.endpoints[c.urlIndex]
	first := c.retryCount == 0
	ctx := c.ctx
	c.mu.Unlock()

	if ep.ColdStart && first && c.onProvisioning != nil {
		// Distinct waiting state: the endpoint is likely spinning up.
		c.onProvisioning()
	}

	util.LogDebug("dialing %s", ep.URL)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, ep.URL, nil)
	if err != nil {
		util.LogWarning("connect to %s failed: %v", ep.URL, err)
		c.scheduleRetry(ep)
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateOpen
	c.retryCount = 0
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	util.LogInfo("connected to %s", ep.URL)

	// Flush frames queued while disconnected, in FIFO order.
	for _, data := range pending {
		c.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			util.LogWarning("flush failed: %v", err)
			break
		}
	}

	if c.onOpen != nil {
		c.onOpen()
	}

	go c.readLoop(conn)
}

// readLoop delivers inbound frames until the connection drops, then starts
// the reconnect cycle.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		f, perr := protocol.Parse(raw)
		if perr != nil {
			util.LogWarning("dropping malformed frame from relay")
			continue
		}
		if c.onMessage != nil {
			c.onMessage(f)
		}
	}

	c.mu.Lock()
	if c.conn != conn || c.state != StateOpen {
		// Superseded or deliberately closed.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	if c.onClose != nil {
		c.onClose()
	}

	ep := c.currentEndpoint()
	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()
	c.scheduleRetry(ep)
}

func (c *Client) currentEndpoint() Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.urlIndex < len(c.endpoints) {
		return c.endpoints[c.urlIndex]
	}
	return Endpoint{}
}

// scheduleRetry increments the retry counter and either re-dials the same
// endpoint with a linearly growing delay, advances to the next endpoint when
// the budget is spent, or gives up when no endpoints remain.
func (c *Client) scheduleRetry(ep Endpoint) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.retryCount++

	if c.retryCount < c.maxRetries {
		base := c.retryDelay
		if ep.ColdStart {
			base = coldStartDelay
		}
		delay := time.Duration(c.retryCount) * base
		if delay > maxBackoff {
			delay = maxBackoff
		}
		attempt := c.retryCount
		c.mu.Unlock()

		util.LogDebug("retry %d/%d for %s in %s", attempt, c.maxRetries, ep.URL, delay)
		time.AfterFunc(delay, c.tryConnect)
		return
	}

	// Budget spent on this endpoint: advance with a reset counter.
	c.urlIndex++
	c.retryCount = 0
	exhausted := c.urlIndex >= len(c.endpoints)
	c.mu.Unlock()

	if exhausted {
		c.giveUp()
		return
	}

	util.LogInfo("endpoint exhausted, advancing to next relay URL")
	time.AfterFunc(nextEndpointDelay, c.tryConnect)
}

// giveUp surfaces the terminal failure; no automatic further retry.
func (c *Client) giveUp() {
	c.mu.Lock()
	if c.state == StateTerminal {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminal
	c.mu.Unlock()

	util.LogError("all relay endpoints failed")
	if c.onTerminal != nil {
		c.onTerminal()
	}
}

// Send transmits the frame immediately when open, and otherwise queues it
// (unbounded, in-memory) for delivery on the next open.
func (c *Client) Send(f *protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.queue = append(c.queue, data)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the transport down and discards the queue. The client cannot
// be reused afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateTerminal
	c.queue = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
