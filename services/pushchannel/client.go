// Package pushchannel maintains the persistent websocket that carries
// asynchronous calculation events (start/progress/result/error/heartbeat)
// alongside the request/response path.
//
// The two paths are complementary: some deployments push results over the
// channel instead of returning them synchronously. The channel never
// mutates orchestrator state directly; it only invokes handlers registered
// by the owner.
package pushchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/previsim/previsim/services/simulation/datatypes"
	"github.com/previsim/previsim/services/simulation/observability"
)

// State is the connection lifecycle state.
//
// # State Diagram
//
//	CONNECTING ──[handshake ok]──► OPEN ──[Close()]──► CLOSED (terminal)
//	     ▲                          │
//	     │                          │ [transport close/error]
//	[delay elapsed]                 ▼
//	     └────────────────── RECONNECTING ──[attempts exhausted]──► CLOSED
type State int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting State = iota

	// StateOpen means the channel is live.
	StateOpen

	// StateReconnecting means the transport dropped and a redial is
	// scheduled.
	StateReconnecting

	// StateClosed is terminal: explicit Close, or reconnect attempts
	// exhausted.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Handler processes the payload of one message type.
type Handler func(payload json.RawMessage)

// StateListener observes state transitions. attempt is the reconnect
// attempt counter at transition time (0 when open or freshly connecting).
type StateListener func(prev, next State, attempt int)

// Config configures the Client.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8600/ws".
	URL string

	// BaseDelay seeds the exponential reconnect backoff: attempt k waits
	// BaseDelay × 2^(k-1). Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps the per-attempt delay. Default: 60s.
	MaxDelay time.Duration

	// MaxAttempts is the reconnect budget; once spent the client goes to
	// StateClosed. Default: 8.
	MaxAttempts int

	// HandshakeTimeout bounds each dial. Default: 10s.
	HandshakeTimeout time.Duration

	// Metrics is optional.
	Metrics *observability.Metrics
}

func (c *Config) applyDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// NewReconnectBackoff returns the reconnect delay policy: deterministic
// doubling from base, capped at maxDelay. Randomization is disabled so
// attempt k always waits exactly base × 2^(k-1) (until the cap).
func NewReconnectBackoff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return b
}

// Client is the push-channel websocket client.
//
// # Description
//
// One Client corresponds to one logical channel identified by a
// client-generated opaque id. Incoming frames carry a type tag; the client
// looks up the registered handler for that type and invokes it with the raw
// payload. Types without a handler are ignored, so new server event types
// never crash old clients.
//
// Reconnection is driven solely by transport-level close/error; a missing
// pong is not treated as failure.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers run on the read-loop goroutine, one at
// a time; state listeners run on their own goroutine per transition.
type Client struct {
	cfg       Config
	channelID string
	dialer    *websocket.Dialer

	mu             sync.Mutex
	state          State
	attempts       int
	conn           *websocket.Conn
	gen            int // connection generation; stale read loops are ignored
	handlers       map[datatypes.MessageType]Handler
	stateListeners []StateListener
	retry          *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	closed         bool

	writeMu sync.Mutex
}

// NewClient creates a Client. The channel id is generated here and sent in
// the X-Channel-ID header on every dial.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:       cfg,
		channelID: uuid.New().String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		state:    StateConnecting,
		handlers: make(map[datatypes.MessageType]Handler),
		retry:    NewReconnectBackoff(cfg.BaseDelay, cfg.MaxDelay),
	}
}

// ChannelID returns the client-generated opaque channel id.
func (c *Client) ChannelID() string { return c.channelID }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt counter.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// RegisterHandler installs the handler for one message type, replacing any
// previous one. Register before Connect to avoid missing early events.
func (c *Client) RegisterHandler(t datatypes.MessageType, h Handler) {
	c.mu.Lock()
	c.handlers[t] = h
	c.mu.Unlock()
}

// OnStateChange registers a listener for connection state transitions.
func (c *Client) OnStateChange(fn StateListener) {
	c.mu.Lock()
	c.stateListeners = append(c.stateListeners, fn)
	c.mu.Unlock()
}

// Connect performs the initial dial.
//
// On handshake failure the error is returned AND the reconnect schedule
// starts, so a caller that logs the error and moves on still gets a live
// channel once the backend comes up.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("pushchannel: client is closed")
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return fmt.Errorf("pushchannel: connect %s: %w", c.cfg.URL, err)
	}
	c.adopt(conn)
	return nil
}

// Close tears the channel down. Terminal: the client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SendPing sends a ping frame. The server is expected to answer with a pong
// message; absence of one is not a failure signal by itself.
func (c *Client) SendPing() error {
	return c.send(datatypes.ChannelMessage{Type: datatypes.MessagePing})
}

// RequestCalculation asks the server to compute over the channel; the
// result arrives as calculation_completed.
func (c *Client) RequestCalculation(snapshot datatypes.ParameterSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("pushchannel: marshal snapshot: %w", err)
	}
	return c.send(datatypes.ChannelMessage{
		Type:    datatypes.MessageCalculate,
		Payload: payload,
	})
}

// send writes one frame if the channel is open.
func (c *Client) send(msg datatypes.ChannelMessage) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return fmt.Errorf("pushchannel: channel not open (state %s)", state)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// dial performs one websocket handshake.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	url := c.cfg.URL
	header := http.Header{}
	header.Set("X-Channel-ID", c.channelID)
	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// adopt installs a freshly dialed connection and starts its read loop.
func (c *Client) adopt(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempts = 0
	c.retry.Reset()
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	slog.Info("push channel open", "channel_id", c.channelID)
	go c.readLoop(conn, gen)
}

// readLoop pumps frames until the transport fails or the client closes.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		var msg datatypes.ChannelMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.handleDisconnect(gen, err)
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one frame to its registered handler.
func (c *Client) dispatch(msg datatypes.ChannelMessage) {
	c.mu.Lock()
	handler := c.handlers[msg.Type]
	c.mu.Unlock()
	if handler == nil {
		// Unknown or unhandled types are ignored for forward compatibility.
		slog.Debug("push message ignored", "type", string(msg.Type))
		return
	}
	handler(msg.Payload)
}

// handleDisconnect reacts to a transport-level failure of generation gen.
func (c *Client) handleDisconnect(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		// Explicit Close, or a newer connection already replaced this one.
		return
	}
	slog.Warn("push channel lost", "channel_id", c.channelID, "error", err)
	c.conn = nil
	c.scheduleReconnectLocked()
}

// scheduleReconnectLocked books the next redial. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.closed {
		return
	}
	c.attempts++
	if c.attempts > c.cfg.MaxAttempts {
		slog.Error("push channel reconnect budget exhausted",
			"channel_id", c.channelID, "attempts", c.attempts-1)
		c.setStateLocked(StateClosed)
		return
	}

	delay := c.retry.NextBackOff()
	c.setStateLocked(StateReconnecting)
	c.cfg.Metrics.ReconnectAttempt()
	slog.Info("push channel reconnect scheduled",
		"channel_id", c.channelID, "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, c.redial)
}

// redial runs on the reconnect timer goroutine.
func (c *Client) redial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()
	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		return
	}
	c.adopt(conn)
}

// setStateLocked transitions the state and notifies listeners. Caller holds
// c.mu. Listeners are invoked on their own goroutine so they may call back
// into the client.
func (c *Client) setStateLocked(next State) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	c.cfg.Metrics.ConnectionStateChanged(float64(next))
	attempt := c.attempts
	listeners := make([]StateListener, len(c.stateListeners))
	copy(listeners, c.stateListeners)
	go func() {
		for _, fn := range listeners {
			fn(prev, next, attempt)
		}
	}()
}
