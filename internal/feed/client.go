package feed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-watchdesk/internal/domain"
	"token-watchdesk/internal/observability"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Sink receives classified events before subscriber fan-out. Sink
// errors are absorbed and logged; they never stop the read loop.
type Sink interface {
	HandleCreate(ctx context.Context, event *domain.CreateEvent) error
	HandleTrade(ctx context.Context, event *domain.TradeEvent) error
}

// Subscriber is a fan-out callback. A panicking subscriber is isolated;
// it cannot affect other subscribers or the client's own state.
type Subscriber func(event domain.Event)

// Config configures feed client behavior.
type Config struct {
	// Endpoint is the WebSocket URL of the upstream feed.
	Endpoint string
	// ReconnectBase is the backoff base; attempt n waits base * 2^n.
	ReconnectBase time.Duration
	// MaxReconnectAttempts stops automatic reconnection after this many
	// consecutive failures.
	MaxReconnectAttempts int
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds a single outbound write.
	WriteTimeout time.Duration
}

// DefaultConfig returns default feed client configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectBase:        5 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// Client owns the live feed connection: dialing, frame classification,
// dispatch, reconnection with exponential backoff, and the
// active-subscription set.
type Client struct {
	cfg  Config
	log  *zap.Logger
	sink Sink

	mu       sync.Mutex // guards conn, state, attempts, pending
	conn     *websocket.Conn
	state    State
	attempts int
	pending  []OutboundMessage

	// manual is the sticky manually-disconnected latch. Set by
	// Disconnect, cleared only by an explicit Connect.
	manual       atomic.Bool
	reconnecting atomic.Bool

	activeMu sync.RWMutex
	active   map[string]struct{}

	subsMu      sync.RWMutex
	subscribers []Subscriber

	onOpenMu sync.Mutex
	onOpen   func()

	wg    sync.WaitGroup
	nowFn func() int64

	// afterFn arms the reconnect timer. Tests substitute a synchronous
	// scheduler to pin down the backoff sequence.
	afterFn func(time.Duration, func())
}

// NewClient creates a feed client. It does not connect; call Connect.
func NewClient(cfg Config, sink Sink, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		log:    log,
		sink:   sink,
		state:  StateDisconnected,
		active: make(map[string]struct{}),
		nowFn:  func() int64 { return time.Now().UnixMilli() },
		afterFn: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnOpen registers a hook invoked after every successful open, after
// the new-token subscription and pending sends have been issued. Used
// to restore durable subscriptions when auto-resubscribe is on.
func (c *Client) OnOpen(fn func()) {
	c.onOpenMu.Lock()
	c.onOpen = fn
	c.onOpenMu.Unlock()
}

// AddSubscriber registers a fan-out callback for classified events.
func (c *Client) AddSubscriber(fn Subscriber) {
	c.subsMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subsMu.Unlock()
}

// Connect dials the feed. Idempotent: a no-op while already Open or
// Connecting. An explicit Connect clears the manual-disconnect latch
// and resets the backoff counter.
func (c *Client) Connect(ctx context.Context) error {
	c.manual.Store(false)

	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.attempts = 0
	c.mu.Unlock()

	return c.dial(ctx)
}

// dial establishes the connection and transitions to Open.
func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect()
		return fmt.Errorf("feed dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.log.Info("feed connected", zap.String("endpoint", c.cfg.Endpoint))

	// The new-token stream is always wanted while connected;
	// per-token trade subscriptions are restored via the OnOpen hook
	// only when auto-resubscribe is enabled.
	c.Send(OutboundMessage{Method: MethodSubscribeNewToken})
	for _, msg := range pending {
		c.Send(msg)
	}

	c.onOpenMu.Lock()
	onOpen := c.onOpen
	c.onOpenMu.Unlock()
	if onOpen != nil {
		onOpen()
	}

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// Disconnect closes the connection and sets the sticky manual latch so
// no automatic reconnect fires until Connect is called again. The
// active-subscription set is cleared: it mirrors remote state, and the
// remote drops all subscriptions with the connection.
func (c *Client) Disconnect() {
	c.manual.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.clearActive()
	c.log.Info("feed disconnected manually")
}

// Close tears the client down and waits for the read loop to exit.
func (c *Client) Close() {
	c.Disconnect()
	c.wg.Wait()
}

// Send writes a message if the connection is open, otherwise queues it
// for the next open. Transport errors are logged, never returned.
func (c *Client) Send(msg OutboundMessage) {
	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		c.log.Debug("feed send queued", zap.String("method", msg.Method), zap.Int("keys", len(msg.Keys)))
		return
	}
	conn := c.conn
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := conn.WriteJSON(msg)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("feed send failed",
			zap.String("method", msg.Method),
			zap.Int("keys", len(msg.Keys)),
			zap.Error(err))
	}
}

// readLoop reads frames until the connection drops, then hands off to
// reconnection handling.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame parses and dispatches one inbound frame. Malformed
// frames are logged and discarded, never fatal.
func (c *Client) handleFrame(data []byte) {
	observability.RecordFrameReceived()

	event, err := ParseFrame(data, c.nowFn())
	if err != nil {
		observability.RecordFrameDiscarded("malformed")
		c.log.Warn("malformed frame discarded", zap.Error(err))
		return
	}

	observability.RecordEvent(string(event.Kind()))

	ctx := context.Background()
	switch e := event.(type) {
	case *domain.CreateEvent:
		if err := c.sink.HandleCreate(ctx, e); err != nil {
			c.log.Error("create event handling failed",
				zap.String("mint", e.Mint), zap.Error(err))
		}
	case *domain.TradeEvent:
		if err := c.sink.HandleTrade(ctx, e); err != nil {
			c.log.Error("trade event handling failed",
				zap.String("mint", e.Mint), zap.Error(err))
		}
	case *domain.UnrecognizedEvent:
		observability.RecordFrameDiscarded("unrecognized")
		c.log.Debug("unrecognized frame", zap.String("tx_type", e.TxType))
		return
	}

	c.fanOut(event)
}

// fanOut delivers the event to every subscriber, isolating panics so
// one faulty subscriber cannot break delivery to the rest.
func (c *Client) fanOut(event domain.Event) {
	c.subsMu.RLock()
	subscribers := make([]Subscriber, len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.subsMu.RUnlock()

	for i, fn := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("subscriber panicked",
						zap.Int("subscriber", i), zap.Any("panic", r))
				}
			}()
			fn(event)
		}()
	}
}

// handleClose transitions to Disconnected after a connection drop and
// schedules a reconnect unless manually disconnected.
func (c *Client) handleClose(err error) {
	if c.manual.Load() {
		return
	}

	c.mu.Lock()
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.log.Warn("feed connection lost", zap.Error(err))
	c.scheduleReconnect()
}

// scheduleReconnect arms a backoff timer for the next dial. The delay
// for the n-th consecutive failure is base * 2^n (n starting at 0);
// after MaxReconnectAttempts failures the client parks in Errored
// until an explicit Connect.
func (c *Client) scheduleReconnect() {
	if c.manual.Load() {
		return
	}
	if c.reconnecting.Swap(true) {
		return
	}

	c.mu.Lock()
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = StateErrored
		attempts := c.attempts
		c.mu.Unlock()
		c.reconnecting.Store(false)
		c.log.Error("max reconnect attempts reached, giving up",
			zap.Int("attempts", attempts))
		return
	}
	delay := c.cfg.ReconnectBase * (1 << c.attempts)
	c.attempts++
	c.state = StateConnecting
	c.mu.Unlock()

	observability.RecordReconnect()
	c.log.Info("scheduling reconnect",
		zap.Duration("delay", delay), zap.Int("attempt", c.attemptCount()))

	c.afterFn(delay, func() {
		c.reconnecting.Store(false)
		if c.manual.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		defer cancel()
		if err := c.dial(ctx); err != nil {
			c.log.Warn("reconnect failed", zap.Error(err))
		}
	})
}

func (c *Client) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// IsActive reports whether a mint is believed subscribed on the open
// connection. The set mirrors remote state and may be stale; callers
// treat redundant subscribes as harmless.
func (c *Client) IsActive(mint string) bool {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	_, ok := c.active[mint]
	return ok
}

// MarkActive records mints as subscribed.
func (c *Client) MarkActive(mints []string) {
	c.activeMu.Lock()
	for _, m := range mints {
		c.active[m] = struct{}{}
	}
	n := len(c.active)
	c.activeMu.Unlock()
	observability.UpdateActiveSubscriptions(n)
}

// MarkInactive removes mints from the active set.
func (c *Client) MarkInactive(mints []string) {
	c.activeMu.Lock()
	for _, m := range mints {
		delete(c.active, m)
	}
	n := len(c.active)
	c.activeMu.Unlock()
	observability.UpdateActiveSubscriptions(n)
}

// ActiveCount returns the size of the active-subscription set.
func (c *Client) ActiveCount() int {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return len(c.active)
}

func (c *Client) clearActive() {
	c.activeMu.Lock()
	c.active = make(map[string]struct{})
	c.activeMu.Unlock()
	observability.UpdateActiveSubscriptions(0)
}
