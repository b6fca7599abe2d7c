package livepoll

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/quangdv/livepoll-sdk-go/livepoll/internal"

	"github.com/coder/websocket"
)

// HubURL derives the hub websocket endpoint from a poll service base URL.
func HubURL(base string) string {
	return strings.TrimRight(base, "/") + "/pollHub"
}

// Client owns one persistent connection to the poll hub: it dials, runs the
// read loop that feeds the dispatcher, reconnects after network loss, and
// sends command invocations. One Client serves one Session.
type Client struct {
	cfg        Config
	dispatcher *Dispatcher

	mu      sync.Mutex
	logger  Logger
	state   ConnectionState
	conn    *internal.Conn
	cancel  context.CancelFunc
	stateFn func(StateEvent)
}

var _ HubClient = (*Client)(nil)

// NewClient constructs a client with the provided config. Use
// DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		logger:     noopLogger{},
		dispatcher: NewDispatcher(),
	}
}

// SetLogger overrides the logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
	c.dispatcher.setLogger(l)
}

// OnStateChanged registers a callback for connection-state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) {
	c.mu.Lock()
	c.stateFn = fn
	c.mu.Unlock()
}

// OnError registers a callback for protocol-level error pushes.
func (c *Client) OnError(fn func(error)) { c.dispatcher.OnError(fn) }

// OnClose registers a callback invoked when the connection is torn down.
func (c *Client) OnClose(fn func(error)) { c.dispatcher.OnClose(fn) }

// Subscribe registers a durable handler for a named push event.
func (c *Client) Subscribe(event string, fn Handler) *Subscription {
	return c.dispatcher.Subscribe(event, fn)
}

// Once registers a one-shot handler for a named push event.
func (c *Client) Once(event string, fn Handler) *Subscription {
	return c.dispatcher.Once(event, fn)
}

// Unsubscribe removes a registration.
func (c *Client) Unsubscribe(sub *Subscription) { c.dispatcher.Unsubscribe(sub) }

// State reports the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the hub and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return NewError(ErrorDisconnected, "client is closed")
	case StateDisconnected:
	default:
		c.mu.Unlock()
		return NewError(ErrorConnection, "connection already established or in progress")
	}
	if c.cfg.URL == "" {
		c.mu.Unlock()
		return NewError(ErrorInvalidConfig, "empty hub URL")
	}
	// Claim the connecting state under the same lock as the check so two
	// racing Connect calls cannot both dial.
	c.state = StateConnecting
	fn := c.stateFn
	c.mu.Unlock()

	c.log().Debug("connection state", map[string]any{
		"from": StateDisconnected.String(),
		"to":   StateConnecting.String(),
	})
	if fn != nil {
		fn(StateEvent{OldState: StateDisconnected, NewState: StateConnecting})
	}

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		c.setState(StateDisconnected, err)
		return WrapError(ErrorInvalidConfig, "parse hub URL", err)
	}

	conn, err := c.dial(ctx, u.String())
	if err != nil {
		c.setState(StateDisconnected, err)
		return WrapError(ErrorConnection, "dial hub", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "client close")
		return NewError(ErrorDisconnected, "client is closed")
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.readLoop(runCtx, conn)
	return nil
}

// EnsureConnected is the idempotent form of Connect: it returns immediately
// when the connection is already up and dials otherwise.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	switch st {
	case StateConnected:
		return nil
	case StateClosed:
		return NewError(ErrorDisconnected, "client is closed")
	case StateConnecting, StateReconnecting:
		return NewError(ErrorConnection, "connection attempt already in progress")
	}
	return c.Connect(ctx)
}

// Invoke sends one hub command and reports transport delivery. Command
// outcomes, if the protocol defines any, arrive later as push events.
func (c *Client) Invoke(ctx context.Context, target string, args ...any) error {
	c.mu.Lock()
	st := c.state
	conn := c.conn
	c.mu.Unlock()
	if st != StateConnected || conn == nil {
		return NewError(ErrorNotConnected, "hub connection is not established")
	}
	if args == nil {
		args = []any{}
	}
	inv := Invocation{Type: typeInvoke, Target: target, Args: args}
	if err := conn.Write(ctx, inv); err != nil {
		return WrapError(ErrorConnection, "send "+target, err)
	}
	return nil
}

// Call invokes a command and correlates it with its success/error push pair.
func (c *Client) Call(ctx context.Context, spec CallSpec) (json.RawMessage, error) {
	if spec.Timeout <= 0 {
		spec.Timeout = c.cfg.CallTimeout
	}
	return Correlate(ctx, c.dispatcher, c.Invoke, spec)
}

// Disconnect shuts down the client and closes the connection. It is safe to
// call repeatedly; after the first call every event subscription is
// invalidated and the client cannot be reused.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = StateClosed
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	fn := c.stateFn
	c.mu.Unlock()

	if fn != nil {
		fn(StateEvent{OldState: prev, NewState: StateClosed})
	}

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client close")
	}
	c.dispatcher.notifyClosed(nil)
	return err
}

func (c *Client) dial(ctx context.Context, u string) (*internal.Conn, error) {
	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}
	ws, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		return nil, err
	}
	return internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout), nil
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		var push Push
		if err := conn.Read(ctx, &push); err != nil {
			if isClientTeardown(ctx, err) {
				return
			}
			c.log().Warn("hub read failed", map[string]any{"error": err.Error()})
			if c.cfg.AutoReconnect {
				c.reconnect(ctx, err)
			} else {
				c.setState(StateDisconnected, err)
				c.dispatcher.notifyClosed(err)
			}
			return
		}
		c.dispatcher.Dispatch(push)
	}
}

// reconnect re-dials with doubling backoff until it succeeds, the retry
// budget runs out, or the client is closed. Event subscriptions survive a
// successful reconnect; correlated calls in flight during the outage resolve
// through their own timeouts.
func (c *Client) reconnect(ctx context.Context, cause error) {
	c.setState(StateReconnecting, cause)

	delay := c.cfg.ReconnectInterval
	if delay <= 0 {
		delay = time.Second
	}
	for attempt := 1; c.cfg.MaxReconnectTries <= 0 || attempt <= c.cfg.MaxReconnectTries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		conn, err := c.dial(ctx, c.cfg.URL)
		if err == nil {
			c.mu.Lock()
			if c.state == StateClosed {
				c.mu.Unlock()
				_ = conn.Close(websocket.StatusNormalClosure, "client close")
				return
			}
			c.conn = conn
			c.mu.Unlock()
			c.setState(StateConnected, nil)
			go c.readLoop(ctx, conn)
			return
		}

		c.log().Warn("reconnect attempt failed", map[string]any{
			"attempt": attempt,
			"error":   err.Error(),
		})
		delay *= 2
		if c.cfg.MaxReconnectDelay > 0 && delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}

	c.setState(StateDisconnected, cause)
	c.dispatcher.notifyClosed(cause)
}

func (c *Client) setState(next ConnectionState, cause error) {
	c.mu.Lock()
	prev := c.state
	if prev == next || prev == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = next
	fn := c.stateFn
	c.mu.Unlock()

	c.log().Debug("connection state", map[string]any{"from": prev.String(), "to": next.String()})
	if fn != nil {
		fn(StateEvent{OldState: prev, NewState: next, Error: cause})
	}
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// isClientTeardown reports whether a read error is fallout from our own
// Disconnect, whose cancel of the run context is the only silent exit. A
// server-initiated close or an EOF on a live context is a dead connection
// and must reach the reconnect-or-notify branch of the read loop, since
// nothing else advances the connection state.
func isClientTeardown(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}
