package livepoll

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw payload of one push event.
type Handler func(data json.RawMessage)

// Subscription identifies one registered handler so it can be removed.
type Subscription struct {
	event   string
	fn      Handler
	once    bool
	removed bool
}

// Dispatcher routes named hub pushes to registered handlers. Handlers for a
// given push run sequentially in registration order, always from the
// connection read loop, so no two handlers ever observe the same message
// concurrently.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[string][]*Subscription
	errFns   []func(error)
	closeFns []func(error)
	logger   Logger
}

// NewDispatcher constructs an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]*Subscription),
		logger:   noopLogger{},
	}
}

func (d *Dispatcher) setLogger(l Logger) {
	d.mu.Lock()
	d.logger = l
	d.mu.Unlock()
}

// Subscribe registers a durable handler for a named push event. Multiple
// handlers per event are allowed and run in registration order.
func (d *Dispatcher) Subscribe(event string, fn Handler) *Subscription {
	return d.add(event, fn, false)
}

// Once registers a handler that removes itself after its first invocation.
func (d *Dispatcher) Once(event string, fn Handler) *Subscription {
	return d.add(event, fn, true)
}

func (d *Dispatcher) add(event string, fn Handler, once bool) *Subscription {
	sub := &Subscription{event: event, fn: fn, once: once}
	d.mu.Lock()
	d.handlers[event] = append(d.handlers[event], sub)
	d.mu.Unlock()
	return sub
}

// Unsubscribe removes exactly the given registration. Removing one that is
// already gone is a no-op.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	d.removeLocked(sub)
	d.mu.Unlock()
}

func (d *Dispatcher) removeLocked(sub *Subscription) {
	if sub.removed {
		return
	}
	sub.removed = true
	subs := d.handlers[sub.event]
	for i, s := range subs {
		if s == sub {
			d.handlers[sub.event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.handlers[sub.event]) == 0 {
		delete(d.handlers, sub.event)
	}
}

// OnError registers a callback for protocol-level error pushes.
func (d *Dispatcher) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.errFns = append(d.errFns, fn)
	d.mu.Unlock()
}

// OnClose registers a callback invoked when the connection is torn down.
// Close callbacks survive teardown; event subscriptions do not.
func (d *Dispatcher) OnClose(fn func(error)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.closeFns = append(d.closeFns, fn)
	d.mu.Unlock()
}

// Dispatch routes one push to its handlers. Malformed pushes are logged and
// dropped, never surfaced as a panic across the dispatch boundary.
func (d *Dispatcher) Dispatch(p Push) {
	if p.Type == typeError && p.Error != nil {
		d.fireError(FromWireError(p.Error))
		return
	}
	if p.Type != typeEvent || p.Event == "" {
		d.mu.Lock()
		logger := d.logger
		d.mu.Unlock()
		logger.Warn("dropping malformed push", map[string]any{"type": p.Type, "event": p.Event})
		return
	}

	d.mu.Lock()
	snapshot := make([]*Subscription, len(d.handlers[p.Event]))
	copy(snapshot, d.handlers[p.Event])
	d.mu.Unlock()

	for _, sub := range snapshot {
		d.mu.Lock()
		if sub.removed {
			d.mu.Unlock()
			continue
		}
		if sub.once {
			d.removeLocked(sub)
		}
		d.mu.Unlock()
		sub.fn(p.Data)
	}
}

func (d *Dispatcher) fireError(err error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	fns := make([]func(error), len(d.errFns))
	copy(fns, d.errFns)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// notifyClosed runs the close callbacks and invalidates every event
// subscription. Outstanding correlated calls are not resolved here; they
// finish through their own timeouts.
func (d *Dispatcher) notifyClosed(cause error) {
	d.mu.Lock()
	fns := make([]func(error), len(d.closeFns))
	copy(fns, d.closeFns)
	for _, subs := range d.handlers {
		for _, sub := range subs {
			sub.removed = true
		}
	}
	d.handlers = make(map[string][]*Subscription)
	d.mu.Unlock()
	for _, fn := range fns {
		fn(cause)
	}
}
