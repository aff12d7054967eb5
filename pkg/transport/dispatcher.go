package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// EventHandler decodes an event's params and notifies its subscribers.
type EventHandler func(ctx context.Context, params json.RawMessage) error

// Dispatcher routes events to the handler registered for their method.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]EventHandler)}
}

// Register associates method with h. Each method has at most one handler.
func (d *Dispatcher) Register(method string, h EventHandler) error {
	if method == "" || h == nil {
		return fmt.Errorf("transport: invalid event registration for %q", method)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[method]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, method)
	}
	d.handlers[method] = h
	return nil
}

// Dispatch runs the handler for method. handled is false when no handler is
// registered, which is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage) (handled bool, err error) {
	d.mu.RLock()
	h, ok := d.handlers[method]
	d.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, h(ctx, params)
}

// Methods returns the registered event methods, sorted.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	methods := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}
