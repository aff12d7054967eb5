// Package observable provides a typed multi-subscriber event used by protocol
// modules to publish decoded events.
//
// Observers are invoked in registration order. The observer list is
// snapshotted before each notification, so observers may add or remove
// observers (including themselves) from inside a callback; the change takes
// effect on the next notification.
//
// A failing observer never stops the others. Errors and recovered panics are
// collected into the error returned by Notify, each wrapped in an
// *ObserverError.
package observable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrTooManyObservers is returned by AddObserver when the event already has
// its maximum number of observers.
var ErrTooManyObservers = errors.New("observable: too many observers")

// Handler receives one event occurrence.
type Handler[T any] func(ctx context.Context, value T) error

// ObserverError reports the failure of a single observer.
type ObserverError struct {
	Event        string
	Subscription string
	Err          error

	// Panic is the recovered value when the observer panicked.
	Panic any
	Stack []byte
}

// Error implements the error interface.
func (e *ObserverError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("observable: %s observer %s panicked: %v", e.Event, e.Subscription, e.Panic)
	}
	return fmt.Sprintf("observable: %s observer %s: %v", e.Event, e.Subscription, e.Err)
}

// Unwrap returns the underlying error.
func (e *ObserverError) Unwrap() error {
	return e.Err
}

// Option configures an Event.
type Option func(*options)

type options struct {
	maxObservers int
	logger       *slog.Logger
}

// WithMaxObservers limits the number of observers. Zero means unlimited.
func WithMaxObservers(n int) Option {
	return func(o *options) {
		o.maxObservers = n
	}
}

// WithLogger sets the logger used for failures of asynchronous observers,
// which have no caller to return an error to.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// ObserverOption configures a single observer.
type ObserverOption func(*observerConfig)

type observerConfig struct {
	async bool
}

// RunAsync makes the observer fire-and-forget: each notification runs it on
// its own goroutine and Notify does not wait for it.
func RunAsync() ObserverOption {
	return func(c *observerConfig) {
		c.async = true
	}
}

type observer[T any] struct {
	id    string
	fn    Handler[T]
	async bool
}

// Event is a typed event with any number of observers. The zero value is
// not usable; create events with New.
type Event[T any] struct {
	name   string
	opts   options
	mu     sync.RWMutex
	order  []*observer[T]
	byID   map[string]*observer[T]
	logger *slog.Logger
}

// New creates an event. name identifies it in logs and errors, usually the
// wire method name.
func New[T any](name string, opts ...Option) *Event[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Event[T]{
		name:   name,
		opts:   o,
		byID:   make(map[string]*observer[T]),
		logger: logger.With("component", "observable", "event", name),
	}
}

// Name returns the event name.
func (e *Event[T]) Name() string {
	return e.name
}

// Subscription identifies a registered observer.
type Subscription struct {
	id     string
	remove func(id string) bool
	once   sync.Once
}

// ID returns the subscription's ULID.
func (s *Subscription) ID() string {
	return s.id
}

// Remove unregisters the observer. It reports whether this call removed it.
func (s *Subscription) Remove() bool {
	removed := false
	s.once.Do(func() {
		removed = s.remove(s.id)
	})
	return removed
}

// AddObserver registers fn and returns its subscription.
func (e *Event[T]) AddObserver(fn Handler[T], opts ...ObserverOption) (*Subscription, error) {
	if fn == nil {
		return nil, errors.New("observable: nil handler")
	}
	var cfg observerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	ob := &observer[T]{id: newID(), fn: fn, async: cfg.async}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opts.maxObservers > 0 && len(e.order) >= e.opts.maxObservers {
		return nil, fmt.Errorf("%w: %s allows %d", ErrTooManyObservers, e.name, e.opts.maxObservers)
	}
	e.order = append(e.order, ob)
	e.byID[ob.id] = ob

	return &Subscription{id: ob.id, remove: e.remove}, nil
}

// RemoveObserver unregisters the observer behind sub. It reports whether the
// observer was still registered.
func (e *Event[T]) RemoveObserver(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return sub.Remove()
}

func (e *Event[T]) remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return false
	}
	delete(e.byID, id)
	for i, ob := range e.order {
		if ob.id == id {
			// Copy so snapshots held by in-flight notifications stay intact.
			next := make([]*observer[T], 0, len(e.order)-1)
			next = append(next, e.order[:i]...)
			e.order = append(next, e.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of registered observers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// Notify invokes every observer registered when the call starts. It never
// stops early; the returned error joins one *ObserverError per failed
// synchronous observer.
func (e *Event[T]) Notify(ctx context.Context, value T) error {
	e.mu.RLock()
	snapshot := e.order
	e.mu.RUnlock()

	var errs []error
	for _, ob := range snapshot {
		if ob.async {
			go func(ob *observer[T]) {
				if err := e.invoke(context.WithoutCancel(ctx), ob, value); err != nil {
					e.logger.Error("async observer failed", "subscription", ob.id, "error", err)
				}
			}(ob)
			continue
		}
		if err := e.invoke(ctx, ob, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Event[T]) invoke(ctx context.Context, ob *observer[T], value T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ObserverError{
				Event:        e.name,
				Subscription: ob.id,
				Panic:        r,
				Stack:        debug.Stack(),
			}
		}
	}()
	if cerr := ob.fn(ctx, value); cerr != nil {
		return &ObserverError{Event: e.name, Subscription: ob.id, Err: cerr}
	}
	return nil
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
