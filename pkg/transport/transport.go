// Package transport correlates WebDriver BiDi commands with their responses
// and routes events to registered handlers.
//
// A Transport owns one Connection. Commands get strictly increasing ids
// starting at 1 and are registered in the pending table before they are
// written, so a response can never arrive for an unknown id that the client
// actually sent. A single receive goroutine drains inbound frames in
// arrival order: responses complete their pending command, events go to the
// Dispatcher. Nothing that arrives on the wire can stop that goroutine;
// malformed frames, orphan responses and event failures are reported as
// Diagnostics.
//
// Every command completes exactly once with one of: its decoded result, a
// *CommandError (the remote end rejected it), a decode error wrapping
// *protocol.DecodeError (the reply was malformed), a *TimeoutError, or
// ErrConnectionClosed.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/webdriverbidi/pkg/observable"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCommandTimeout is the deadline applied to commands that do not set
// their own.
const DefaultCommandTimeout = 60 * time.Second

const (
	stateIdle int32 = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithCommandTimeout sets the default command deadline. Zero or a negative
// value disables the default deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.commandTimeout = d
	}
}

// WithDiagnostics sets a callback for failures isolated from callers.
func WithDiagnostics(fn DiagnosticFunc) Option {
	return func(t *Transport) {
		t.diagnostics = fn
	}
}

// WithMetrics records transport metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithTracer sets the tracer used for command spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Transport) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// WithFrameObserver adds an observer for raw frames. May be given more
// than once.
func WithFrameObserver(o FrameObserver) Option {
	return func(t *Transport) {
		if o != nil {
			t.frameObservers = append(t.frameObservers, o)
		}
	}
}

// Transport sends commands over a Connection and runs its receive loop.
// A Transport is used for a single connection; once disconnected it cannot
// be reconnected.
type Transport struct {
	conn       Connection
	pending    *pendingTable
	dispatcher *Dispatcher
	nextID     atomic.Uint64
	state      atomic.Int32

	logger         *slog.Logger
	commandTimeout time.Duration
	diagnostics    DiagnosticFunc
	metrics        *Metrics
	tracer         trace.Tracer
	frameObservers []FrameObserver

	loopCtx    context.Context
	loopCancel context.CancelFunc

	teardownOnce sync.Once
	done         chan struct{}
}

// New creates a Transport over conn.
func New(conn Connection, opts ...Option) *Transport {
	t := &Transport{
		conn:           conn,
		pending:        newPendingTable(),
		dispatcher:     NewDispatcher(),
		logger:         slog.Default(),
		commandTimeout: DefaultCommandTimeout,
		tracer:         defaultTracer(),
		done:           make(chan struct{}),
	}
	t.loopCtx, t.loopCancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transport")
	return t
}

// Connect opens the connection and starts the receive loop.
func (t *Transport) Connect(ctx context.Context, url string) error {
	if !t.state.CompareAndSwap(stateIdle, stateConnecting) {
		if t.state.Load() == stateClosed {
			return ErrConnectionClosed
		}
		return ErrAlreadyConnected
	}

	if err := t.conn.Connect(ctx, url); err != nil {
		t.state.CompareAndSwap(stateConnecting, stateIdle)
		return err
	}
	if !t.state.CompareAndSwap(stateConnecting, stateConnected) {
		// Disconnect ran while dialing.
		_ = t.conn.Close()
		return ErrConnectionClosed
	}

	msgs := t.conn.Messages()
	t.logger.Info("transport connected", "url", url)

	go t.receiveLoop(msgs)
	return nil
}

// Disconnect closes the connection and waits for the receive loop to
// finish. Every command still pending fails with ErrConnectionClosed.
// Safe to call more than once.
func (t *Transport) Disconnect(ctx context.Context) error {
	switch t.state.Load() {
	case stateIdle, stateConnecting:
		t.teardown()
		return nil
	}

	err := t.conn.Close()
	select {
	case <-t.done:
	case <-ctx.Done():
		// The loop is stuck behind a slow observer; drain anyway so no
		// caller waits forever.
		t.teardown()
		return ctx.Err()
	}
	return err
}

// Done is closed once the connection has ended and pending commands have
// been drained.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Connected reports whether the transport can send commands.
func (t *Transport) Connected() bool {
	return t.state.Load() == stateConnected
}

// Pending returns the number of commands awaiting a response.
func (t *Transport) Pending() int {
	return t.pending.len()
}

// Dispatcher returns the event dispatcher.
func (t *Transport) Dispatcher() *Dispatcher {
	return t.dispatcher
}

// RegisterEventHandler registers h for events named method.
func (t *Transport) RegisterEventHandler(method string, h EventHandler) error {
	return t.dispatcher.Register(method, h)
}

// SendCommand implements Commander.
func (t *Transport) SendCommand(ctx context.Context, cmd protocol.Command, complete CompletionFunc, opts ...CommandOption) (uint64, error) {
	if cmd == nil {
		return 0, errors.New("transport: nil command")
	}
	if complete == nil {
		return 0, errors.New("transport: nil completion")
	}
	switch t.state.Load() {
	case stateConnected:
	case stateClosed:
		return 0, ErrConnectionClosed
	default:
		return 0, ErrNotConnected
	}

	o := commandOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	timeout := o.timeout
	if timeout == 0 {
		timeout = t.commandTimeout
	}

	method := cmd.Method()
	id := t.nextID.Add(1)
	data, err := protocol.EncodeCommand(id, cmd)
	if err != nil {
		return 0, err
	}

	_, span := t.startSpan(ctx, method, id)
	p := &pendingCommand{id: id, method: method, sent: time.Now()}
	p.complete = func(result json.RawMessage, err error) {
		t.metrics.commandFinished(method, outcomeOf(err), time.Since(p.sent))
		endSpan(span, err)
		complete(result, err)
	}

	t.metrics.commandStarted()
	if err := t.pending.register(p, timeout, t.expire(method, timeout)); err != nil {
		t.metrics.commandFinished(method, outcomeClosed, 0)
		endSpan(span, err)
		return 0, err
	}

	t.observe(Outbound, data)
	if err := t.conn.Send(ctx, data); err != nil {
		// Withdraw the entry so complete is not called as well. If it is
		// already gone, complete has run and owns the outcome.
		if _, ok := t.pending.take(id); !ok {
			return id, nil
		}
		t.metrics.commandFinished(method, outcomeClosed, time.Since(p.sent))
		endSpan(span, err)
		return 0, fmt.Errorf("transport: send %s: %w", method, err)
	}

	t.logger.Debug("command sent", "id", id, "method", method)
	return id, nil
}

// expire returns the timeout callback for a command.
func (t *Transport) expire(method string, timeout time.Duration) func(id uint64) {
	return func(id uint64) {
		if _, ok := t.pending.fault(id, &TimeoutError{ID: id, Method: method, Timeout: timeout}); ok {
			t.logger.Warn("command timed out", "id", id, "method", method, "timeout", timeout)
		}
	}
}

func (t *Transport) receiveLoop(msgs <-chan []byte) {
	defer t.teardown()
	for data := range msgs {
		t.handleFrame(data)
	}
	t.logger.Info("connection ended")
}

func (t *Transport) handleFrame(data []byte) {
	t.observe(Inbound, data)

	msg, err := protocol.ClassifyMessage(data)
	if err != nil {
		t.report(Diagnostic{Kind: DiagMalformedFrame, Err: err, Frame: data})
		return
	}

	switch msg.Type {
	case protocol.MessageSuccess:
		if _, ok := t.pending.resolve(msg.ID, msg.Result); !ok {
			t.report(Diagnostic{Kind: DiagOrphanResponse, ID: msg.ID, Err: ErrOrphanResponse, Frame: data})
		}

	case protocol.MessageError:
		p, ok := t.pending.take(msg.ID)
		if !ok {
			t.report(Diagnostic{Kind: DiagOrphanResponse, ID: msg.ID, Err: ErrOrphanResponse, Frame: data})
			return
		}
		p.complete(nil, &CommandError{
			ID:         msg.ID,
			Method:     p.method,
			Code:       ErrorCode(msg.ErrorCode),
			Message:    msg.ErrorMessage,
			Stacktrace: msg.Stacktrace,
		})

	case protocol.MessageEvent:
		t.dispatchEvent(msg.Method, msg.Params, data)
	}
}

func (t *Transport) dispatchEvent(method string, params json.RawMessage, frame []byte) {
	handled, err := t.dispatcher.Dispatch(t.loopCtx, method, params)
	switch {
	case !handled:
		t.metrics.event(method, eventUnhandled)
		t.report(Diagnostic{Kind: DiagUnhandledEvent, Method: method, Frame: frame})
	case err == nil:
		t.metrics.event(method, eventHandled)
	default:
		var oe *observable.ObserverError
		var de *protocol.DecodeError
		if !errors.As(err, &oe) && errors.As(err, &de) {
			t.metrics.event(method, eventDecodeError)
			t.report(Diagnostic{Kind: DiagEventDecode, Method: method, Err: err, Frame: frame})
			return
		}
		t.metrics.event(method, eventObserverError)
		t.report(Diagnostic{Kind: DiagObserverFailure, Method: method, Err: err, Frame: frame})
	}
}

// teardown runs once: it closes the connection, faults every pending
// command and marks the transport closed.
func (t *Transport) teardown() {
	t.teardownOnce.Do(func() {
		t.state.Store(stateClosed)
		t.loopCancel()
		_ = t.conn.Close()

		if n := len(t.pending.drainAll(ErrConnectionClosed)); n > 0 {
			t.logger.Warn("pending commands failed on close", "count", n)
		}
		close(t.done)
	})
}

func (t *Transport) observe(dir Direction, data []byte) {
	t.metrics.frame(dir)
	for _, o := range t.frameObservers {
		o.ObserveFrame(dir, data)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrRemote):
		return outcomeRemoteError
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	default:
		return outcomeClosed
	}
}
