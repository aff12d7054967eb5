package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// Commander sends commands. *Transport implements it; modules depend on
// this interface rather than on the transport itself.
type Commander interface {
	// SendCommand encodes cmd, registers it and writes it. complete is called
	// exactly once with the outcome unless SendCommand returns an error, in
	// which case it is never called.
	SendCommand(ctx context.Context, cmd protocol.Command, complete CompletionFunc, opts ...CommandOption) (uint64, error)
}

// NoTimeout passed to WithTimeout disables the deadline for a command.
const NoTimeout time.Duration = -1

// CommandOption configures a single command.
type CommandOption func(*commandOptions)

type commandOptions struct {
	timeout time.Duration
}

// WithTimeout sets the command deadline, measured from send time. Zero keeps
// the transport default; NoTimeout (or any negative value) disables it.
func WithTimeout(d time.Duration) CommandOption {
	return func(o *commandOptions) {
		o.timeout = d
	}
}

// Future is the pending result of a command.
type Future[T any] struct {
	id     uint64
	method string
	done   chan struct{}
	value  T
	err    error
}

func newFuture[T any](method string) *Future[T] {
	return &Future[T]{method: method, done: make(chan struct{})}
}

// ID returns the command id.
func (f *Future[T]) ID() uint64 {
	return f.id
}

// Method returns the command method.
func (f *Future[T]) Method() string {
	return f.method
}

// Done is closed once the command has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the command completes or ctx is done. Cancelling ctx
// abandons only the wait: the command stays pending and is still resolved,
// faulted or timed out by the transport.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// complete is called exactly once by the completion callback.
func (f *Future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Send sends cmd and returns a Future for its result. decode turns the raw
// result object into T; nil uses protocol.Decode[T]. A result that fails to
// decode completes the future with an error wrapping *protocol.DecodeError.
func Send[T any](ctx context.Context, c Commander, cmd protocol.Command, decode protocol.DecodeFunc[T], opts ...CommandOption) (*Future[T], error) {
	if decode == nil {
		decode = protocol.Decode[T]
	}
	method := cmd.Method()
	f := newFuture[T](method)

	id, err := c.SendCommand(ctx, cmd, func(result json.RawMessage, err error) {
		var zero T
		if err != nil {
			f.complete(zero, err)
			return
		}
		v, err := decode(result)
		if err != nil {
			f.complete(zero, fmt.Errorf("transport: decode %s result: %w", method, err))
			return
		}
		f.complete(v, nil)
	}, opts...)
	if err != nil {
		return nil, err
	}
	f.id = id
	return f, nil
}

// Execute sends cmd and waits for its result.
func Execute[T any](ctx context.Context, c Commander, cmd protocol.Command, decode protocol.DecodeFunc[T], opts ...CommandOption) (T, error) {
	f, err := Send(ctx, c, cmd, decode, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Wait(ctx)
}
