// Package module holds the plumbing shared by protocol modules: sending
// commands through a Host and turning wire events into typed observable
// events.
package module

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vango-dev/webdriverbidi/pkg/observable"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// Host executes commands and routes events for modules. The driver
// implements it.
type Host interface {
	transport.Commander
	RegisterEventHandler(method string, h transport.EventHandler) error
}

// Module is a named protocol module.
type Module interface {
	Name() string
}

// Base is embedded by protocol modules.
type Base struct {
	name string
	host Host
}

// NewBase returns a Base for the module called name.
func NewBase(name string, host Host) Base {
	return Base{name: name, host: host}
}

// Name returns the module name, which prefixes its wire methods.
func (b Base) Name() string {
	return b.name
}

// Host returns the host the module sends through.
func (b Base) Host() Host {
	return b.host
}

// Execute sends cmd through h and decodes the result with protocol.Decode.
func Execute[T any](ctx context.Context, h Host, cmd protocol.Command, opts ...transport.CommandOption) (T, error) {
	return transport.Execute[T](ctx, h, cmd, nil, opts...)
}

// ExecuteWith is Execute with an explicit decoder, for polymorphic results.
func ExecuteWith[T any](ctx context.Context, h Host, cmd protocol.Command, decode protocol.DecodeFunc[T], opts ...transport.CommandOption) (T, error) {
	return transport.Execute(ctx, h, cmd, decode, opts...)
}

// RegisterEvent creates an observable event for method and routes matching
// wire events to it. Params are decoded with protocol.Decode[T].
func RegisterEvent[T any](h Host, method string, opts ...observable.Option) (*observable.Event[T], error) {
	return RegisterWrappedEvent(h, method, protocol.Decode[T], func(v T) T { return v }, opts...)
}

// RegisterWrappedEvent is RegisterEvent for events whose payload is a shape
// shared with commands. decode reads the shared payload P and wrap builds
// the richer event argument T handed to observers.
func RegisterWrappedEvent[P, T any](h Host, method string, decode protocol.DecodeFunc[P], wrap func(P) T, opts ...observable.Option) (*observable.Event[T], error) {
	ev := observable.New[T](method, opts...)
	err := h.RegisterEventHandler(method, func(ctx context.Context, params json.RawMessage) error {
		payload, err := decode(params)
		if err != nil {
			return err
		}
		return ev.Notify(ctx, wrap(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("module: register %s: %w", method, err)
	}
	return ev, nil
}
