// Package driver is the entry point of the client. A Driver owns a
// transport and the protocol modules built on it.
//
//	d, err := driver.NewWebSocket(nil)
//	if err != nil { ... }
//	if err := d.Start(ctx, "ws://127.0.0.1:9222/session"); err != nil { ... }
//	defer d.Stop(ctx)
//	status, err := d.Session.Status(ctx)
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-dev/webdriverbidi/pkg/module"
	"github.com/vango-dev/webdriverbidi/pkg/modules/browsingcontext"
	bidilog "github.com/vango-dev/webdriverbidi/pkg/modules/log"
	"github.com/vango-dev/webdriverbidi/pkg/modules/script"
	"github.com/vango-dev/webdriverbidi/pkg/modules/session"
	"github.com/vango-dev/webdriverbidi/pkg/observable"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// ErrDuplicateModule is returned when a module name is registered twice.
var ErrDuplicateModule = errors.New("driver: module already registered")

// Option configures a Driver.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	transportOpts  []transport.Option
	observableOpts []observable.Option
}

// WithLogger sets the logger for the driver and its transport.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTransportOptions passes options to the transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(c *config) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

// WithEventOptions passes options to every module event.
func WithEventOptions(opts ...observable.Option) Option {
	return func(c *config) {
		c.observableOpts = append(c.observableOpts, opts...)
	}
}

// Driver sends commands and receives events for one BiDi session.
type Driver struct {
	Session         *session.Module
	Script          *script.Module
	BrowsingContext *browsingcontext.Module
	Log             *bidilog.Module

	transport *transport.Transport
	logger    *slog.Logger

	mu      sync.RWMutex
	modules map[string]module.Module
}

// New creates a Driver over conn with the built-in modules registered.
func New(conn transport.Connection, opts ...Option) (*Driver, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	tOpts := append([]transport.Option{transport.WithLogger(cfg.logger)}, cfg.transportOpts...)
	d := &Driver{
		transport: transport.New(conn, tOpts...),
		logger:    cfg.logger.With("component", "driver"),
		modules:   make(map[string]module.Module),
	}

	d.Session = session.New(d)
	var err error
	if d.Script, err = script.New(d, cfg.observableOpts...); err != nil {
		return nil, err
	}
	if d.BrowsingContext, err = browsingcontext.New(d, cfg.observableOpts...); err != nil {
		return nil, err
	}
	if d.Log, err = bidilog.New(d, cfg.observableOpts...); err != nil {
		return nil, err
	}
	for _, m := range []module.Module{d.Session, d.Script, d.BrowsingContext, d.Log} {
		if err := d.RegisterModule(m); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewWebSocket creates a Driver over a websocket connection. A nil cfg
// uses transport.DefaultWebSocketConfig.
func NewWebSocket(cfg *transport.WebSocketConfig, opts ...Option) (*Driver, error) {
	return New(transport.NewWebSocketConnection(cfg), opts...)
}

// Start connects to the remote end at url.
func (d *Driver) Start(ctx context.Context, url string) error {
	if err := d.transport.Connect(ctx, url); err != nil {
		return fmt.Errorf("driver: connect: %w", err)
	}
	return nil
}

// Stop disconnects. Pending commands fail with transport.ErrConnectionClosed.
func (d *Driver) Stop(ctx context.Context) error {
	return d.transport.Disconnect(ctx)
}

// Done is closed when the connection has ended.
func (d *Driver) Done() <-chan struct{} {
	return d.transport.Done()
}

// Transport returns the underlying transport.
func (d *Driver) Transport() *transport.Transport {
	return d.transport
}

// SendCommand implements module.Host.
func (d *Driver) SendCommand(ctx context.Context, cmd protocol.Command, complete transport.CompletionFunc, opts ...transport.CommandOption) (uint64, error) {
	return d.transport.SendCommand(ctx, cmd, complete, opts...)
}

// RegisterEventHandler implements module.Host.
func (d *Driver) RegisterEventHandler(method string, h transport.EventHandler) error {
	return d.transport.RegisterEventHandler(method, h)
}

// RegisterModule adds a module. Names are unique.
func (d *Driver) RegisterModule(m module.Module) error {
	name := m.Name()
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.modules[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	d.modules[name] = m
	d.logger.Debug("module registered", "module", name)
	return nil
}

// Module returns the module registered under name.
func (d *Driver) Module(name string) (module.Module, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.modules[name]
	return m, ok
}

// Execute sends a command by method name with raw params and returns the
// raw result. Empty params are sent as {}.
func (d *Driver) Execute(ctx context.Context, method string, params json.RawMessage, opts ...transport.CommandOption) (json.RawMessage, error) {
	if method == "" {
		return nil, errors.New("driver: empty method")
	}
	return transport.Execute(ctx, d, rawCommand{method: method, params: params}, decodeRaw, opts...)
}

func decodeRaw(data []byte) (json.RawMessage, error) {
	return json.RawMessage(data), nil
}

type rawCommand struct {
	method string
	params json.RawMessage
}

func (c rawCommand) Method() string { return c.method }

func (c rawCommand) MarshalJSON() ([]byte, error) {
	if len(c.params) == 0 {
		return []byte("{}"), nil
	}
	return c.params, nil
}
