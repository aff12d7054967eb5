// Package browsingcontext implements the WebDriver BiDi browsingContext
// module.
package browsingcontext

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vango-dev/webdriverbidi/pkg/module"
	"github.com/vango-dev/webdriverbidi/pkg/observable"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// Name is the module name.
const Name = "browsingContext"

// Event names.
const (
	EventContextCreated   = "browsingContext.contextCreated"
	EventContextDestroyed = "browsingContext.contextDestroyed"
	EventLoad             = "browsingContext.load"
	EventDOMContentLoaded = "browsingContext.domContentLoaded"
)

var errNoContext = errors.New("browsingcontext: context id is required")

// GetTreeParams are the parameters of browsingContext.getTree.
type GetTreeParams struct {
	MaxDepth *uint  `json:"maxDepth,omitempty"`
	Root     string `json:"root,omitempty"`
}

// Method implements protocol.Command.
func (GetTreeParams) Method() string { return "browsingContext.getTree" }

// GetTreeResult is the result of browsingContext.getTree.
type GetTreeResult struct {
	Contexts []Info `json:"contexts"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GetTreeResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("browsingContext.GetTreeResult", data)
	if err != nil {
		return err
	}
	r.Required("contexts", &g.Contexts)
	g.AdditionalData = r.Extra()
	return r.Err()
}

// CreateParams are the parameters of browsingContext.create.
type CreateParams struct {
	Type             CreateType `json:"type"`
	ReferenceContext string     `json:"referenceContext,omitempty"`
	Background       bool       `json:"background,omitempty"`
	UserContext      string     `json:"userContext,omitempty"`
}

// Method implements protocol.Command.
func (CreateParams) Method() string { return "browsingContext.create" }

// CreateResult is the result of browsingContext.create.
type CreateResult struct {
	Context string `json:"context"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CreateResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("browsingContext.CreateResult", data)
	if err != nil {
		return err
	}
	r.Required("context", &c.Context)
	c.AdditionalData = r.Extra()
	return r.Err()
}

// NavigateParams are the parameters of browsingContext.navigate.
type NavigateParams struct {
	Context string         `json:"context"`
	URL     string         `json:"url"`
	Wait    ReadinessState `json:"wait,omitempty"`
}

// Method implements protocol.Command.
func (NavigateParams) Method() string { return "browsingContext.navigate" }

// NavigateResult is the result of browsingContext.navigate. Navigation is
// nil when no navigation was started.
type NavigateResult struct {
	Navigation *string `json:"navigation"`
	URL        string  `json:"url"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler. navigation must be present
// even when it is null.
func (n *NavigateResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("browsingContext.NavigateResult", data)
	if err != nil {
		return err
	}
	r.Required("navigation", &n.Navigation)
	r.Required("url", &n.URL)
	n.AdditionalData = r.Extra()
	return r.Err()
}

// CloseParams are the parameters of browsingContext.close.
type CloseParams struct {
	Context      string `json:"context"`
	PromptUnload bool   `json:"promptUnload,omitempty"`
}

// Method implements protocol.Command.
func (CloseParams) Method() string { return "browsingContext.close" }

// SetViewportParams are the parameters of browsingContext.setViewport.
// Leaving Viewport unset keeps the current viewport; protocol.Null resets it
// to the default.
type SetViewportParams struct {
	Context          string                      `json:"context"`
	Viewport         protocol.Nullable[Viewport] `json:"viewport,omitzero"`
	DevicePixelRatio protocol.Nullable[float64]  `json:"devicePixelRatio,omitzero"`
}

// Method implements protocol.Command.
func (SetViewportParams) Method() string { return "browsingContext.setViewport" }

// ContextEventArgs is the payload of contextCreated and contextDestroyed.
type ContextEventArgs struct {
	Info
}

// Module is the browsingContext module.
type Module struct {
	module.Base

	OnContextCreated   *observable.Event[ContextEventArgs]
	OnContextDestroyed *observable.Event[ContextEventArgs]
	OnLoad             *observable.Event[NavigationInfo]
	OnDOMContentLoaded *observable.Event[NavigationInfo]
}

// New creates the browsingContext module and registers its events with host.
func New(host module.Host, opts ...observable.Option) (*Module, error) {
	m := &Module{Base: module.NewBase(Name, host)}
	wrap := func(i Info) ContextEventArgs { return ContextEventArgs{Info: i} }

	var err error
	if m.OnContextCreated, err = module.RegisterWrappedEvent(host, EventContextCreated, protocol.Decode[Info], wrap, opts...); err != nil {
		return nil, err
	}
	if m.OnContextDestroyed, err = module.RegisterWrappedEvent(host, EventContextDestroyed, protocol.Decode[Info], wrap, opts...); err != nil {
		return nil, err
	}
	if m.OnLoad, err = module.RegisterEvent[NavigationInfo](host, EventLoad, opts...); err != nil {
		return nil, err
	}
	if m.OnDOMContentLoaded, err = module.RegisterEvent[NavigationInfo](host, EventDOMContentLoaded, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// GetTree returns the tree of browsing contexts.
func (m *Module) GetTree(ctx context.Context, params GetTreeParams, opts ...transport.CommandOption) ([]Info, error) {
	res, err := module.Execute[GetTreeResult](ctx, m.Host(), params, opts...)
	if err != nil {
		return nil, err
	}
	return res.Contexts, nil
}

// Create opens a new tab or window and returns its context id.
func (m *Module) Create(ctx context.Context, params CreateParams, opts ...transport.CommandOption) (string, error) {
	if params.Type == "" {
		params.Type = CreateTab
	}
	res, err := module.Execute[CreateResult](ctx, m.Host(), params, opts...)
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// Navigate loads url in a context.
func (m *Module) Navigate(ctx context.Context, params NavigateParams, opts ...transport.CommandOption) (NavigateResult, error) {
	if params.Context == "" {
		return NavigateResult{}, errNoContext
	}
	return module.Execute[NavigateResult](ctx, m.Host(), params, opts...)
}

// Close closes a top-level context.
func (m *Module) Close(ctx context.Context, params CloseParams, opts ...transport.CommandOption) error {
	if params.Context == "" {
		return errNoContext
	}
	_, err := module.Execute[protocol.EmptyResult](ctx, m.Host(), params, opts...)
	return err
}

// SetViewport changes or resets the viewport of a context.
func (m *Module) SetViewport(ctx context.Context, params SetViewportParams, opts ...transport.CommandOption) error {
	if params.Context == "" {
		return errNoContext
	}
	_, err := module.Execute[protocol.EmptyResult](ctx, m.Host(), params, opts...)
	return err
}
