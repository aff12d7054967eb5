// Package session implements the WebDriver BiDi session module.
package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vango-dev/webdriverbidi/pkg/module"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// Name is the module name.
const Name = "session"

var errNoEvents = errors.New("session: at least one event is required")

type statusCommand struct{}

func (statusCommand) Method() string { return "session.status" }

// StatusResult is the result of session.status.
type StatusResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StatusResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("session.StatusResult", data)
	if err != nil {
		return err
	}
	r.Required("ready", &s.Ready)
	r.Required("message", &s.Message)
	s.AdditionalData = r.Extra()
	return r.Err()
}

// CapabilityRequest is one set of requested capabilities. Extra holds
// vendor capabilities such as "goog:chromeOptions".
type CapabilityRequest struct {
	AcceptInsecureCerts *bool  `json:"acceptInsecureCerts,omitempty"`
	BrowserName         string `json:"browserName,omitempty"`
	BrowserVersion      string `json:"browserVersion,omitempty"`
	PlatformName        string `json:"platformName,omitempty"`
	WebSocketURL        *bool  `json:"webSocketUrl,omitempty"`

	Extra map[string]any `json:"-"`
}

// MarshalJSON merges Extra into the declared fields. Declared fields win.
func (c CapabilityRequest) MarshalJSON() ([]byte, error) {
	type plain CapabilityRequest
	data, err := json.Marshal(plain(c))
	if err != nil || len(c.Extra) == 0 {
		return data, err
	}
	merged := make(map[string]any, len(c.Extra)+4)
	for k, v := range c.Extra {
		merged[k] = v
	}
	var declared map[string]json.RawMessage
	if err := json.Unmarshal(data, &declared); err != nil {
		return nil, err
	}
	for k, v := range declared {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// CapabilitiesRequest is the capabilities member of session.new.
type CapabilitiesRequest struct {
	AlwaysMatch *CapabilityRequest  `json:"alwaysMatch,omitempty"`
	FirstMatch  []CapabilityRequest `json:"firstMatch,omitempty"`
}

// NewParams are the parameters of session.new.
type NewParams struct {
	Capabilities CapabilitiesRequest `json:"capabilities"`
}

// Method implements protocol.Command.
func (NewParams) Method() string { return "session.new" }

// Capabilities are the capabilities of a created session.
type Capabilities struct {
	AcceptInsecureCerts bool
	BrowserName         string
	BrowserVersion      string
	PlatformName        string
	SetWindowRect       bool
	UserAgent           string
	WebSocketURL        string

	AdditionalData map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Capabilities) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("session.Capabilities", data)
	if err != nil {
		return err
	}
	r.Required("acceptInsecureCerts", &c.AcceptInsecureCerts)
	r.Required("browserName", &c.BrowserName)
	r.Required("browserVersion", &c.BrowserVersion)
	r.Required("platformName", &c.PlatformName)
	r.Required("setWindowRect", &c.SetWindowRect)
	r.Required("userAgent", &c.UserAgent)
	r.Optional("webSocketUrl", &c.WebSocketURL)
	c.AdditionalData = r.Extra()
	return r.Err()
}

// NewResult is the result of session.new.
type NewResult struct {
	SessionID    string       `json:"sessionId"`
	Capabilities Capabilities `json:"capabilities"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NewResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("session.NewResult", data)
	if err != nil {
		return err
	}
	r.Required("sessionId", &n.SessionID)
	r.Required("capabilities", &n.Capabilities)
	n.AdditionalData = r.Extra()
	return r.Err()
}

type endCommand struct{}

func (endCommand) Method() string { return "session.end" }

// SubscribeParams are the parameters of session.subscribe. Events may name
// single events ("log.entryAdded") or whole modules ("log").
type SubscribeParams struct {
	Events   []string `json:"events"`
	Contexts []string `json:"contexts,omitempty"`
}

// Method implements protocol.Command.
func (SubscribeParams) Method() string { return "session.subscribe" }

// SubscribeResult is the result of session.subscribe. Subscription is
// empty for remote ends that predate subscription ids.
type SubscribeResult struct {
	Subscription string `json:"subscription"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SubscribeResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("session.SubscribeResult", data)
	if err != nil {
		return err
	}
	r.Optional("subscription", &s.Subscription)
	s.AdditionalData = r.Extra()
	return r.Err()
}

// UnsubscribeParams are the parameters of session.unsubscribe. Set either
// Events or Subscriptions.
type UnsubscribeParams struct {
	Events        []string `json:"events,omitempty"`
	Contexts      []string `json:"contexts,omitempty"`
	Subscriptions []string `json:"subscriptions,omitempty"`
}

// Method implements protocol.Command.
func (UnsubscribeParams) Method() string { return "session.unsubscribe" }

// Module is the session module. It has no events.
type Module struct {
	module.Base
}

// New creates the session module.
func New(host module.Host) *Module {
	return &Module{Base: module.NewBase(Name, host)}
}

// Status reports whether the remote end can create new sessions.
func (m *Module) Status(ctx context.Context, opts ...transport.CommandOption) (StatusResult, error) {
	return module.Execute[StatusResult](ctx, m.Host(), statusCommand{}, opts...)
}

// New creates a session.
func (m *Module) New(ctx context.Context, params NewParams, opts ...transport.CommandOption) (NewResult, error) {
	return module.Execute[NewResult](ctx, m.Host(), params, opts...)
}

// End ends the session. The remote end may close the connection right
// after replying.
func (m *Module) End(ctx context.Context, opts ...transport.CommandOption) error {
	_, err := module.Execute[protocol.EmptyResult](ctx, m.Host(), endCommand{}, opts...)
	return err
}

// Subscribe enables events, optionally only for the given contexts.
func (m *Module) Subscribe(ctx context.Context, events []string, contexts ...string) (SubscribeResult, error) {
	if len(events) == 0 {
		return SubscribeResult{}, errNoEvents
	}
	return module.Execute[SubscribeResult](ctx, m.Host(), SubscribeParams{Events: events, Contexts: contexts})
}

// Unsubscribe disables events.
func (m *Module) Unsubscribe(ctx context.Context, params UnsubscribeParams, opts ...transport.CommandOption) error {
	if len(params.Events) == 0 && len(params.Subscriptions) == 0 {
		return errNoEvents
	}
	_, err := module.Execute[protocol.EmptyResult](ctx, m.Host(), params, opts...)
	return err
}
