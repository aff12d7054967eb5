// Package script implements the WebDriver BiDi script module.
package script

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
const Name = "script"

// Event names.
const (
	EventMessage        = "script.message"
	EventRealmCreated   = "script.realmCreated"
	EventRealmDestroyed = "script.realmDestroyed"
)

var errNoTarget = errors.New("script: target is required")

// ResultOwnership controls whether the remote end keeps a handle to a
// returned object.
type ResultOwnership string

const (
	OwnershipRoot ResultOwnership = "root"
	OwnershipNone ResultOwnership = "none"
)

// EvaluateParams are the parameters of script.evaluate.
type EvaluateParams struct {
	Expression      string          `json:"expression"`
	Target          Target          `json:"target"`
	AwaitPromise    bool            `json:"awaitPromise"`
	ResultOwnership ResultOwnership `json:"resultOwnership,omitempty"`
	UserActivation  *bool           `json:"userActivation,omitempty"`
}

// Method implements protocol.Command.
func (EvaluateParams) Method() string { return "script.evaluate" }

// CallFunctionParams are the parameters of script.callFunction. Arguments
// and This hold LocalValue or RemoteReference values.
type CallFunctionParams struct {
	FunctionDeclaration string          `json:"functionDeclaration"`
	Target              Target          `json:"target"`
	AwaitPromise        bool            `json:"awaitPromise"`
	Arguments           []any           `json:"arguments,omitempty"`
	This                any             `json:"this,omitempty"`
	ResultOwnership     ResultOwnership `json:"resultOwnership,omitempty"`
	UserActivation      *bool           `json:"userActivation,omitempty"`
}

// Method implements protocol.Command.
func (CallFunctionParams) Method() string { return "script.callFunction" }

// DisownParams are the parameters of script.disown.
type DisownParams struct {
	Handles []string `json:"handles"`
	Target  Target   `json:"target"`
}

// Method implements protocol.Command.
func (DisownParams) Method() string { return "script.disown" }

// GetRealmsParams are the parameters of script.getRealms.
type GetRealmsParams struct {
	Context string    `json:"context,omitempty"`
	Type    RealmType `json:"type,omitempty"`
}

// Method implements protocol.Command.
func (GetRealmsParams) Method() string { return "script.getRealms" }

// GetRealmsResult is the result of script.getRealms.
type GetRealmsResult struct {
	Realms []RealmInfo `json:"realms"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GetRealmsResult) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.GetRealmsResult", data)
	if err != nil {
		return err
	}
	r.Required("realms", &g.Realms)
	g.AdditionalData = r.Extra()
	return r.Err()
}

// MessageEventArgs is the payload of script.message.
type MessageEventArgs struct {
	Channel string
	Data    RemoteValue
	Source  Source
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MessageEventArgs) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.MessageEventArgs", data)
	if err != nil {
		return err
	}
	r.Required("channel", &m.Channel)
	r.Required("data", &m.Data)
	r.Required("source", &m.Source)
	return r.Err()
}

// RealmCreatedEventArgs is the payload of script.realmCreated. The wire
// payload is a RealmInfo.
type RealmCreatedEventArgs struct {
	RealmInfo
}

// RealmDestroyedEventArgs is the payload of script.realmDestroyed.
type RealmDestroyedEventArgs struct {
	Realm string `json:"realm"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *RealmDestroyedEventArgs) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.RealmDestroyedEventArgs", data)
	if err != nil {
		return err
	}
	r.Required("realm", &e.Realm)
	e.AdditionalData = r.Extra()
	return r.Err()
}

// Module is the script module.
type Module struct {
	module.Base

	// OnMessage fires for script.message.
	OnMessage *observable.Event[MessageEventArgs]
	// OnRealmCreated fires for script.realmCreated.
	OnRealmCreated *observable.Event[RealmCreatedEventArgs]
	// OnRealmDestroyed fires for script.realmDestroyed.
	OnRealmDestroyed *observable.Event[RealmDestroyedEventArgs]
}

// New creates the script module and registers its events with host.
func New(host module.Host, opts ...observable.Option) (*Module, error) {
	m := &Module{Base: module.NewBase(Name, host)}

	var err error
	if m.OnMessage, err = module.RegisterEvent[MessageEventArgs](host, EventMessage, opts...); err != nil {
		return nil, err
	}
	m.OnRealmCreated, err = module.RegisterWrappedEvent(host, EventRealmCreated, protocol.Decode[RealmInfo],
		func(ri RealmInfo) RealmCreatedEventArgs { return RealmCreatedEventArgs{RealmInfo: ri} }, opts...)
	if err != nil {
		return nil, err
	}
	if m.OnRealmDestroyed, err = module.RegisterEvent[RealmDestroyedEventArgs](host, EventRealmDestroyed, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Evaluate evaluates an expression. A thrown exception is not an error: it
// is returned as an EvaluateException.
func (m *Module) Evaluate(ctx context.Context, params EvaluateParams, opts ...transport.CommandOption) (EvaluateResult, error) {
	if params.Target == nil {
		return nil, errNoTarget
	}
	return module.ExecuteWith(ctx, m.Host(), params, DecodeEvaluateResult, opts...)
}

// CallFunction calls a function declaration with arguments.
func (m *Module) CallFunction(ctx context.Context, params CallFunctionParams, opts ...transport.CommandOption) (EvaluateResult, error) {
	if params.Target == nil {
		return nil, errNoTarget
	}
	return module.ExecuteWith(ctx, m.Host(), params, DecodeEvaluateResult, opts...)
}

// Disown releases remote handles.
func (m *Module) Disown(ctx context.Context, target Target, handles ...string) error {
	if target == nil {
		return errNoTarget
	}
	if handles == nil {
		handles = []string{}
	}
	_, err := module.Execute[protocol.EmptyResult](ctx, m.Host(), DisownParams{Handles: handles, Target: target})
	return err
}

// GetRealms lists realms, optionally filtered by context and type.
func (m *Module) GetRealms(ctx context.Context, params GetRealmsParams, opts ...transport.CommandOption) ([]RealmInfo, error) {
	res, err := module.Execute[GetRealmsResult](ctx, m.Host(), params, opts...)
	if err != nil {
		return nil, err
	}
	return res.Realms, nil
}

// EvaluateString evaluates expression in a browsing context and returns
// the result as a string. An exception is returned as an *ExceptionError.
func (m *Module) EvaluateString(ctx context.Context, contextID, expression string) (string, error) {
	res, err := m.Evaluate(ctx, EvaluateParams{
		Expression:   expression,
		Target:       ContextTarget{Context: contextID},
		AwaitPromise: true,
	})
	if err != nil {
		return "", err
	}
	switch r := res.(type) {
	case EvaluateException:
		return "", &ExceptionError{Details: r.ExceptionDetails}
	case EvaluateSuccess:
		if s, ok := r.Result.AsString(); ok {
			return s, nil
		}
		if len(r.Result.Value) == 0 {
			return string(r.Result.Type), nil
		}
		return string(r.Result.Value), nil
	}
	return "", nil
}

// ExceptionError reports an exception thrown by evaluated script.
type ExceptionError struct {
	Details ExceptionDetails
}

func (e *ExceptionError) Error() string {
	return "script: exception: " + e.Details.Text
}
