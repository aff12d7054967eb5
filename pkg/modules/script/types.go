package script

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// RemoteValueType is the type tag of a RemoteValue.
type RemoteValueType string

const (
	TypeUndefined      RemoteValueType = "undefined"
	TypeNull           RemoteValueType = "null"
	TypeString         RemoteValueType = "string"
	TypeNumber         RemoteValueType = "number"
	TypeBoolean        RemoteValueType = "boolean"
	TypeBigInt         RemoteValueType = "bigint"
	TypeSymbol         RemoteValueType = "symbol"
	TypeArray          RemoteValueType = "array"
	TypeObject         RemoteValueType = "object"
	TypeFunction       RemoteValueType = "function"
	TypeRegExp         RemoteValueType = "regexp"
	TypeDate           RemoteValueType = "date"
	TypeMap            RemoteValueType = "map"
	TypeSet            RemoteValueType = "set"
	TypeWeakMap        RemoteValueType = "weakmap"
	TypeWeakSet        RemoteValueType = "weakset"
	TypeGenerator      RemoteValueType = "generator"
	TypeError          RemoteValueType = "error"
	TypeProxy          RemoteValueType = "proxy"
	TypePromise        RemoteValueType = "promise"
	TypeTypedArray     RemoteValueType = "typedarray"
	TypeArrayBuffer    RemoteValueType = "arraybuffer"
	TypeNodeList       RemoteValueType = "nodelist"
	TypeHTMLCollection RemoteValueType = "htmlcollection"
	TypeNode           RemoteValueType = "node"
	TypeWindow         RemoteValueType = "window"
)

var remoteValueTypes = []RemoteValueType{
	TypeUndefined, TypeNull, TypeString, TypeNumber, TypeBoolean, TypeBigInt,
	TypeSymbol, TypeArray, TypeObject, TypeFunction, TypeRegExp, TypeDate,
	TypeMap, TypeSet, TypeWeakMap, TypeWeakSet, TypeGenerator, TypeError,
	TypeProxy, TypePromise, TypeTypedArray, TypeArrayBuffer, TypeNodeList,
	TypeHTMLCollection, TypeNode, TypeWindow,
}

// RemoteValue is a value serialized by the remote end. Value holds the raw
// type-specific payload; use the accessors to read primitives.
type RemoteValue struct {
	Type       RemoteValueType
	Handle     string
	InternalID string
	SharedID   string
	Value      json.RawMessage

	AdditionalData map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *RemoteValue) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.RemoteValue", data)
	if err != nil {
		return err
	}
	protocol.RequiredEnum(r, "type", &v.Type, remoteValueTypes...)
	r.Optional("handle", &v.Handle)
	r.Optional("internalId", &v.InternalID)
	r.Optional("sharedId", &v.SharedID)
	if raw, ok := r.Raw("value"); ok {
		v.Value = raw
	}
	v.AdditionalData = r.Extra()
	return r.Err()
}

// MarshalJSON always fails: remote values are receive-only. Send a
// LocalValue or a RemoteReference instead.
func (RemoteValue) MarshalJSON() ([]byte, error) {
	return nil, protocol.ErrReceiveOnly
}

// AsString returns the value of a string RemoteValue.
func (v RemoteValue) AsString() (string, bool) {
	if v.Type != TypeString {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return "", false
	}
	return s, true
}

// AsBool returns the value of a boolean RemoteValue.
func (v RemoteValue) AsBool() (bool, bool) {
	if v.Type != TypeBoolean {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v.Value, &b); err != nil {
		return false, false
	}
	return b, true
}

// AsNumber returns the value of a number RemoteValue, including the special
// values NaN, -0, Infinity and -Infinity.
func (v RemoteValue) AsNumber() (float64, bool) {
	if v.Type != TypeNumber {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v.Value, &f); err == nil {
		return f, true
	}
	var special string
	if err := json.Unmarshal(v.Value, &special); err != nil {
		return 0, false
	}
	switch special {
	case "NaN":
		return math.NaN(), true
	case "-0":
		return math.Copysign(0, -1), true
	case "Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	return 0, false
}

// IsNullish reports whether the value is null or undefined.
func (v RemoteValue) IsNullish() bool {
	return v.Type == TypeNull || v.Type == TypeUndefined
}

// Items decodes the elements of an array, set, nodelist or htmlcollection.
func (v RemoteValue) Items() ([]RemoteValue, error) {
	switch v.Type {
	case TypeArray, TypeSet, TypeNodeList, TypeHTMLCollection:
	default:
		return nil, fmt.Errorf("script: %s value has no items", v.Type)
	}
	if len(v.Value) == 0 {
		return nil, nil
	}
	return protocol.Decode[[]RemoteValue](v.Value)
}

// LocalValue is a value sent to the remote end as a function argument.
type LocalValue struct {
	Type  RemoteValueType `json:"type"`
	Value any             `json:"value,omitempty"`
}

// StringValue returns a string LocalValue.
func StringValue(s string) LocalValue { return LocalValue{Type: TypeString, Value: s} }

// NumberValue returns a number LocalValue.
func NumberValue(f float64) LocalValue { return LocalValue{Type: TypeNumber, Value: f} }

// BoolValue returns a boolean LocalValue.
func BoolValue(b bool) LocalValue { return LocalValue{Type: TypeBoolean, Value: b} }

// Undefined returns the undefined LocalValue.
func Undefined() LocalValue { return LocalValue{Type: TypeUndefined} }

// RemoteReference refers to a value held by the remote end.
type RemoteReference struct {
	Handle   string `json:"handle,omitempty"`
	SharedID string `json:"sharedId,omitempty"`
}

// Source identifies where an event originated.
type Source struct {
	Realm   string
	Context string
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Source) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.Source", data)
	if err != nil {
		return err
	}
	r.Required("realm", &s.Realm)
	r.Optional("context", &s.Context)
	return r.Err()
}

// StackFrame is one frame of a StackTrace.
type StackFrame struct {
	ColumnNumber int    `json:"columnNumber"`
	FunctionName string `json:"functionName"`
	LineNumber   int    `json:"lineNumber"`
	URL          string `json:"url"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *StackFrame) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.StackFrame", data)
	if err != nil {
		return err
	}
	r.Required("columnNumber", &f.ColumnNumber)
	r.Required("functionName", &f.FunctionName)
	r.Required("lineNumber", &f.LineNumber)
	r.Required("url", &f.URL)
	f.AdditionalData = r.Extra()
	return r.Err()
}

// StackTrace is a script stack trace.
type StackTrace struct {
	CallFrames []StackFrame `json:"callFrames"`

	AdditionalData map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StackTrace) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.StackTrace", data)
	if err != nil {
		return err
	}
	r.Required("callFrames", &s.CallFrames)
	s.AdditionalData = r.Extra()
	return r.Err()
}

// ExceptionDetails describes an exception thrown by evaluated script.
type ExceptionDetails struct {
	ColumnNumber int
	LineNumber   int
	Exception    RemoteValue
	StackTrace   StackTrace
	Text         string
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ExceptionDetails) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.ExceptionDetails", data)
	if err != nil {
		return err
	}
	r.Required("columnNumber", &e.ColumnNumber)
	r.Required("lineNumber", &e.LineNumber)
	r.Required("exception", &e.Exception)
	r.Required("stackTrace", &e.StackTrace)
	r.Required("text", &e.Text)
	return r.Err()
}

// RealmType is the type of a realm.
type RealmType string

const (
	RealmWindow          RealmType = "window"
	RealmDedicatedWorker RealmType = "dedicated-worker"
	RealmSharedWorker    RealmType = "shared-worker"
	RealmServiceWorker   RealmType = "service-worker"
	RealmWorker          RealmType = "worker"
	RealmPaintWorklet    RealmType = "paint-worklet"
	RealmAudioWorklet    RealmType = "audio-worklet"
	RealmWorklet         RealmType = "worklet"
)

var realmTypes = []RealmType{
	RealmWindow, RealmDedicatedWorker, RealmSharedWorker, RealmServiceWorker,
	RealmWorker, RealmPaintWorklet, RealmAudioWorklet, RealmWorklet,
}

// RealmInfo describes a realm. Context and Sandbox are set for window
// realms, Owners for dedicated workers.
type RealmInfo struct {
	Realm   string
	Origin  string
	Type    RealmType
	Context string
	Sandbox string
	Owners  []string

	AdditionalData map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (ri *RealmInfo) UnmarshalJSON(data []byte) error {
	r, err := protocol.NewObjectReader("script.RealmInfo", data)
	if err != nil {
		return err
	}
	r.Required("realm", &ri.Realm)
	r.Required("origin", &ri.Origin)
	protocol.RequiredEnum(r, "type", &ri.Type, realmTypes...)
	switch ri.Type {
	case RealmWindow:
		r.Required("context", &ri.Context)
		r.Optional("sandbox", &ri.Sandbox)
	case RealmDedicatedWorker:
		r.Required("owners", &ri.Owners)
	}
	ri.AdditionalData = r.Extra()
	return r.Err()
}

// MarshalJSON always fails: realm descriptions are receive-only.
func (RealmInfo) MarshalJSON() ([]byte, error) {
	return nil, protocol.ErrReceiveOnly
}

// Target selects where script runs: a realm or a browsing context.
type Target interface {
	isTarget()
}

// RealmTarget runs script in a realm.
type RealmTarget struct {
	Realm string `json:"realm"`
}

// ContextTarget runs script in a browsing context, optionally in a sandbox.
type ContextTarget struct {
	Context string `json:"context"`
	Sandbox string `json:"sandbox,omitempty"`
}

func (RealmTarget) isTarget()   {}
func (ContextTarget) isTarget() {}

// DecodeTarget decodes a Target by field presence. "realm" takes
// precedence over "context".
func DecodeTarget(data []byte) (Target, error) {
	r, err := protocol.NewObjectReader("script.Target", data)
	if err != nil {
		return nil, err
	}
	field, err := r.OneOf("realm", "context")
	if err != nil {
		return nil, err
	}
	switch field {
	case "realm":
		var t RealmTarget
		r.Required("realm", &t.Realm)
		return t, r.Err()
	default:
		var t ContextTarget
		r.Required("context", &t.Context)
		r.Optional("sandbox", &t.Sandbox)
		return t, r.Err()
	}
}
