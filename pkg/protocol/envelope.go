package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Command is an outgoing command. The value itself is encoded as the
// command's params object.
type Command interface {
	Method() string
}

// ExtendedCommand is a Command carrying parameters its type does not
// declare. They are merged into params without overriding declared fields.
type ExtendedCommand interface {
	Command
	AdditionalParams() map[string]any
}

// CommandEnvelope is the wire shape of an outgoing command.
type CommandEnvelope struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

var errParamsNotObject = errors.New("protocol: command params must encode to a JSON object")

// EncodeCommand encodes cmd with the given id into a wire message.
func EncodeCommand(id uint64, cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, errors.New("protocol: nil command")
	}
	method := cmd.Method()
	if method == "" {
		return nil, errors.New("protocol: command has empty method")
	}

	params, err := encodeParams(cmd)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s params: %w", method, err)
	}
	return marshal(CommandEnvelope{ID: id, Method: method, Params: params})
}

func encodeParams(cmd Command) (json.RawMessage, error) {
	params, err := marshal(cmd)
	if err != nil {
		return nil, err
	}
	switch kindOf(params) {
	case kindNull:
		params = json.RawMessage("{}")
	case kindObject:
	default:
		return nil, errParamsNotObject
	}

	ext, ok := cmd.(ExtendedCommand)
	if !ok {
		return params, nil
	}
	extra := ext.AdditionalParams()
	if len(extra) == 0 {
		return params, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(params, &merged); err != nil {
		return nil, err
	}
	if merged == nil {
		merged = make(map[string]json.RawMessage, len(extra))
	}
	for name, v := range extra {
		if _, declared := merged[name]; declared {
			continue
		}
		raw, err := marshal(v)
		if err != nil {
			return nil, fmt.Errorf("additional param %q: %w", name, err)
		}
		merged[name] = raw
	}
	return marshal(merged)
}

// marshal is json.Marshal without HTML escaping, so script source such as
// "() => a && b" stays readable on the wire.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseCommand decodes an outgoing command message. Remote-end doubles and
// traffic tooling use it to inspect what the client sent.
func ParseCommand(data []byte) (*CommandEnvelope, error) {
	r, err := NewObjectReader("CommandEnvelope", data)
	if err != nil {
		return nil, err
	}
	var env CommandEnvelope
	r.Required("id", &env.ID)
	r.Required("method", &env.Method)
	requiredObject(r, "params", &env.Params)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &env, nil
}

// MessageType is the discriminator of an incoming message.
type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageError   MessageType = "error"
	MessageEvent   MessageType = "event"
)

// Message is a classified incoming message. Which fields are set depends
// on Type: ID and Result for success; ID, ErrorCode, ErrorMessage and
// Stacktrace for error; Method and Params for event.
type Message struct {
	Type MessageType

	ID     uint64
	Result json.RawMessage

	ErrorCode    string
	ErrorMessage string
	Stacktrace   string

	Method string
	Params json.RawMessage

	// AdditionalData holds top-level fields the envelope does not declare.
	AdditionalData map[string]json.RawMessage
}

// IsResponse reports whether m answers a command.
func (m *Message) IsResponse() bool {
	return m.Type == MessageSuccess || m.Type == MessageError
}

// ClassifyMessage decodes an incoming frame into a response or an event.
// A frame that is neither fails with a *DecodeError; it is never dropped
// silently.
func ClassifyMessage(data []byte) (*Message, error) {
	r, err := NewObjectReader("Message", data)
	if err != nil {
		return nil, err
	}
	tag, err := r.Discriminator("type")
	if err != nil {
		return nil, err
	}

	m := &Message{Type: MessageType(tag)}
	switch m.Type {
	case MessageSuccess:
		r.Required("id", &m.ID)
		requiredObject(r, "result", &m.Result)
	case MessageError:
		r.Required("id", &m.ID)
		r.Required("error", &m.ErrorCode)
		r.Required("message", &m.ErrorMessage)
		r.Optional("stacktrace", &m.Stacktrace)
	case MessageEvent:
		r.Required("method", &m.Method)
		requiredObject(r, "params", &m.Params)
	default:
		return nil, UnknownVariant("Message", "type", tag,
			string(MessageSuccess), string(MessageError), string(MessageEvent))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	m.AdditionalData = r.Extra()
	return m, nil
}

// requiredObject reads a required field that must hold a JSON object,
// keeping it raw for a later typed decode.
func requiredObject(r *ObjectReader, name string, dst *json.RawMessage) {
	r.Required(name, dst)
	if r.Err() != nil {
		return
	}
	if k := kindOf(*dst); k != kindObject {
		r.Fail(TypeMismatch(r.TypeName(), name, "object", k.String()))
	}
}
