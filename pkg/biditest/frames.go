// Package biditest provides remote-end doubles for testing code built on the
// transport: an in-memory Conn, a websocket Server, and builders for inbound
// frames.
package biditest

import (
	"encoding/json"
	"fmt"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

type successFrame struct {
	Type   string `json:"type"`
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
}

type errorFrame struct {
	Type       string `json:"type"`
	ID         uint64 `json:"id"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

type eventFrame struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Success builds a success response. A nil result becomes {}.
func Success(id uint64, result any) []byte {
	if result == nil {
		result = struct{}{}
	}
	return mustMarshal(successFrame{Type: "success", ID: id, Result: result})
}

// Error builds an error response.
func Error(id uint64, code, message string) []byte {
	return mustMarshal(errorFrame{Type: "error", ID: id, Error: code, Message: message})
}

// Event builds an event message. A nil params becomes {}.
func Event(method string, params any) []byte {
	if params == nil {
		params = struct{}{}
	}
	return mustMarshal(eventFrame{Type: "event", Method: method, Params: params})
}

// Raw returns s as a frame, for malformed input.
func Raw(s string) []byte {
	return []byte(s)
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("biditest: marshal frame: %v", err))
	}
	return data
}

// Results returns a Responder that answers each command with the result
// mapped to its method, or an "unknown command" error for other methods.
// A result of type []byte is sent as a raw JSON object.
func Results(results map[string]any) Responder {
	return func(cmd *protocol.CommandEnvelope) [][]byte {
		result, ok := results[cmd.Method]
		if !ok {
			return [][]byte{Error(cmd.ID, "unknown command", cmd.Method)}
		}
		if raw, ok := result.([]byte); ok {
			result = json.RawMessage(raw)
		}
		return [][]byte{Success(cmd.ID, result)}
	}
}
