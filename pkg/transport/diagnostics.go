package transport

import (
	"context"
	"fmt"
	"log/slog"
)

// DiagnosticKind classifies a problem that is not delivered to any caller.
type DiagnosticKind uint8

const (
	// DiagMalformedFrame is an inbound frame that is not a valid message.
	DiagMalformedFrame DiagnosticKind = iota + 1

	// DiagOrphanResponse is a response for an id with no pending command.
	DiagOrphanResponse

	// DiagEventDecode is an event whose params failed to decode.
	DiagEventDecode

	// DiagObserverFailure is an event observer that returned an error or panicked.
	DiagObserverFailure

	// DiagUnhandledEvent is an event with no registered handler.
	DiagUnhandledEvent
)

// String returns the string representation of the kind.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagMalformedFrame:
		return "MalformedFrame"
	case DiagOrphanResponse:
		return "OrphanResponse"
	case DiagEventDecode:
		return "EventDecode"
	case DiagObserverFailure:
		return "ObserverFailure"
	case DiagUnhandledEvent:
		return "UnhandledEvent"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", k)
	}
}

// Diagnostic describes a failure isolated from the receive loop.
type Diagnostic struct {
	Kind DiagnosticKind

	// ID is the command id for orphan responses.
	ID uint64

	// Method is the event method, when known.
	Method string

	Err error

	// Frame is the raw inbound frame.
	Frame []byte
}

// DiagnosticFunc receives diagnostics. It runs on the receive goroutine and
// must not block.
type DiagnosticFunc func(Diagnostic)

func (t *Transport) report(d Diagnostic) {
	level := slog.LevelWarn
	switch d.Kind {
	case DiagUnhandledEvent:
		level = slog.LevelDebug
	case DiagObserverFailure:
		level = slog.LevelError
	}

	attrs := []any{"kind", d.Kind.String()}
	if d.ID != 0 {
		attrs = append(attrs, "id", d.ID)
	}
	if d.Method != "" {
		attrs = append(attrs, "method", d.Method)
	}
	if d.Err != nil {
		attrs = append(attrs, "error", d.Err)
	}
	t.logger.Log(context.Background(), level, "transport diagnostic", attrs...)

	switch d.Kind {
	case DiagMalformedFrame:
		t.metrics.malformedFrame()
	case DiagOrphanResponse:
		t.metrics.orphanResponse()
	}

	if t.diagnostics != nil {
		t.diagnostics(d)
	}
}
