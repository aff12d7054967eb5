package transport

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for transport operations.
var (
	// ErrRemote matches every *CommandError.
	ErrRemote = errors.New("transport: remote end returned an error")

	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("transport: command timed out")

	// ErrConnectionClosed is returned for commands still pending when the
	// connection ends and for commands sent after it ended.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrOrphanResponse is reported through diagnostics for a response whose
	// id matches no pending command. Callers never see it.
	ErrOrphanResponse = errors.New("transport: orphan response")

	// ErrAlreadyConnected is returned by Connect on a transport that is
	// connecting, connected, or already used.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrNotConnected is returned when sending before Connect completes.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrDuplicateHandler is returned when an event method already has a handler.
	ErrDuplicateHandler = errors.New("transport: duplicate event handler")
)

// ErrorCode is an error code sent by the remote end in an error response.
type ErrorCode string

// Error codes defined by WebDriver BiDi.
const (
	CodeInvalidArgument           ErrorCode = "invalid argument"
	CodeInvalidSelector           ErrorCode = "invalid selector"
	CodeInvalidSessionID          ErrorCode = "invalid session id"
	CodeMoveTargetOutOfBounds     ErrorCode = "move target out of bounds"
	CodeNoSuchAlert               ErrorCode = "no such alert"
	CodeNoSuchElement             ErrorCode = "no such element"
	CodeNoSuchFrame               ErrorCode = "no such frame"
	CodeNoSuchHandle              ErrorCode = "no such handle"
	CodeNoSuchHistoryEntry        ErrorCode = "no such history entry"
	CodeNoSuchIntercept           ErrorCode = "no such intercept"
	CodeNoSuchNode                ErrorCode = "no such node"
	CodeNoSuchRequest             ErrorCode = "no such request"
	CodeNoSuchScript              ErrorCode = "no such script"
	CodeNoSuchUserContext         ErrorCode = "no such user context"
	CodeSessionNotCreated         ErrorCode = "session not created"
	CodeUnableToCaptureScreen     ErrorCode = "unable to capture screen"
	CodeUnableToCloseBrowser      ErrorCode = "unable to close browser"
	CodeUnableToSetCookie         ErrorCode = "unable to set cookie"
	CodeUnableToSetFileInput      ErrorCode = "unable to set file input"
	CodeUnderspecifiedStoragePart ErrorCode = "underspecified storage partition"
	CodeUnknownCommand            ErrorCode = "unknown command"
	CodeUnknownError              ErrorCode = "unknown error"
	CodeUnsupportedOperation      ErrorCode = "unsupported operation"
)

// CommandError is a command rejected by the remote end.
type CommandError struct {
	ID         uint64
	Method     string
	Code       ErrorCode
	Message    string
	Stacktrace string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("transport: %s (id %d) failed: %s: %s", e.Method, e.ID, e.Code, e.Message)
}

// Is reports whether target is ErrRemote.
func (e *CommandError) Is(target error) bool {
	return target == ErrRemote
}

// TimeoutError is a command that received no response within its deadline.
type TimeoutError struct {
	ID      uint64
	Method  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: %s (id %d) timed out after %s", e.Method, e.ID, e.Timeout)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
