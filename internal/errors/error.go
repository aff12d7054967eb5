package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// Category represents the type of error.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Location is a position in a file, usually a config file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	switch {
	case l.Line <= 0:
		return l.File
	case l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CodedError is an error with a registered code, a hint and a doc link.
type CodedError struct {
	// Code is a unique error identifier (e.g., "E061").
	Code string

	Category Category
	Message  string
	Detail   string

	// Location and Context point at the offending line of a file.
	Location *Location
	Context  []string

	Suggestion string
	DocURL     string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Wrapped
}

// WithLocation points the error at a file position and reads the
// surrounding lines.
func (e *CodedError) WithLocation(file string, line, column int) *CodedError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, contextRadius)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CodedError) WithSuggestion(s string) *CodedError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *CodedError) WithDetail(d string) *CodedError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CodedError) Wrap(err error) *CodedError {
	e.Wrapped = err
	return e
}

// contextRadius is how many lines WithLocation shows on each side.
const contextRadius = 1

// readContextLines reads the lines within radius of targetLine.
func readContextLines(filename string, targetLine, radius int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - radius
	endLine := targetLine + radius

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates a CodedError from a registered error code.
func New(code string) *CodedError {
	template, ok := registry[code]
	if !ok {
		return &CodedError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CodedError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a CodedError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *CodedError {
	return &CodedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a CodedError with code unless it already is one.
func FromError(err error, code string) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}

// FromTransport maps a command failure to a protocol code. Errors it does
// not recognize are wrapped with fallback.
func FromTransport(err error, fallback string) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}

	var cmdErr *transport.CommandError
	switch {
	case stderrors.As(err, &cmdErr):
		e := New("E061").Wrap(err)
		switch cmdErr.Code {
		case transport.CodeUnknownCommand:
			e.Suggestion = "Check the method name; the remote end does not implement " + cmdErr.Method
		case transport.CodeInvalidArgument:
			e.Suggestion = "Check the params against the command schema"
		}
		return e
	case stderrors.Is(err, transport.ErrTimeout):
		return New("E062").Wrap(err).WithSuggestion("Raise --timeout or check that the page is responsive")
	case stderrors.Is(err, transport.ErrConnectionClosed), stderrors.Is(err, transport.ErrNotConnected):
		return New("E063").Wrap(err)
	}

	var de *protocol.DecodeError
	if stderrors.As(err, &de) {
		return New("E064").Wrap(err)
	}
	return New(fallback).Wrap(err)
}
