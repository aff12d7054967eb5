package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Decode error sentinels. A *DecodeError matches exactly one of these with
// errors.Is.
var (
	ErrMissingField   = errors.New("protocol: missing field")
	ErrTypeMismatch   = errors.New("protocol: type mismatch")
	ErrUnknownVariant = errors.New("protocol: unknown variant")
	ErrNotAnObject    = errors.New("protocol: not an object")
	ErrInvalidJSON    = errors.New("protocol: invalid JSON")

	// ErrReceiveOnly is returned when a value that only exists as a decoded
	// remote-end payload is marshaled back to JSON.
	ErrReceiveOnly = errors.New("protocol: type is receive-only and cannot be encoded")
)

// DecodeErrorKind identifies the category of a decode failure.
type DecodeErrorKind uint8

const (
	KindMissingField DecodeErrorKind = iota + 1
	KindTypeMismatch
	KindUnknownVariant
	KindNotAnObject
	KindInvalidJSON
)

// String returns the string representation of the kind.
func (k DecodeErrorKind) String() string {
	switch k {
	case KindMissingField:
		return "MissingField"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindUnknownVariant:
		return "UnknownVariant"
	case KindNotAnObject:
		return "NotAnObject"
	case KindInvalidJSON:
		return "InvalidJSON"
	default:
		return "Unknown"
	}
}

func (k DecodeErrorKind) sentinel() error {
	switch k {
	case KindMissingField:
		return ErrMissingField
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindUnknownVariant:
		return ErrUnknownVariant
	case KindNotAnObject:
		return ErrNotAnObject
	case KindInvalidJSON:
		return ErrInvalidJSON
	default:
		return nil
	}
}

// DecodeError describes why a wire value could not be decoded.
type DecodeError struct {
	Kind DecodeErrorKind

	// Type is the name of the shape being decoded (e.g. "script.EvaluateResult").
	Type string

	// Field is the dotted path of the offending field, empty for the value itself.
	Field string

	// Expected and Got describe JSON kinds for TypeMismatch and NotAnObject.
	Expected string
	Got      string

	// Tag is the unrecognized discriminator value for UnknownVariant.
	Tag string

	// Known lists the accepted discriminator values, or the candidate
	// fields when no presence-dispatched field was found.
	Known []string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("protocol: decode")
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(e.Type)
	}
	b.WriteString(": ")

	switch e.Kind {
	case KindMissingField:
		if e.Field == "" && len(e.Known) > 0 {
			fmt.Fprintf(&b, "object must contain one of {%s}", strings.Join(e.Known, ", "))
		} else {
			fmt.Fprintf(&b, "missing required field %q", e.Field)
		}
	case KindTypeMismatch:
		if e.Field != "" {
			fmt.Fprintf(&b, "field %q: ", e.Field)
		}
		fmt.Fprintf(&b, "expected %s, got %s", e.Expected, e.Got)
	case KindUnknownVariant:
		if e.Field != "" {
			fmt.Fprintf(&b, "field %q: ", e.Field)
		}
		fmt.Fprintf(&b, "unknown value %q", e.Tag)
		if len(e.Known) > 0 {
			fmt.Fprintf(&b, " (want one of %s)", strings.Join(e.Known, ", "))
		}
	case KindNotAnObject:
		if e.Field != "" {
			fmt.Fprintf(&b, "field %q: ", e.Field)
		}
		fmt.Fprintf(&b, "expected object, got %s", e.Got)
	case KindInvalidJSON:
		b.WriteString("invalid JSON")
	default:
		b.WriteString("unknown error")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// withParent prefixes the field path with parent and fills in the type name
// when the nested error did not set one.
func (e *DecodeError) withParent(typeName, parent string) *DecodeError {
	out := *e
	if parent != "" {
		if out.Field == "" {
			out.Field = parent
		} else {
			out.Field = parent + "." + out.Field
		}
	}
	if typeName != "" {
		out.Type = typeName
	}
	return &out
}

// MissingField returns a MissingField error for field of typeName.
func MissingField(typeName, field string) *DecodeError {
	return &DecodeError{Kind: KindMissingField, Type: typeName, Field: field}
}

// UnknownVariant returns an UnknownVariant error for a discriminator value
// that is not one of known.
func UnknownVariant(typeName, field, tag string, known ...string) *DecodeError {
	return &DecodeError{
		Kind:  KindUnknownVariant,
		Type:  typeName,
		Field: field,
		Tag:   tag,
		Known: known,
	}
}

// TypeMismatch returns a TypeMismatch error for field of typeName.
func TypeMismatch(typeName, field, expected, got string) *DecodeError {
	return &DecodeError{
		Kind:     KindTypeMismatch,
		Type:     typeName,
		Field:    field,
		Expected: expected,
		Got:      got,
	}
}
