package protocol

import (
	"bytes"
	"encoding/json"
)

// Nullable is a parameter with three wire states: absent, null, or a value.
// The zero Nullable is absent and is dropped by the `omitzero` tag option;
// Null() encodes as JSON null, which the remote end reads as "reset".
type Nullable[T any] struct {
	value T
	set   bool
	null  bool
}

// Value returns a Nullable holding v.
func Value[T any](v T) Nullable[T] {
	return Nullable[T]{value: v, set: true}
}

// Null returns a Nullable that encodes as JSON null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{set: true, null: true}
}

// IsZero reports whether n is absent. Used by encoding/json for omitzero.
func (n Nullable[T]) IsZero() bool {
	return !n.set
}

// IsNull reports whether n is an explicit null.
func (n Nullable[T]) IsNull() bool {
	return n.set && n.null
}

// Get returns the value and whether one is present.
func (n Nullable[T]) Get() (T, bool) {
	return n.value, n.set && !n.null
}

// MarshalJSON implements json.Marshaler.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.set || n.null {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = Null[T]()
		return nil
	}
	var v T
	if err := DecodeInto(data, &v); err != nil {
		return err
	}
	*n = Value(v)
	return nil
}
