package protocol

import (
	"encoding/json"
	"reflect"
)

// DecodeFunc decodes a raw wire payload into a typed value.
type DecodeFunc[T any] func(data []byte) (T, error)

// Decode decodes data into a new T. Types with an UnmarshalJSON built on
// ObjectReader get full required/optional validation; other types are
// decoded by encoding/json with kind checks on the top-level value. Every
// failure is a *DecodeError.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := DecodeInto(data, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// DecodeInto decodes data into dst, which must be a non-nil pointer.
func DecodeInto(data []byte, dst any) error {
	t := reflect.TypeOf(dst)
	if t == nil || t.Kind() != reflect.Pointer {
		panic("protocol: DecodeInto destination must be a pointer")
	}
	name := t.Elem().String()

	k := kindOf(data)
	if k == kindInvalid || !json.Valid(data) {
		return &DecodeError{Kind: KindInvalidJSON, Type: name}
	}
	if expected, ok := accepts(t.Elem(), k); !ok {
		if expected == "object" {
			return &DecodeError{Kind: KindNotAnObject, Type: name, Expected: expected, Got: k.String()}
		}
		return TypeMismatch(name, "", expected, k.String())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fieldError("", "", err).withParent(typeNameOr(err, name), "")
	}
	return nil
}

// typeNameOr keeps the type name a nested *DecodeError already carries.
func typeNameOr(err error, fallback string) string {
	if de, ok := err.(*DecodeError); ok && de.Type != "" {
		return de.Type
	}
	return fallback
}

// EmptyResult is the result of commands whose success payload is an empty
// object. Fields sent by newer remote ends are kept in AdditionalData.
type EmptyResult struct {
	AdditionalData map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *EmptyResult) UnmarshalJSON(data []byte) error {
	or, err := NewObjectReader("EmptyResult", data)
	if err != nil {
		return err
	}
	r.AdditionalData = or.Extra()
	return nil
}
