package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

// jsonKind is the kind of a raw JSON value, determined from its first byte.
type jsonKind uint8

const (
	kindInvalid jsonKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

// String returns the JSON name of the kind.
func (k jsonKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	case kindObject:
		return "object"
	default:
		return "invalid"
	}
}

func kindOf(raw []byte) jsonKind {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	if len(raw) == 0 {
		return kindInvalid
	}
	switch c := raw[0]; {
	case c == '{':
		return kindObject
	case c == '[':
		return kindArray
	case c == '"':
		return kindString
	case c == 't' || c == 'f':
		return kindBool
	case c == 'n':
		return kindNull
	case c == '-' || (c >= '0' && c <= '9'):
		return kindNumber
	default:
		return kindInvalid
	}
}

var (
	unmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	rawMessageType  = reflect.TypeFor[json.RawMessage]()
)

// accepts reports whether a JSON value of kind k can populate a Go value of
// type t. The returned string names the expected JSON kind on mismatch.
func accepts(t reflect.Type, k jsonKind) (string, bool) {
	if t == rawMessageType {
		return "any", true
	}
	if t.Kind() == reflect.Pointer {
		if k == kindNull {
			return "", true
		}
		return accepts(t.Elem(), k)
	}
	// Types with their own decoder validate their input themselves.
	if t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType) {
		return "any", true
	}

	switch t.Kind() {
	case reflect.Interface:
		return "any", true
	case reflect.String:
		return "string", k == kindString
	case reflect.Bool:
		return "boolean", k == kindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number", k == kindNumber
	case reflect.Struct:
		return "object", k == kindObject
	case reflect.Map:
		return "object", k == kindObject || k == kindNull
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "string", k == kindString || k == kindNull
		}
		return "array", k == kindArray || k == kindNull
	case reflect.Array:
		return "array", k == kindArray
	default:
		return t.Kind().String(), false
	}
}

// nullable reports whether a JSON null is a meaningful value for t.
func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType)
}

// ObjectReader decodes the fields of one JSON object with required/optional
// validation. The first failure is kept and returned by Err; later calls
// become no-ops so decoders can be written as straight-line code.
type ObjectReader struct {
	typeName string
	fields   map[string]json.RawMessage
	used     map[string]struct{}
	err      error
}

// NewObjectReader parses data as a JSON object. typeName is used in error
// messages. It fails with ErrNotAnObject when data is valid JSON of another
// kind and with ErrInvalidJSON when data is not JSON at all.
func NewObjectReader(typeName string, data []byte) (*ObjectReader, error) {
	k := kindOf(data)
	if k != kindObject {
		if k == kindInvalid || !json.Valid(data) {
			return nil, &DecodeError{Kind: KindInvalidJSON, Type: typeName}
		}
		return nil, &DecodeError{Kind: KindNotAnObject, Type: typeName, Expected: "object", Got: k.String()}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Kind: KindInvalidJSON, Type: typeName, Err: err}
	}
	return &ObjectReader{
		typeName: typeName,
		fields:   fields,
		used:     make(map[string]struct{}, len(fields)),
	}, nil
}

// TypeName returns the shape name used in error messages.
func (r *ObjectReader) TypeName() string {
	return r.typeName
}

// Has reports whether the object contains the field, even if its value is null.
func (r *ObjectReader) Has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

// Raw returns the raw value of a field and marks it consumed.
func (r *ObjectReader) Raw(name string) (json.RawMessage, bool) {
	raw, ok := r.fields[name]
	if ok {
		r.used[name] = struct{}{}
	}
	return raw, ok
}

// Required decodes a field that must be present into dst, which must be a
// non-nil pointer.
func (r *ObjectReader) Required(name string, dst any) {
	if r.err != nil {
		return
	}
	raw, ok := r.Raw(name)
	if !ok {
		r.err = MissingField(r.typeName, name)
		return
	}
	r.decodeField(name, raw, dst)
}

// Optional decodes a field into dst if present. A null value counts as
// absent unless dst can represent null. It reports whether dst was written.
func (r *ObjectReader) Optional(name string, dst any) bool {
	if r.err != nil {
		return false
	}
	raw, ok := r.Raw(name)
	if !ok {
		return false
	}
	if kindOf(raw) == kindNull && !nullable(reflect.TypeOf(dst).Elem()) {
		return false
	}
	r.decodeField(name, raw, dst)
	return r.err == nil
}

// Discriminator reads a string tag field. The field must be present and be
// a JSON string; the caller matches the value against its variant set.
func (r *ObjectReader) Discriminator(name string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	raw, ok := r.Raw(name)
	if !ok {
		r.err = MissingField(r.typeName, name)
		return "", r.err
	}
	if k := kindOf(raw); k != kindString {
		r.err = TypeMismatch(r.typeName, name, "string", k.String())
		return "", r.err
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		r.err = &DecodeError{Kind: KindInvalidJSON, Type: r.typeName, Field: name, Err: err}
		return "", r.err
	}
	return tag, nil
}

// OneOf returns the first of names present in the object. Names are checked
// in the given order, which is the variant precedence. If none is present it
// fails with an "object must contain one of" MissingField error.
func (r *ObjectReader) OneOf(names ...string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	for _, name := range names {
		if r.Has(name) {
			return name, nil
		}
	}
	r.err = &DecodeError{Kind: KindMissingField, Type: r.typeName, Known: names}
	return "", r.err
}

// Fail records err unless an earlier error is already recorded.
func (r *ObjectReader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Extra returns the fields that were never consumed, or nil if every field
// was read.
func (r *ObjectReader) Extra() map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	for name, raw := range r.fields {
		if _, ok := r.used[name]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[name] = raw
	}
	return extra
}

// Err returns the first decode failure.
func (r *ObjectReader) Err() error {
	return r.err
}

func (r *ObjectReader) decodeField(name string, raw json.RawMessage, dst any) {
	t := reflect.TypeOf(dst)
	if t == nil || t.Kind() != reflect.Pointer {
		panic("protocol: ObjectReader destination must be a pointer")
	}
	k := kindOf(raw)
	if expected, ok := accepts(t.Elem(), k); !ok {
		r.err = TypeMismatch(r.typeName, name, expected, k.String())
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.err = fieldError(r.typeName, name, err)
	}
}

// fieldError converts an error raised while decoding field into a
// *DecodeError rooted at typeName.
func fieldError(typeName, field string, err error) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.withParent(typeName, field)
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		path := field
		if ute.Field != "" {
			if path == "" {
				path = ute.Field
			} else {
				path = path + "." + ute.Field
			}
		}
		expected, _ := accepts(ute.Type, kindInvalid)
		return &DecodeError{
			Kind:     KindTypeMismatch,
			Type:     typeName,
			Field:    path,
			Expected: expected,
			Got:      ute.Value,
		}
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &DecodeError{Kind: KindInvalidJSON, Type: typeName, Field: field, Err: err}
	}
	return &DecodeError{Kind: KindTypeMismatch, Type: typeName, Field: field, Err: err}
}

// RequiredEnum decodes a required string field and checks it against the
// closed set known. Unrecognized values fail with ErrUnknownVariant.
func RequiredEnum[E ~string](r *ObjectReader, name string, dst *E, known ...E) {
	var v E
	r.Required(name, &v)
	if r.err != nil {
		return
	}
	if err := checkEnum(r.typeName, name, v, known); err != nil {
		r.err = err
		return
	}
	*dst = v
}

// OptionalEnum is RequiredEnum for an optional field. It reports whether dst
// was written.
func OptionalEnum[E ~string](r *ObjectReader, name string, dst *E, known ...E) bool {
	var v E
	if !r.Optional(name, &v) {
		return false
	}
	if err := checkEnum(r.typeName, name, v, known); err != nil {
		r.err = err
		return false
	}
	*dst = v
	return true
}

func checkEnum[E ~string](typeName, field string, v E, known []E) error {
	for _, k := range known {
		if v == k {
			return nil
		}
	}
	names := make([]string, len(known))
	for i, k := range known {
		names[i] = string(k)
	}
	return UnknownVariant(typeName, field, string(v), names...)
}
