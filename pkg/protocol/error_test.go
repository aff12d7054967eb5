package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestDecodeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DecodeError
		want string
	}{
		{
			name: "missing field",
			err:  MissingField("session.StatusResult", "ready"),
			want: `protocol: decode session.StatusResult: missing required field "ready"`,
		},
		{
			name: "one of",
			err:  &DecodeError{Kind: KindMissingField, Type: "script.Target", Known: []string{"realm", "context"}},
			want: "protocol: decode script.Target: object must contain one of {realm, context}",
		},
		{
			name: "type mismatch",
			err:  TypeMismatch("T", "id", "number", "string"),
			want: `protocol: decode T: field "id": expected number, got string`,
		},
		{
			name: "unknown variant",
			err:  UnknownVariant("log.Entry", "type", "worker", "console", "javascript"),
			want: `protocol: decode log.Entry: field "type": unknown value "worker" (want one of console, javascript)`,
		},
		{
			name: "not an object",
			err:  &DecodeError{Kind: KindNotAnObject, Got: "array"},
			want: "protocol: decode: expected object, got array",
		},
		{
			name: "invalid json with cause",
			err:  &DecodeError{Kind: KindInvalidJSON, Type: "T", Err: errors.New("unexpected end")},
			want: "protocol: decode T: invalid JSON: unexpected end",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeError_Is(t *testing.T) {
	sentinels := []error{ErrMissingField, ErrTypeMismatch, ErrUnknownVariant, ErrNotAnObject, ErrInvalidJSON}
	kinds := []DecodeErrorKind{KindMissingField, KindTypeMismatch, KindUnknownVariant, KindNotAnObject, KindInvalidJSON}

	for i, kind := range kinds {
		err := fmt.Errorf("wrapped: %w", &DecodeError{Kind: kind})
		for j, sentinel := range sentinels {
			if got := errors.Is(err, sentinel); got != (i == j) {
				t.Errorf("%s: errors.Is(%v) = %v", kind, sentinel, got)
			}
		}
		var de *DecodeError
		if !errors.As(err, &de) || de.Kind != kind {
			t.Errorf("%s: errors.As failed", kind)
		}
	}
}

func TestDecodeError_WithParent(t *testing.T) {
	inner := MissingField("", "text")
	got := inner.withParent("script.EvaluateResult", "exceptionDetails").withParent("", "result")
	if got.Field != "result.exceptionDetails.text" || got.Type != "script.EvaluateResult" {
		t.Errorf("withParent() = %+v", got)
	}
	if inner.Field != "text" {
		t.Error("withParent modified the original error")
	}
}
