package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{name: "protocol error", code: "E061", wantMsg: "Remote end rejected command", wantCat: CategoryProtocol},
		{name: "config error", code: "E121", wantMsg: "Config file could not be parsed", wantCat: CategoryConfig},
		{name: "cli error", code: "E141", wantMsg: "Invalid JSON params", wantCat: CategoryCLI},
		{name: "unknown error code", code: "E999", wantMsg: "Unknown error", wantCat: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestRegistry_CodeRanges(t *testing.T) {
	for _, code := range GetAllCodes() {
		tmpl, _ := GetTemplate(code)
		var n int
		if _, err := fmt.Sscanf(code, "E%d", &n); err != nil {
			t.Fatalf("bad code %q", code)
		}
		var want Category
		switch {
		case n >= 60 && n < 80:
			want = CategoryProtocol
		case n >= 120 && n < 140:
			want = CategoryConfig
		case n >= 140 && n < 160:
			want = CategoryCLI
		}
		if tmpl.Category != want {
			t.Errorf("%s category = %q, want %q", code, tmpl.Category, want)
		}
		if !strings.HasSuffix(tmpl.DocURL, code) {
			t.Errorf("%s DocURL = %q", code, tmpl.DocURL)
		}
	}
}

func TestCodedError_Error(t *testing.T) {
	if got := New("E063").Error(); got != "E063: Connection closed" {
		t.Errorf("Error() = %q", got)
	}
	wrapped := New("E063").Wrap(transport.ErrConnectionClosed)
	if got := wrapped.Error(); got != "E063: Connection closed: "+transport.ErrConnectionClosed.Error() {
		t.Errorf("Error() = %q", got)
	}
	if !stderrors.Is(wrapped, transport.ErrConnectionClosed) {
		t.Error("errors.Is through Unwrap failed")
	}
	if got := Newf(CategoryCLI, "bad %s", "flag").Error(); got != "bad flag" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFromTransport(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantCode       string
		wantSuggestion bool
	}{
		{name: "nil", err: nil},
		{
			name:           "unknown command",
			err:            &transport.CommandError{ID: 1, Method: "x.y", Code: transport.CodeUnknownCommand, Message: "x.y"},
			wantCode:       "E061",
			wantSuggestion: true,
		},
		{
			name:     "other remote error",
			err:      fmt.Errorf("wrapped: %w", &transport.CommandError{Code: transport.CodeNoSuchFrame}),
			wantCode: "E061",
		},
		{
			name:           "timeout",
			err:            &transport.TimeoutError{ID: 2, Method: "x.y", Timeout: time.Second},
			wantCode:       "E062",
			wantSuggestion: true,
		},
		{name: "closed", err: transport.ErrConnectionClosed, wantCode: "E063"},
		{name: "not connected", err: transport.ErrNotConnected, wantCode: "E063"},
		{name: "decode", err: fmt.Errorf("decode: %w", protocol.MissingField("T", "f")), wantCode: "E064"},
		{name: "already coded", err: New("E141"), wantCode: "E141"},
		{name: "fallback", err: stderrors.New("dial tcp: refused"), wantCode: "E060"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromTransport(tt.err, "E060")
			if tt.err == nil {
				if got != nil {
					t.Errorf("FromTransport(nil) = %v", got)
				}
				return
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tt.wantCode)
			}
			if (got.Suggestion != "") != tt.wantSuggestion {
				t.Errorf("Suggestion = %q", got.Suggestion)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	base := stderrors.New("boom")
	got := FromError(base, "E140")
	if got.Code != "E140" || !stderrors.Is(got, base) {
		t.Errorf("FromError() = %v", got)
	}
	coded := New("E122")
	if FromError(fmt.Errorf("ctx: %w", coded), "E140") != coded {
		t.Error("FromError should return the existing CodedError")
	}
	if FromError(nil, "E140") != nil {
		t.Error("FromError(nil) should be nil")
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	path := filepath.Join(t.TempDir(), "bidi.toml")
	content := "url = \"ws://localhost\"\n[transport]\ntimeout = 30\nretries = 1\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	err := New("E121").
		WithLocation(path, 3, 11).
		WithSuggestion(`Durations need a unit, for example "30s"`).
		Wrap(stderrors.New("incompatible types"))
	if len(err.Context) != 3 {
		t.Fatalf("Context = %q, want 3 lines", err.Context)
	}

	out := err.Format()
	for _, want := range []string{
		"ERROR E121: Config file could not be parsed",
		path + ":3:11",
		"→    3 │ timeout = 30",
		"   2 │ [transport]",
		"Cause: incompatible types",
		`Hint: Durations need a unit, for example "30s"`,
		"Learn more: " + docBase + "E121",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q\n%s", want, out)
		}
	}

	first := New("E121").WithLocation(path, 1, 0)
	if len(first.Context) != 2 || !strings.Contains(first.Format(), "→    1 │ url") {
		t.Errorf("first-line context = %q\n%s", first.Context, first.Format())
	}
}

func TestFormatCompactAndJSON(t *testing.T) {
	err := New("E122").WithSuggestion("use a positive value")
	err.Location = &Location{File: "bidi.json", Line: 2}
	if got := err.FormatCompact(); got != "bidi.json:2: E122: Invalid config value" {
		t.Errorf("FormatCompact() = %q", got)
	}

	var decoded map[string]any
	if jerr := json.Unmarshal([]byte(err.Wrap(stderrors.New("negative")).FormatJSON()), &decoded); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if decoded["code"] != "E122" || decoded["cause"] != "negative" || decoded["category"] != "config" {
		t.Errorf("FormatJSON() = %v", decoded)
	}
}

func TestFprintError(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var b strings.Builder
	fprintError(&b, fmt.Errorf("send: %w", New("E141")))
	if !strings.Contains(b.String(), "ERROR E141: Invalid JSON params") {
		t.Errorf("coded output = %q", b.String())
	}

	b.Reset()
	fprintError(&b, stderrors.New("plain failure"))
	if b.String() != "\nERROR: plain failure\n\n" {
		t.Errorf("plain output = %q", b.String())
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	want := []string{"one two", "three", "four"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("wrapText() = %q, want %q", got, want)
	}
	if wrapText("   ", 10) != nil {
		t.Error("wrapText of blank text should be nil")
	}
}
