package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

type statusCommand struct{}

func (statusCommand) Method() string { return "session.status" }

type navigateCommand struct {
	Context string  `json:"context"`
	URL     string  `json:"url"`
	Wait    *string `json:"wait,omitempty"`

	Extra map[string]any `json:"-"`
}

func (navigateCommand) Method() string { return "browsingContext.navigate" }

func (c navigateCommand) AdditionalParams() map[string]any { return c.Extra }

type viewportCommand struct {
	Context  string             `json:"context"`
	Viewport Nullable[viewport] `json:"viewport,omitzero"`
}

type viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (viewportCommand) Method() string { return "browsingContext.setViewport" }

type listCommand []string

func (listCommand) Method() string { return "x.list" }

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		cmd  Command
		want string
	}{
		{
			name: "empty params",
			id:   1,
			cmd:  statusCommand{},
			want: `{"id":1,"method":"session.status","params":{}}`,
		},
		{
			name: "optional field omitted",
			id:   2,
			cmd:  navigateCommand{Context: "ctx-1", URL: "https://example.com"},
			want: `{"id":2,"method":"browsingContext.navigate","params":{"context":"ctx-1","url":"https://example.com"}}`,
		},
		{
			name: "additional params merged without overriding",
			id:   3,
			cmd: navigateCommand{
				Context: "ctx-1",
				URL:     "https://example.com",
				Extra:   map[string]any{"goog:extra": true, "url": "ignored"},
			},
			want: `{"id":3,"method":"browsingContext.navigate","params":{"context":"ctx-1","goog:extra":true,"url":"https://example.com"}}`,
		},
		{
			name: "absent nullable omitted",
			id:   4,
			cmd:  viewportCommand{Context: "c"},
			want: `{"id":4,"method":"browsingContext.setViewport","params":{"context":"c"}}`,
		},
		{
			name: "explicit null kept",
			id:   5,
			cmd:  viewportCommand{Context: "c", Viewport: Null[viewport]()},
			want: `{"id":5,"method":"browsingContext.setViewport","params":{"context":"c","viewport":null}}`,
		},
		{
			name: "nullable value",
			id:   6,
			cmd:  viewportCommand{Context: "c", Viewport: Value(viewport{Width: 800, Height: 600})},
			want: `{"id":6,"method":"browsingContext.setViewport","params":{"context":"c","viewport":{"width":800,"height":600}}}`,
		},
		{
			name: "script source not html escaped",
			id:   7,
			cmd: navigateCommand{
				Context: "<c>",
				URL:     "javascript:(a) => a && b",
				Extra:   map[string]any{"note": "<&>"},
			},
			want: `{"id":7,"method":"browsingContext.navigate","params":{"context":"<c>","note":"<&>","url":"javascript:(a) => a && b"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.id, tt.cmd)
			if err != nil {
				t.Fatalf("EncodeCommand() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeCommand() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeCommand_Errors(t *testing.T) {
	if _, err := EncodeCommand(1, nil); err == nil {
		t.Error("expected error for nil command")
	}
	if _, err := EncodeCommand(1, listCommand{"a"}); !errors.Is(err, errParamsNotObject) {
		t.Errorf("expected errParamsNotObject, got %v", err)
	}
}

func TestParseCommand(t *testing.T) {
	data, err := EncodeCommand(7, navigateCommand{Context: "c", URL: "u"})
	if err != nil {
		t.Fatal(err)
	}
	env, err := ParseCommand(data)
	if err != nil {
		t.Fatalf("ParseCommand() error = %v", err)
	}
	if env.ID != 7 || env.Method != "browsingContext.navigate" {
		t.Errorf("ParseCommand() = %+v", env)
	}
	var params map[string]string
	if err := json.Unmarshal(env.Params, &params); err != nil {
		t.Fatal(err)
	}
	if params["url"] != "u" {
		t.Errorf("params = %v", params)
	}

	if _, err := ParseCommand([]byte(`{"id":1,"method":"x.y","params":[]}`)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for array params, got %v", err)
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType MessageType
		wantErr  error
		check    func(t *testing.T, m *Message)
	}{
		{
			name:     "success",
			input:    `{"type":"success","id":1,"result":{"ready":true,"message":"ok"}}`,
			wantType: MessageSuccess,
			check: func(t *testing.T, m *Message) {
				if m.ID != 1 || string(m.Result) != `{"ready":true,"message":"ok"}` {
					t.Errorf("unexpected message %+v", m)
				}
			},
		},
		{
			name:     "error",
			input:    `{"type":"error","id":2,"error":"unknown command","message":"nope","stacktrace":"at x"}`,
			wantType: MessageError,
			check: func(t *testing.T, m *Message) {
				if m.ID != 2 || m.ErrorCode != "unknown command" || m.ErrorMessage != "nope" || m.Stacktrace != "at x" {
					t.Errorf("unexpected message %+v", m)
				}
			},
		},
		{
			name:     "error without stacktrace",
			input:    `{"type":"error","id":3,"error":"invalid argument","message":"bad"}`,
			wantType: MessageError,
		},
		{
			name:     "event",
			input:    `{"type":"event","method":"x.changed","params":{"value":1}}`,
			wantType: MessageEvent,
			check: func(t *testing.T, m *Message) {
				if m.Method != "x.changed" || m.IsResponse() {
					t.Errorf("unexpected message %+v", m)
				}
			},
		},
		{
			name:     "extra envelope fields kept",
			input:    `{"type":"success","id":4,"result":{},"channel":"a"}`,
			wantType: MessageSuccess,
			check: func(t *testing.T, m *Message) {
				if string(m.AdditionalData["channel"]) != `"a"` {
					t.Errorf("AdditionalData = %v", m.AdditionalData)
				}
			},
		},
		{name: "missing type", input: `{"id":1,"result":{}}`, wantErr: ErrMissingField},
		{name: "unknown type", input: `{"type":"reply","id":1}`, wantErr: ErrUnknownVariant},
		{name: "type not a string", input: `{"type":1,"id":1}`, wantErr: ErrTypeMismatch},
		{name: "success without id", input: `{"type":"success","result":{}}`, wantErr: ErrMissingField},
		{name: "success without result", input: `{"type":"success","id":1}`, wantErr: ErrMissingField},
		{name: "id is a string", input: `{"type":"success","id":"1","result":{}}`, wantErr: ErrTypeMismatch},
		{name: "negative id", input: `{"type":"success","id":-1,"result":{}}`, wantErr: ErrTypeMismatch},
		{name: "error without message", input: `{"type":"error","id":1,"error":"x"}`, wantErr: ErrMissingField},
		{name: "event without method", input: `{"type":"event","params":{}}`, wantErr: ErrMissingField},
		{name: "event params not object", input: `{"type":"event","method":"a.b","params":3}`, wantErr: ErrTypeMismatch},
		{name: "array", input: `[1,2]`, wantErr: ErrNotAnObject},
		{name: "garbage", input: `not json`, wantErr: ErrInvalidJSON},
		{name: "truncated", input: `{"type":"success"`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ClassifyMessage([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ClassifyMessage() error = %v, want %v", err, tt.wantErr)
				}
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected *DecodeError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClassifyMessage() error = %v", err)
			}
			if m.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", m.Type, tt.wantType)
			}
			if tt.check != nil {
				tt.check(t, m)
			}
		})
	}
}
