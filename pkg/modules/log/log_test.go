package log

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/vango-dev/webdriverbidi/pkg/biditest"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

const consoleEntry = `{"type":"console","level":"warn","source":{"realm":"r1","context":"c1"},"text":"careful",` +
	`"timestamp":1700000000000,"method":"warn","args":[{"type":"string","value":"careful"}]}`

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		check   func(t *testing.T, e Entry)
		wantErr error
	}{
		{
			name:  "console",
			input: consoleEntry,
			check: func(t *testing.T, e Entry) {
				c, ok := e.(ConsoleEntry)
				if !ok {
					t.Fatalf("got %T, want ConsoleEntry", e)
				}
				if c.Level != LevelWarn || c.Method != "warn" || len(c.Args) != 1 || *c.Text != "careful" {
					t.Errorf("entry = %+v", c)
				}
				if c.Source.Context != "c1" {
					t.Errorf("source = %+v", c.Source)
				}
			},
		},
		{
			name: "javascript with stack",
			input: `{"type":"javascript","level":"error","source":{"realm":"r1"},"text":null,"timestamp":1,` +
				`"stackTrace":{"callFrames":[{"columnNumber":1,"functionName":"f","lineNumber":2,"url":"u"}]}}`,
			check: func(t *testing.T, e Entry) {
				j, ok := e.(JavascriptEntry)
				if !ok {
					t.Fatalf("got %T, want JavascriptEntry", e)
				}
				if j.Text != nil || j.StackTrace == nil || j.StackTrace.CallFrames[0].FunctionName != "f" {
					t.Errorf("entry = %+v", j)
				}
				if e.EntryType() != TypeJavascript || e.Base().Level != LevelError {
					t.Errorf("EntryType/Base = %s/%+v", e.EntryType(), e.Base())
				}
			},
		},
		{
			name:    "unknown type",
			input:   `{"type":"network","level":"info","source":{"realm":"r"},"text":"x","timestamp":1}`,
			wantErr: protocol.ErrUnknownVariant,
		},
		{
			name:    "unknown level",
			input:   `{"type":"javascript","level":"fatal","source":{"realm":"r"},"text":"x","timestamp":1}`,
			wantErr: protocol.ErrUnknownVariant,
		},
		{
			name:    "console without args",
			input:   `{"type":"console","level":"info","source":{"realm":"r"},"text":"x","timestamp":1,"method":"log"}`,
			wantErr: protocol.ErrMissingField,
		},
		{
			name:    "source without realm",
			input:   `{"type":"javascript","level":"info","source":{},"text":"x","timestamp":1}`,
			wantErr: protocol.ErrMissingField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := DecodeEntry([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			tt.check(t, e)
		})
	}
}

func TestEntry_ReceiveOnly(t *testing.T) {
	if _, err := json.Marshal(ConsoleEntry{}); !errors.Is(err, protocol.ErrReceiveOnly) {
		t.Errorf("json.Marshal(ConsoleEntry) error = %v", err)
	}
}

func TestModule_EntryAdded(t *testing.T) {
	conn := biditest.NewConn(nil)
	var diags []transport.Diagnostic
	diagCh := make(chan transport.Diagnostic, 4)
	tr := transport.New(conn,
		transport.WithLogger(slog.New(slog.DiscardHandler)),
		transport.WithDiagnostics(func(d transport.Diagnostic) { diagCh <- d }),
	)
	m, err := New(tr)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name() != Name {
		t.Errorf("Name() = %q", m.Name())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx, "ws://test/session"); err != nil {
		t.Fatal(err)
	}
	defer tr.Disconnect(ctx)

	entries := make(chan Entry, 1)
	_, _ = m.OnEntryAdded.AddObserver(func(_ context.Context, ev EntryAddedEventArgs) error {
		entries <- ev.Entry
		return nil
	})

	_ = conn.Inject(biditest.Event(EventEntryAdded, json.RawMessage(`{"type":"network"}`)))
	_ = conn.Inject(biditest.Event(EventEntryAdded, json.RawMessage(consoleEntry)))

	select {
	case d := <-diagCh:
		diags = append(diags, d)
	case <-ctx.Done():
		t.Fatal("no diagnostic for the unknown entry type")
	}
	if diags[0].Kind != transport.DiagEventDecode || !errors.Is(diags[0].Err, protocol.ErrUnknownVariant) {
		t.Errorf("diagnostic = %+v", diags[0])
	}

	select {
	case e := <-entries:
		if _, ok := e.(ConsoleEntry); !ok {
			t.Errorf("entry = %T", e)
		}
	case <-ctx.Done():
		t.Fatal("entry not delivered after a decode failure")
	}
}
