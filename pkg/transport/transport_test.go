package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/webdriverbidi/pkg/biditest"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

type statusCommand struct{}

func (statusCommand) Method() string { return "x.getStatus" }

type statusResult struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

type echoCommand struct {
	N int `json:"n"`
}

func (echoCommand) Method() string { return "x.echo" }

type echoResult struct {
	ID uint64 `json:"id"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestTransport(t *testing.T, responder biditest.Responder, opts ...Option) (*Transport, *biditest.Conn) {
	t.Helper()
	conn := biditest.NewConn(responder)
	tr := New(conn, append([]Option{WithLogger(discardLogger())}, opts...)...)
	if err := tr.Connect(testContext(t), "ws://remote.test/session"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Disconnect(context.Background()) })
	return tr, conn
}

func collectDiagnostics() (Option, <-chan Diagnostic) {
	ch := make(chan Diagnostic, 64)
	return WithDiagnostics(func(d Diagnostic) { ch <- d }), ch
}

func waitDiagnostic(t *testing.T, ch <-chan Diagnostic, kind DiagnosticKind) Diagnostic {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case d := <-ch:
			if d.Kind == kind {
				return d
			}
		case <-timeout:
			t.Fatalf("no %s diagnostic", kind)
			return Diagnostic{}
		}
	}
}

func TestExecute_Success(t *testing.T) {
	tr, conn := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		return [][]byte{biditest.Raw(`{"type":"success","id":1,"result":{"ready":true,"message":"ok"}}`)}
	})

	got, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !got.Ready || got.Message != "ok" {
		t.Errorf("Execute() = %+v, want ready=true message=ok", got)
	}

	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	if string(sent[0]) != `{"id":1,"method":"x.getStatus","params":{}}` {
		t.Errorf("sent %s", sent[0])
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending())
	}
}

func TestSendCommand_IDsIncrease(t *testing.T) {
	tr, _ := newTestTransport(t, biditest.Results(map[string]any{"x.getStatus": statusResult{Ready: true}}))

	for want := uint64(1); want <= 5; want++ {
		f, err := Send[statusResult](testContext(t), tr, statusCommand{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if f.ID() != want {
			t.Errorf("ID() = %d, want %d", f.ID(), want)
		}
		if _, err := f.Wait(testContext(t)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCorrelation_PermutedResponses(t *testing.T) {
	tr, conn := newTestTransport(t, nil)
	ctx := testContext(t)

	const n = 64
	futures := make([]*Future[echoResult], n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := Send[echoResult](ctx, tr, echoCommand{N: i}, nil)
			if err != nil {
				t.Error(err)
				return
			}
			futures[i] = f
		}()
	}
	wg.Wait()
	if t.Failed() {
		return
	}
	if tr.Pending() != n {
		t.Fatalf("Pending() = %d, want %d", tr.Pending(), n)
	}

	cmds, err := conn.SentCommands()
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range rand.Perm(len(cmds)) {
		id := cmds[i].ID
		if err := conn.Inject(biditest.Success(id, echoResult{ID: id})); err != nil {
			t.Fatal(err)
		}
	}

	for _, f := range futures {
		got, err := f.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if got.ID != f.ID() {
			t.Errorf("command %d received result for %d", f.ID(), got.ID)
		}
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending())
	}
}

func TestDuplicateResponseIsOrphan(t *testing.T) {
	diagOpt, diags := collectDiagnostics()
	tr, _ := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		return [][]byte{
			biditest.Success(cmd.ID, statusResult{Ready: true, Message: "first"}),
			biditest.Success(cmd.ID, statusResult{Ready: false, Message: "second"}),
		}
	}, diagOpt)

	f, err := Send[statusResult](testContext(t), tr, statusCommand{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.Wait(testContext(t))
	if err != nil {
		t.Fatal(err)
	}

	d := waitDiagnostic(t, diags, DiagOrphanResponse)
	if d.ID != f.ID() || !errors.Is(d.Err, ErrOrphanResponse) {
		t.Errorf("diagnostic = %+v", d)
	}

	// The delivered outcome never changes.
	again, _ := f.Wait(testContext(t))
	if got.Message != "first" || again.Message != "first" {
		t.Errorf("result changed: %q then %q", got.Message, again.Message)
	}
}

func TestCommandTimeout(t *testing.T) {
	diagOpt, diags := collectDiagnostics()
	tr, conn := newTestTransport(t, nil, diagOpt)

	start := time.Now()
	_, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil, WithTimeout(30*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("timed out after %s, before the deadline", elapsed)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.ID != 1 || te.Method != "x.getStatus" {
		t.Errorf("TimeoutError = %+v", te)
	}
	if errors.Is(err, ErrRemote) {
		t.Error("timeout must not match ErrRemote")
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending())
	}

	// A late response is an orphan and harmless.
	if err := conn.Inject(biditest.Success(1, statusResult{Ready: true})); err != nil {
		t.Fatal(err)
	}
	waitDiagnostic(t, diags, DiagOrphanResponse)
}

func TestDefaultCommandTimeout(t *testing.T) {
	tr, _ := newTestTransport(t, nil, WithCommandTimeout(20*time.Millisecond))

	_, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestNoTimeout(t *testing.T) {
	tr, conn := newTestTransport(t, nil, WithCommandTimeout(10*time.Millisecond))

	f, err := Send[statusResult](testContext(t), tr, statusCommand{}, nil, WithTimeout(NoTimeout))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	select {
	case <-f.Done():
		t.Fatal("command without deadline completed on its own")
	default:
	}

	if err := conn.Inject(biditest.Success(f.ID(), statusResult{Ready: true})); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Wait(testContext(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestDisconnect_DrainsPending(t *testing.T) {
	tr, _ := newTestTransport(t, nil)
	ctx := testContext(t)

	const k = 5
	futures := make([]*Future[statusResult], k)
	for i := range futures {
		f, err := Send[statusResult](ctx, tr, statusCommand{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		futures[i] = f
	}

	if err := tr.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	for _, f := range futures {
		if _, err := f.Wait(ctx); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("command %d: error = %v, want ErrConnectionClosed", f.ID(), err)
		}
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending())
	}

	select {
	case <-tr.Done():
	default:
		t.Error("Done() not closed after Disconnect")
	}

	if _, err := Send[statusResult](ctx, tr, statusCommand{}, nil); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Send after close error = %v, want ErrConnectionClosed", err)
	}
	if err := tr.Disconnect(ctx); err != nil {
		t.Errorf("second Disconnect() error = %v", err)
	}
}

func TestRemoteCloseDrainsPending(t *testing.T) {
	tr, conn := newTestTransport(t, nil)
	ctx := testContext(t)

	f, err := Send[statusResult](ctx, tr, statusCommand{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = conn.Close()

	if _, err := f.Wait(ctx); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("error = %v, want ErrConnectionClosed", err)
	}
	select {
	case <-tr.Done():
	case <-ctx.Done():
		t.Fatal("transport did not finish after the connection ended")
	}
	if tr.Connected() {
		t.Error("Connected() = true after close")
	}
}

func TestRemoteError(t *testing.T) {
	tr, _ := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		return [][]byte{biditest.Raw(`{"type":"error","id":1,"error":"unknown command","message":"nope","stacktrace":"at x"}`)}
	})

	_, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil)
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("error = %v, want ErrRemote", err)
	}
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if ce.ID != 1 || ce.Method != "x.getStatus" || ce.Code != CodeUnknownCommand || ce.Message != "nope" || ce.Stacktrace != "at x" {
		t.Errorf("CommandError = %+v", ce)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("remote error must not match ErrTimeout")
	}
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		t.Error("remote error must not match *protocol.DecodeError")
	}
}

func TestResultDecodeError(t *testing.T) {
	tr, _ := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		return [][]byte{biditest.Raw(`{"type":"success","id":1,"result":{"ready":"yes"}}`)}
	})

	_, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil)
	var de *protocol.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *protocol.DecodeError", err)
	}
	if !errors.Is(err, protocol.ErrTypeMismatch) || de.Field != "ready" {
		t.Errorf("DecodeError = %+v", de)
	}
	if errors.Is(err, ErrRemote) || errors.Is(err, ErrTimeout) {
		t.Error("decode error must be distinguishable from remote and timeout errors")
	}
}

func TestCustomDecoder(t *testing.T) {
	tr, _ := newTestTransport(t, biditest.Results(map[string]any{"x.getStatus": statusResult{Message: "m"}}))

	decode := func(data []byte) (string, error) {
		r, err := protocol.Decode[statusResult](data)
		return r.Message, err
	}
	got, err := Execute(testContext(t), tr, statusCommand{}, decode)
	if err != nil || got != "m" {
		t.Errorf("Execute() = %q, %v", got, err)
	}
}

func TestMalformedFrameDoesNotStopLoop(t *testing.T) {
	diagOpt, diags := collectDiagnostics()
	tr, _ := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		return [][]byte{
			biditest.Raw(`{"type":"success"`),
			biditest.Raw(`{"type":"reply","id":1}`),
			biditest.Raw(`[]`),
			biditest.Success(cmd.ID, statusResult{Ready: true}),
		}
	}, diagOpt)

	got, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil)
	if err != nil || !got.Ready {
		t.Fatalf("Execute() = %+v, %v", got, err)
	}

	wantErrs := []error{protocol.ErrInvalidJSON, protocol.ErrUnknownVariant, protocol.ErrNotAnObject}
	for _, want := range wantErrs {
		d := waitDiagnostic(t, diags, DiagMalformedFrame)
		if !errors.Is(d.Err, want) {
			t.Errorf("diagnostic error = %v, want %v", d.Err, want)
		}
	}
}

func TestEventDispatchedWhileCommandPending(t *testing.T) {
	tr, conn := newTestTransport(t, nil)
	ctx := testContext(t)

	events := make(chan json.RawMessage, 1)
	if err := tr.RegisterEventHandler("x.changed", func(_ context.Context, params json.RawMessage) error {
		events <- params
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	_, _ = Send[statusResult](ctx, tr, statusCommand{}, nil)
	f, err := Send[statusResult](ctx, tr, statusCommand{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID() != 2 {
		t.Fatalf("ID() = %d, want 2", f.ID())
	}

	if err := conn.Inject(biditest.Event("x.changed", map[string]int{"value": 7})); err != nil {
		t.Fatal(err)
	}
	select {
	case params := <-events:
		if string(params) != `{"value":7}` {
			t.Errorf("params = %s", params)
		}
	case <-ctx.Done():
		t.Fatal("event not dispatched")
	}

	select {
	case <-f.Done():
		t.Fatal("command 2 completed by an event")
	default:
	}
	if tr.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", tr.Pending())
	}

	if err := conn.Inject(biditest.Success(2, statusResult{Ready: true, Message: "two"})); err != nil {
		t.Fatal(err)
	}
	got, err := f.Wait(ctx)
	if err != nil || got.Message != "two" {
		t.Errorf("Wait() = %+v, %v", got, err)
	}
	if tr.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", tr.Pending())
	}
}

func TestEventDiagnostics(t *testing.T) {
	diagOpt, diags := collectDiagnostics()
	tr, conn := newTestTransport(t, nil, diagOpt)

	_ = tr.RegisterEventHandler("x.bad", func(context.Context, json.RawMessage) error {
		return protocol.MissingField("x.Bad", "value")
	})
	_ = tr.RegisterEventHandler("x.fails", func(context.Context, json.RawMessage) error {
		return errors.New("observer failed")
	})

	tests := []struct {
		method string
		kind   DiagnosticKind
	}{
		{method: "x.unknown", kind: DiagUnhandledEvent},
		{method: "x.bad", kind: DiagEventDecode},
		{method: "x.fails", kind: DiagObserverFailure},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if err := conn.Inject(biditest.Event(tt.method, nil)); err != nil {
				t.Fatal(err)
			}
			d := waitDiagnostic(t, diags, tt.kind)
			if d.Method != tt.method {
				t.Errorf("Method = %q, want %q", d.Method, tt.method)
			}
		})
	}

	// The loop is still running.
	if err := tr.RegisterEventHandler("x.bad", func(context.Context, json.RawMessage) error { return nil }); !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("duplicate registration error = %v", err)
	}
	_, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil, WithTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected the loop to keep serving commands, got %v", err)
	}
}

func TestWaitCancellationAbandonsOnlyWait(t *testing.T) {
	tr, conn := newTestTransport(t, nil)

	f, err := Send[statusResult](testContext(t), tr, statusCommand{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if tr.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", tr.Pending())
	}

	if err := conn.Inject(biditest.Success(f.ID(), statusResult{Ready: true})); err != nil {
		t.Fatal(err)
	}
	got, err := f.Wait(testContext(t))
	if err != nil || !got.Ready {
		t.Errorf("Wait() = %+v, %v", got, err)
	}
}

func TestConnectLifecycle(t *testing.T) {
	ctx := testContext(t)
	conn := biditest.NewConn(nil)
	tr := New(conn, WithLogger(discardLogger()))

	if _, err := Send[statusResult](ctx, tr, statusCommand{}, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before Connect error = %v, want ErrNotConnected", err)
	}

	conn.ConnectErr = errors.New("refused")
	if err := tr.Connect(ctx, "ws://remote.test"); err == nil {
		t.Fatal("expected connect error")
	}
	conn.ConnectErr = nil
	if err := tr.Connect(ctx, "ws://remote.test"); err != nil {
		t.Fatalf("Connect() after failure error = %v", err)
	}
	if conn.URL() != "ws://remote.test" {
		t.Errorf("URL() = %q", conn.URL())
	}
	if err := tr.Connect(ctx, "ws://remote.test"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}

	if err := tr.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if !conn.Closed() {
		t.Error("connection not closed by Disconnect")
	}
	if err := tr.Connect(ctx, "ws://remote.test"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Connect() after Disconnect error = %v, want ErrConnectionClosed", err)
	}
}

func TestSendFailureWithdrawsCommand(t *testing.T) {
	tr, conn := newTestTransport(t, nil)
	conn.SendErr = errors.New("broken pipe")

	called := false
	_, err := tr.SendCommand(testContext(t), statusCommand{}, func(json.RawMessage, error) { called = true })
	if err == nil {
		t.Fatal("expected send error")
	}
	if called {
		t.Error("completion called for a command that was never sent")
	}
	if tr.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending())
	}
}

func TestFrameObserver(t *testing.T) {
	var mu sync.Mutex
	var dirs []Direction
	observer := FrameObserverFunc(func(dir Direction, _ []byte) {
		mu.Lock()
		dirs = append(dirs, dir)
		mu.Unlock()
	})
	tr, _ := newTestTransport(t, biditest.Results(map[string]any{"x.getStatus": statusResult{}}), WithFrameObserver(observer))

	if _, err := Execute[statusResult](testContext(t), tr, statusCommand{}, nil); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dirs) != 2 || dirs[0] != Outbound || dirs[1] != Inbound {
		t.Errorf("observed %v, want [out in]", dirs)
	}
}
