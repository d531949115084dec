package worker_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/bridgectl/internal/mockinterp"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
	"github.com/danmuck/bridgectl/internal/testutil/interptest"
	"github.com/danmuck/bridgectl/internal/worker"
)

func launchWorker(t *testing.T, cfg mockinterp.Config, opts worker.Options) *worker.Worker {
	t.Helper()
	l := &interptest.Launcher{Cfg: cfg}
	proc, err := l.Launch()
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	w := worker.New("w-test", proc, opts)
	t.Cleanup(w.Terminate)
	return w
}

func TestCallRoundTrip(t *testing.T) {
	w := launchWorker(t, mockinterp.DefaultConfig(), worker.DefaultOptions())
	result, err := w.Call(context.Background(), "ping", map[string]any{"echo": "hey"})
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	m := result.(map[string]any)
	if m["echo"] != "hey" {
		t.Fatalf("unexpected ping result: %+v", m)
	}
	stats := w.Stats()
	if stats.Requests != 1 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRemoteErrorKeepsWorkerHealthy(t *testing.T) {
	w := launchWorker(t, mockinterp.DefaultConfig(), worker.DefaultOptions())
	_, err := w.Call(context.Background(), "no_such_command", map[string]any{})
	var rerr *worker.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(rerr.Message, "unknown command") {
		t.Fatalf("unexpected remote message: %q", rerr.Message)
	}
	if worker.IsHealthImpacting(err) {
		t.Fatal("remote error misclassified as health-impacting")
	}
	if !w.Healthy() {
		t.Fatal("worker went unhealthy on a clean remote error")
	}
	// The connection still works.
	if _, err := w.Call(context.Background(), "ping", map[string]any{}); err != nil {
		t.Fatalf("ping after remote error: %v", err)
	}
}

func TestOperationTimeoutMarksUnhealthy(t *testing.T) {
	cfg := mockinterp.DefaultConfig()
	cfg.ResponseDelay = 300 * time.Millisecond
	opts := worker.DefaultOptions()
	opts.OperationTimeout = 50 * time.Millisecond

	w := launchWorker(t, cfg, opts)
	_, err := w.Call(context.Background(), "ping", map[string]any{})
	if !errors.Is(err, worker.ErrOperationTimeout) {
		t.Fatalf("expected ErrOperationTimeout, got %v", err)
	}
	if !worker.IsHealthImpacting(err) {
		t.Fatal("operation timeout must be health-impacting")
	}
	if w.Healthy() {
		t.Fatal("worker still healthy after operation timeout")
	}
	if _, err := w.Call(context.Background(), "ping", map[string]any{}); !errors.Is(err, worker.ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got %v", err)
	}
}

func TestProcessExitFailsInFlightCall(t *testing.T) {
	l := &interptest.Launcher{Cfg: mockinterp.Config{ResponseDelay: time.Second}}
	proc, err := l.Launch()
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	w := worker.New("w-exit", proc, worker.DefaultOptions())

	done := make(chan error, 1)
	go func() {
		_, callErr := w.Call(context.Background(), "ping", map[string]any{})
		done <- callErr
	}()

	time.Sleep(20 * time.Millisecond)
	_ = proc.Kill()

	select {
	case callErr := <-done:
		if !errors.Is(callErr, worker.ErrProcessExited) {
			t.Fatalf("expected ErrProcessExited, got %v", callErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call hung after process exit")
	}

	select {
	case <-w.Exited():
	case <-time.After(time.Second):
		t.Fatal("exit notification never fired")
	}
}

func TestSecondInFlightCallIsRejected(t *testing.T) {
	cfg := mockinterp.DefaultConfig()
	cfg.ResponseDelay = 200 * time.Millisecond
	w := launchWorker(t, cfg, worker.DefaultOptions())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = w.Call(context.Background(), "ping", map[string]any{})
	}()
	time.Sleep(50 * time.Millisecond)

	_, err := w.Call(context.Background(), "ping", map[string]any{})
	if !errors.Is(err, worker.ErrCallInFlight) {
		t.Fatalf("expected ErrCallInFlight, got %v", err)
	}
	wg.Wait()
}

// rawProcess lets a test hand-craft response frames.
type rawProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
}

func newRawProcess() *rawProcess {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &rawProcess{stdinR: inR, stdinW: inW, stdoutR: outR, stdoutW: outW}
}

func (p *rawProcess) Stdin() io.Writer  { return p.stdinW }
func (p *rawProcess) Stdout() io.Reader { return p.stdoutR }
func (p *rawProcess) Kill() error {
	_ = p.stdinW.Close()
	_ = p.stdoutW.Close()
	return nil
}

func TestMalformedResponseWithMatchingIDFailsCall(t *testing.T) {
	proc := newRawProcess()
	defer proc.Kill()
	limits := frame.DefaultLimits()

	go func() {
		// Consume the request, answer with a body that parses as JSON but
		// has a broken shape while echoing the request id.
		msg, err := protocol.ReadMessage(proc.stdinR, limits)
		if err != nil {
			return
		}
		req := msg.(*protocol.Request)
		body := []byte(`{"request_id": ` + strconv.FormatUint(req.ID, 10) + `, "status": 42}`)
		_ = frame.WriteFrame(proc.stdoutW, body, limits)
	}()

	w := worker.New("w-raw", proc, worker.DefaultOptions())
	_, err := w.Call(context.Background(), "ping", map[string]any{})
	if !errors.Is(err, worker.ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if w.Healthy() {
		t.Fatal("worker still healthy after protocol violation")
	}
}

func TestUncorrelatedResponseIsDropped(t *testing.T) {
	proc := newRawProcess()
	defer proc.Kill()
	limits := frame.DefaultLimits()

	go func() {
		msg, err := protocol.ReadMessage(proc.stdinR, limits)
		if err != nil {
			return
		}
		req := msg.(*protocol.Request)
		// Wrong id first: must be logged and dropped, not delivered.
		_ = protocol.WriteResponse(proc.stdoutW, protocol.OKResponse(req.ID+100, "stale"), limits)
		_ = protocol.WriteResponse(proc.stdoutW, protocol.OKResponse(req.ID, "fresh"), limits)
	}()

	w := worker.New("w-drop", proc, worker.DefaultOptions())
	result, err := w.Call(context.Background(), "ping", map[string]any{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result != "fresh" {
		t.Fatalf("expected the correlated response, got %v", result)
	}
}
