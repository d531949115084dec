package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
)

// Stats counts one worker's lifetime traffic.
type Stats struct {
	Requests  uint64
	Errors    uint64
	StartedAt time.Time
}

// Options tunes one worker connection.
type Options struct {
	OperationTimeout time.Duration
	Limits           frame.Limits
}

func DefaultOptions() Options {
	return Options{
		OperationTimeout: 30 * time.Second,
		Limits:           frame.DefaultLimits(),
	}
}

type callResult struct {
	resp protocol.Response
	err  error
}

type pendingCall struct {
	id uint64
	ch chan callResult
}

// Worker owns one interpreter process handle and serializes calls to it.
// At most one call is in flight at a time: the protocol's correlation
// assumes FIFO per-connection ordering, so a second concurrent call is a
// caller bug, not a race to arbitrate.
type Worker struct {
	id   string
	proc Process
	opts Options

	nextID atomic.Uint64

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   *pendingCall
	requests  uint64
	errors    uint64
	startedAt time.Time

	unhealthy atomic.Bool

	exitOnce sync.Once
	exitErr  error
	exited   chan struct{}
}

// New wraps a launched process and starts its read loop.
func New(id string, proc Process, opts Options) *Worker {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOptions().OperationTimeout
	}
	if opts.Limits.MaxBodyBytes == 0 {
		opts.Limits = frame.DefaultLimits()
	}
	w := &Worker{
		id:        id,
		proc:      proc,
		opts:      opts,
		startedAt: time.Now(),
		exited:    make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Requests: w.requests, Errors: w.errors, StartedAt: w.startedAt}
}

// Healthy reports whether the worker may accept another call.
func (w *Worker) Healthy() bool { return !w.unhealthy.Load() }

// MarkUnhealthy removes the worker from further use; it never recovers.
func (w *Worker) MarkUnhealthy(reason string) {
	if w.unhealthy.CompareAndSwap(false, true) {
		log.Warn().Str("worker", w.id).Str("reason", reason).Msg("worker_unhealthy")
	}
}

// Exited is closed when the process connection ends, expectedly or not.
func (w *Worker) Exited() <-chan struct{} { return w.exited }

// ExitErr reports why the connection ended. Valid after Exited closes.
func (w *Worker) ExitErr() error {
	<-w.exited
	return w.exitErr
}

// Terminate kills the process. The read loop observes the resulting EOF
// and closes Exited.
func (w *Worker) Terminate() {
	w.MarkUnhealthy("terminated")
	if err := w.proc.Kill(); err != nil {
		log.Debug().Str("worker", w.id).Err(err).Msg("worker_kill_failed")
	}
}

// Ping performs the liveness handshake used before a worker enters
// rotation.
func (w *Worker) Ping(ctx context.Context) error {
	_, err := w.Call(ctx, "ping", map[string]any{})
	return err
}

// Call sends one framed request and awaits its correlated response.
//
// An operation timeout does not try to cancel the in-flight external
// computation; the worker is marked unhealthy and the pool replaces it.
// Retrying against a process whose in-flight state is unknown risks
// duplicate side effects.
func (w *Worker) Call(ctx context.Context, command string, args map[string]any) (any, error) {
	start := time.Now()
	result, err := w.call(ctx, command, args)
	observability.RecordWorkerCall(command, time.Since(start), err == nil)
	return result, err
}

func (w *Worker) call(ctx context.Context, command string, args map[string]any) (any, error) {
	if !w.Healthy() {
		return nil, ErrUnhealthy
	}
	select {
	case <-w.exited:
		return nil, fmt.Errorf("%w: %v", ErrProcessExited, w.exitErr)
	default:
	}

	id := w.nextID.Add(1)
	call := &pendingCall{id: id, ch: make(chan callResult, 1)}

	w.mu.Lock()
	if w.pending != nil {
		w.mu.Unlock()
		return nil, ErrCallInFlight
	}
	w.pending = call
	w.requests++
	w.mu.Unlock()

	req := protocol.Request{ID: id, Command: command, Args: args}
	w.writeMu.Lock()
	err := protocol.WriteRequest(w.proc.Stdin(), req, w.opts.Limits)
	w.writeMu.Unlock()
	if err != nil {
		w.finishCall(call, true)
		w.MarkUnhealthy("write failed")
		return nil, fmt.Errorf("%w: write: %v", ErrProcessExited, err)
	}

	timer := time.NewTimer(w.opts.OperationTimeout)
	defer timer.Stop()

	select {
	case res := <-call.ch:
		if res.err != nil {
			w.finishCall(call, true)
			w.MarkUnhealthy("protocol decode failure")
			return nil, fmt.Errorf("%w: %v", ErrProtocol, res.err)
		}
		if res.resp.Status == protocol.StatusError {
			w.finishCall(call, true)
			return nil, &RemoteError{Message: res.resp.Err}
		}
		w.finishCall(call, false)
		return res.resp.Result, nil
	case <-timer.C:
		w.finishCall(call, true)
		w.MarkUnhealthy("operation timeout")
		return nil, fmt.Errorf("%w: %s after %s", ErrOperationTimeout, command, w.opts.OperationTimeout)
	case <-ctx.Done():
		// The external call may still be running; same discard rule as a
		// timeout.
		w.finishCall(call, true)
		w.MarkUnhealthy("call cancelled")
		return nil, ctx.Err()
	case <-w.exited:
		w.finishCall(call, true)
		return nil, fmt.Errorf("%w: %v", ErrProcessExited, w.exitErr)
	}
}

func (w *Worker) finishCall(call *pendingCall, failed bool) {
	w.mu.Lock()
	if w.pending == call {
		w.pending = nil
	}
	if failed {
		w.errors++
	}
	w.mu.Unlock()
}

// readLoop owns the process stdout. Responses route to the pending call by
// correlation id; a response with an unknown id is a protocol violation
// and is logged, not delivered.
func (w *Worker) readLoop() {
	for {
		msg, err := protocol.ReadMessage(w.proc.Stdout(), w.opts.Limits)
		if err != nil {
			if merr, ok := err.(*protocol.MalformedError); ok {
				w.routeMalformed(merr)
				continue
			}
			w.recordExit(err)
			return
		}

		switch m := msg.(type) {
		case *protocol.Response:
			w.routeResponse(*m)
		case *protocol.Request:
			log.Warn().
				Str("worker", w.id).
				Uint64("id", m.ID).
				Str("command", m.Command).
				Msg("worker_unexpected_request_dropped")
		}
	}
}

func (w *Worker) routeResponse(resp protocol.Response) {
	w.mu.Lock()
	call := w.pending
	w.mu.Unlock()
	if call == nil || call.id != resp.RequestID {
		log.Warn().
			Str("worker", w.id).
			Uint64("request_id", resp.RequestID).
			Msg("worker_uncorrelated_response_dropped")
		return
	}
	call.ch <- callResult{resp: resp}
}

func (w *Worker) routeMalformed(merr *protocol.MalformedError) {
	w.mu.Lock()
	call := w.pending
	w.mu.Unlock()
	if merr.HasID && call != nil && call.id == merr.ID {
		call.ch <- callResult{err: merr}
		return
	}
	log.Warn().
		Str("worker", w.id).
		Bool("has_id", merr.HasID).
		Uint64("id", merr.ID).
		Err(merr.Reason).
		Msg("worker_malformed_body_dropped")
}

func (w *Worker) recordExit(err error) {
	w.exitOnce.Do(func() {
		w.MarkUnhealthy("process exited")
		w.exitErr = err
		close(w.exited)
		log.Warn().Str("worker", w.id).Err(err).Msg("worker_exited")
	})
}
