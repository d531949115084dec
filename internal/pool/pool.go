// Package pool owns the set of interpreter workers: checkout/checkin,
// session-affinity registry, overflow capacity, health monitoring, and the
// restart policy.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/observability"
	"github.com/danmuck/bridgectl/internal/worker"
)

// State is one worker's pool-side lifecycle state.
type State uint8

const (
	StateStarting State = iota
	StateIdle
	StateCheckedOut
	StateUnhealthy
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateCheckedOut:
		return "checked_out"
	case StateUnhealthy:
		return "unhealthy"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config sizes the pool and its timeouts.
type Config struct {
	Size             int
	Overflow         int
	CheckoutTimeout  time.Duration
	OperationTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Size:             4,
		Overflow:         2,
		CheckoutTimeout:  5 * time.Second,
		OperationTimeout: 30 * time.Second,
	}
}

type managed struct {
	w *worker.Worker
	// state mutations happen only under the pool mutex.
	state State
	// overflow workers absorb bursts above baseline and are never
	// auto-replaced.
	overflow bool
}

type sessionEntry struct {
	workerID string
	lastUsed time.Time
}

type waiter struct {
	// ch delivers an already-checked-out worker; closing it fails the
	// waiter (pool shutdown).
	ch chan *managed
}

// Pool is the single serialized coordinator for all pool-state mutations.
// Checkout decisions depend on atomic snapshots of idle/busy/session state,
// so everything mutates under one mutex rather than fine-grained locks.
type Pool struct {
	cfg      Config
	launcher worker.Launcher
	wopts    worker.Options

	mu       sync.Mutex
	workers  map[string]*managed
	idle     []*managed
	sessions map[string]*sessionEntry
	waiters  []*waiter
	// Reservations count spawns in progress toward capacity so concurrent
	// checkouts cannot oversubscribe size+overflow. They are split by class
	// so a pending baseline replacement never pushes a within-baseline
	// checkout spawn into the overflow class (overflow workers are not
	// auto-replaced on death).
	reservedBaseline int
	reservedOverflow int
	closed           bool
}

func (p *Pool) reservedLocked() int {
	return p.reservedBaseline + p.reservedOverflow
}

// New builds a pool; Start launches the baseline workers.
func New(cfg Config, launcher worker.Launcher) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = DefaultConfig().CheckoutTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultConfig().OperationTimeout
	}
	return &Pool{
		cfg:      cfg,
		launcher: launcher,
		wopts: worker.Options{
			OperationTimeout: cfg.OperationTimeout,
		},
		workers:  make(map[string]*managed),
		sessions: make(map[string]*sessionEntry),
	}
}

// Start spawns the baseline workers. Each is pinged before entering
// rotation.
func (p *Pool) Start(ctx context.Context) error {
	for n := 0; n < p.cfg.Size; n++ {
		m, err := p.spawn(ctx, false)
		if err != nil {
			p.Shutdown()
			return fmt.Errorf("pool: start worker %d/%d: %w", n+1, p.cfg.Size, err)
		}
		p.mu.Lock()
		p.workers[m.w.ID()] = m
		m.state = StateIdle
		p.idle = append(p.idle, m)
		p.updateGaugesLocked()
		p.mu.Unlock()
	}
	log.Info().
		Int("size", p.cfg.Size).
		Int("overflow", p.cfg.Overflow).
		Msg("pool_started")
	return nil
}

// spawn launches and handshakes one worker. Runs without the pool mutex;
// callers account for in-flight spawns via reserved.
func (p *Pool) spawn(ctx context.Context, overflow bool) (*managed, error) {
	proc, err := p.launcher.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	w := worker.New(uuid.NewString(), proc, p.wopts)

	pingCtx, cancel := context.WithTimeout(ctx, p.wopts.OperationTimeout)
	defer cancel()
	if err := w.Ping(pingCtx); err != nil {
		w.Terminate()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	m := &managed{w: w, state: StateStarting, overflow: overflow}
	go p.watch(m)
	log.Info().Str("worker", w.ID()).Bool("overflow", overflow).Msg("pool_worker_spawned")
	return m, nil
}

// watch waits for the worker's process to exit and applies the restart
// rule. An unexpected exit never leaves a caller hanging: the in-flight
// call fails through the worker's exit channel, and sessions bound to the
// worker are invalidated here.
func (p *Pool) watch(m *managed) {
	<-m.w.Exited()
	p.retire(m, "process exit")
}

// retire removes a worker from rotation, invalidates its sessions, and
// spawns a baseline replacement when the restart rule calls for one.
// Idempotent: checkin-with-failure and the exit watcher can both reach it.
func (p *Pool) retire(m *managed, reason string) {
	p.mu.Lock()
	if m.state == StateTerminated {
		p.mu.Unlock()
		return
	}
	wasOverflow := m.overflow
	m.state = StateTerminated
	delete(p.workers, m.w.ID())
	p.removeIdleLocked(m)
	// Session entries bound to this worker stay in the registry as
	// dangling ids: a later checkout with that session must fail fast,
	// never silently reroute to a worker without the pinned state.

	replace := !wasOverflow && !p.closed
	if replace {
		p.reservedBaseline++
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	log.Warn().
		Str("worker", m.w.ID()).
		Str("reason", reason).
		Bool("replacing", replace).
		Msg("pool_worker_retired")
	m.w.Terminate()

	if replace {
		go p.replace()
	}
}

func (p *Pool) replace() {
	m, err := p.spawn(context.Background(), false)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reservedBaseline--
	if err != nil {
		log.Error().Err(err).Msg("pool_replacement_spawn_failed")
		p.updateGaugesLocked()
		return
	}
	if p.closed {
		go m.w.Terminate()
		return
	}
	p.workers[m.w.ID()] = m
	p.deliverLocked(m)
	p.updateGaugesLocked()
}

// deliverLocked hands a free worker to the longest waiter, or parks it
// idle. Overflow workers shrink back instead of idling when nobody waits.
func (p *Pool) deliverLocked(m *managed) {
	if len(p.waiters) > 0 {
		wt := p.waiters[0]
		p.waiters = p.waiters[1:]
		m.state = StateCheckedOut
		wt.ch <- m
		return
	}
	if m.overflow {
		m.state = StateTerminated
		delete(p.workers, m.w.ID())
		go m.w.Terminate()
		log.Info().Str("worker", m.w.ID()).Msg("pool_overflow_shrunk")
		return
	}
	m.state = StateIdle
	p.idle = append(p.idle, m)
}

func (p *Pool) removeIdleLocked(m *managed) {
	for i, cand := range p.idle {
		if cand == m {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}

// Lease is one exclusive checkout of a worker for one call.
type Lease struct {
	p    *Pool
	m    *managed
	once sync.Once
}

// Worker exposes the leased worker for the duration of the checkout.
func (l *Lease) Worker() *worker.Worker { return l.m.w }

// Release checks the lease back in, classifying the call outcome.
func (l *Lease) Release(callErr error) { l.p.Checkin(l, callErr) }

// Checkout acquires a worker, honoring session affinity.
//
// A session id that maps to a live idle worker binds immediately. A session
// id that maps to a busy, unhealthy, or dead worker fails fast with
// ErrSessionWorkerUnavailable. Otherwise any idle worker is taken, a new
// one is spawned below size+overflow, or the caller queues FIFO until
// CheckoutTimeout.
func (p *Pool) Checkout(ctx context.Context, sessionID string) (*Lease, error) {
	start := time.Now()
	lease, err := p.checkout(ctx, sessionID, start)
	outcome := "ok"
	if err != nil {
		switch {
		case errors.Is(err, ErrCheckoutTimeout):
			outcome = "timeout"
		case errors.Is(err, ErrSessionWorkerUnavailable):
			outcome = "session_unavailable"
		case errors.Is(err, ErrPoolExhausted):
			outcome = "exhausted"
		default:
			outcome = "error"
		}
	}
	observability.RecordCheckout(outcome, time.Since(start))
	return lease, err
}

func (p *Pool) checkout(ctx context.Context, sessionID string, start time.Time) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}

	if sessionID != "" {
		if e, ok := p.sessions[sessionID]; ok {
			m, live := p.workers[e.workerID]
			if !live || m.state != StateIdle || !m.w.Healthy() {
				// A dangling id reads the same as a busy or unhealthy
				// worker: the server-side state pinned to that process is
				// unreachable. The entry stays so a retry with the same
				// session keeps failing fast instead of silently rebinding.
				p.mu.Unlock()
				return nil, ErrSessionWorkerUnavailable
			}
			p.removeIdleLocked(m)
			m.state = StateCheckedOut
			e.lastUsed = time.Now()
			p.updateGaugesLocked()
			p.mu.Unlock()
			return &Lease{p: p, m: m}, nil
		}
	}

	if len(p.idle) > 0 {
		m := p.idle[0]
		p.idle = p.idle[1:]
		m.state = StateCheckedOut
		p.bindSessionLocked(sessionID, m)
		p.updateGaugesLocked()
		p.mu.Unlock()
		return &Lease{p: p, m: m}, nil
	}

	if len(p.workers)+p.reservedLocked() < p.cfg.Size+p.cfg.Overflow {
		// Classify against baseline occupancy only: live baseline workers
		// plus pending baseline replacements. Live overflow workers never
		// consume a baseline slot.
		baselineLive := 0
		for _, cand := range p.workers {
			if !cand.overflow {
				baselineLive++
			}
		}
		isOverflow := baselineLive+p.reservedBaseline >= p.cfg.Size
		if isOverflow {
			p.reservedOverflow++
		} else {
			p.reservedBaseline++
		}
		p.mu.Unlock()

		m, err := p.spawn(ctx, isOverflow)

		p.mu.Lock()
		if isOverflow {
			p.reservedOverflow--
		} else {
			p.reservedBaseline--
		}
		if err != nil {
			p.updateGaugesLocked()
			p.mu.Unlock()
			return nil, fmt.Errorf("pool: spawn for checkout: %w", err)
		}
		if p.closed {
			p.mu.Unlock()
			m.w.Terminate()
			return nil, ErrPoolExhausted
		}
		p.workers[m.w.ID()] = m
		m.state = StateCheckedOut
		p.bindSessionLocked(sessionID, m)
		p.updateGaugesLocked()
		p.mu.Unlock()
		return &Lease{p: p, m: m}, nil
	}

	wt := &waiter{ch: make(chan *managed, 1)}
	p.waiters = append(p.waiters, wt)
	p.mu.Unlock()

	remaining := p.cfg.CheckoutTimeout - time.Since(start)
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case m, ok := <-wt.ch:
		if !ok {
			return nil, ErrPoolExhausted
		}
		p.mu.Lock()
		p.bindSessionLocked(sessionID, m)
		p.mu.Unlock()
		return &Lease{p: p, m: m}, nil
	case <-timer.C:
		return nil, p.abandonWait(wt, ErrCheckoutTimeout)
	case <-ctx.Done():
		return nil, p.abandonWait(wt, ctx.Err())
	}
}

// abandonWait removes a waiter from the queue. If a handoff already
// happened, the worker goes straight back into rotation so it is not
// leaked.
func (p *Pool) abandonWait(wt *waiter, cause error) error {
	p.mu.Lock()
	for i, cand := range p.waiters {
		if cand == wt {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return cause
		}
	}
	// Handoff completed concurrently; the send under the pool mutex
	// happens before the waiter leaves the queue, so the channel has a
	// worker (or is closed by shutdown).
	if m, ok := <-wt.ch; ok {
		p.deliverLocked(m)
		p.updateGaugesLocked()
	}
	p.mu.Unlock()
	return cause
}

func (p *Pool) bindSessionLocked(sessionID string, m *managed) {
	if sessionID == "" {
		return
	}
	p.sessions[sessionID] = &sessionEntry{workerID: m.w.ID(), lastUsed: time.Now()}
}

// ReleaseSession drops a session binding. Callers done with a session (or
// rehydrating state under a new one) use this to keep the registry from
// accumulating dangling entries.
func (p *Pool) ReleaseSession(sessionID string) {
	p.mu.Lock()
	delete(p.sessions, sessionID)
	p.mu.Unlock()
}

// Checkin releases a leased worker. A health-impacting call failure
// (protocol decode failure, operation timeout, process exit) retires the
// worker instead of returning it to rotation. Session bindings survive a
// healthy checkin; they die only with the worker.
func (p *Pool) Checkin(l *Lease, callErr error) {
	l.once.Do(func() {
		if callErr != nil && worker.IsHealthImpacting(callErr) {
			p.mu.Lock()
			l.m.state = StateUnhealthy
			p.mu.Unlock()
			p.retire(l.m, fmt.Sprintf("checkin: %v", callErr))
			return
		}
		p.mu.Lock()
		if p.closed || !l.m.w.Healthy() {
			p.mu.Unlock()
			p.retire(l.m, "checkin: worker no longer healthy")
			return
		}
		p.deliverLocked(l.m)
		p.updateGaugesLocked()
		p.mu.Unlock()
	})
}

// Shutdown terminates every worker and fails queued waiters. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	var all []*managed
	for _, m := range p.workers {
		m.state = StateTerminated
		all = append(all, m)
	}
	p.workers = make(map[string]*managed)
	p.idle = nil
	p.sessions = make(map[string]*sessionEntry)
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, wt := range waiters {
		close(wt.ch)
	}
	for _, m := range all {
		m.w.Terminate()
	}
	log.Info().Int("workers", len(all)).Msg("pool_shutdown")
}

// WorkerInfo is one worker's pool-side snapshot.
type WorkerInfo struct {
	ID       string       `json:"id"`
	State    string       `json:"state"`
	Overflow bool         `json:"overflow"`
	Stats    worker.Stats `json:"stats"`
}

// SessionInfo is one session registry entry.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	WorkerID  string    `json:"worker_id"`
	LastUsed  time.Time `json:"last_used"`
}

// Status is a linearizable snapshot of pool state.
type Status struct {
	Size     int  `json:"size"`
	Overflow int  `json:"overflow"`
	Idle     int  `json:"idle"`
	Busy     int  `json:"busy"`
	Waiters  int  `json:"waiters"`
	Sessions int  `json:"sessions"`
	Closed   bool `json:"closed"`
}

func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	busy := 0
	for _, m := range p.workers {
		if m.state == StateCheckedOut {
			busy++
		}
	}
	return Status{
		Size:     p.cfg.Size,
		Overflow: p.cfg.Overflow,
		Idle:     len(p.idle),
		Busy:     busy,
		Waiters:  len(p.waiters),
		Sessions: len(p.sessions),
		Closed:   p.closed,
	}
}

func (p *Pool) Workers() []WorkerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkerInfo, 0, len(p.workers))
	for _, m := range p.workers {
		out = append(out, WorkerInfo{
			ID:       m.w.ID(),
			State:    m.state.String(),
			Overflow: m.overflow,
			Stats:    m.w.Stats(),
		})
	}
	return out
}

func (p *Pool) Sessions() []SessionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SessionInfo, 0, len(p.sessions))
	for sid, e := range p.sessions {
		out = append(out, SessionInfo{SessionID: sid, WorkerID: e.workerID, LastUsed: e.lastUsed})
	}
	return out
}

func (p *Pool) updateGaugesLocked() {
	busy := 0
	for _, m := range p.workers {
		if m.state == StateCheckedOut {
			busy++
		}
	}
	observability.SetWorkerGauge("idle", len(p.idle))
	observability.SetWorkerGauge("busy", busy)
	observability.SetWorkerGauge("starting", p.reservedLocked())
}
