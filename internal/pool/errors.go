package pool

import "errors"

var (
	// ErrCheckoutTimeout means a queued checkout aged out before any worker
	// freed up.
	ErrCheckoutTimeout = errors.New("pool: checkout_timeout")
	// ErrPoolExhausted means the checkout could not even be queued: the
	// pool is shut down or shutting down.
	ErrPoolExhausted = errors.New("pool: pool_exhausted")
	// ErrSessionWorkerUnavailable means the session's pinned worker is
	// busy, unhealthy, or dead. The pool never silently reroutes a
	// session-bound call: the caller decides whether to rehydrate state in
	// a new session.
	ErrSessionWorkerUnavailable = errors.New("pool: session_worker_unavailable")
)
