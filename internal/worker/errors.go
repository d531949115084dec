package worker

import (
	"errors"
	"fmt"
)

var (
	ErrCallInFlight     = errors.New("worker: call already in flight")
	ErrUnhealthy        = errors.New("worker: unhealthy")
	ErrOperationTimeout = errors.New("worker: operation timeout")
	ErrProcessExited    = errors.New("worker: process exited")
	ErrProtocol         = errors.New("worker: protocol violation")
)

// RemoteError is a command-level error returned by the interpreter process.
// The process answered correctly, so it is not health-impacting.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker: remote error: %s", e.Message)
}

// IsHealthImpacting reports whether a call failure means the worker's
// in-flight state is unknown and the process must leave rotation: protocol
// decode failures, operation timeouts, and process exits. A RemoteError is
// a clean answer and keeps the worker healthy.
func IsHealthImpacting(err error) bool {
	return errors.Is(err, ErrOperationTimeout) ||
		errors.Is(err, ErrProcessExited) ||
		errors.Is(err, ErrProtocol)
}
