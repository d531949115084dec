package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrNotJSON         = errors.New("protocol: body is not valid JSON")
	ErrAmbiguousShape  = errors.New("protocol: body is neither request nor response")
	ErrUnknownStatus   = errors.New("protocol: unknown response status")
	ErrMissingID       = errors.New("protocol: missing id")
	ErrEmptyCommand    = errors.New("protocol: empty command")
)

// MalformedError reports a body that failed envelope decoding. When the
// integer id survived parsing, HasID is true and the id's caller must still
// receive a correlated error response; otherwise the body can only be
// logged and dropped.
type MalformedError struct {
	ID     uint64
	HasID  bool
	Reason error
}

func (e *MalformedError) Error() string {
	if e.HasID {
		return fmt.Sprintf("protocol: malformed body (id=%d): %v", e.ID, e.Reason)
	}
	return fmt.Sprintf("protocol: malformed body (no recoverable id): %v", e.Reason)
}

func (e *MalformedError) Unwrap() error { return e.Reason }
