package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

// PrefixLen is the fixed length-prefix size on the wire.
const PrefixLen = 4

var (
	ErrShortPrefix   = errors.New("frame: short length prefix")
	ErrTruncatedBody = errors.New("frame: truncated body")
	ErrBodyTooLarge  = errors.New("frame: body too large")
	ErrEmptyBody     = errors.New("frame: empty body")
	ErrClosed        = errors.New("frame: stream closed")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes: 8 * 1024 * 1024,
	}
}

// ReadFrame reads one [4-byte big-endian length][body] frame.
// A clean EOF before any prefix byte is reported as ErrClosed so
// callers can tell an orderly shutdown from a torn frame.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrEmptyBody
	}
	if length > limits.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedBody
		}
		return nil, err
	}
	return body, nil
}

// WriteFrame writes one length-prefixed frame. The prefix and body go out
// as a single buffer so a frame is never interleaved with another writer's
// bytes mid-message.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	if len(body) == 0 {
		return ErrEmptyBody
	}
	if uint64(len(body)) > uint64(limits.MaxBodyBytes) {
		return ErrBodyTooLarge
	}

	buf := make([]byte, PrefixLen+len(body))
	binary.BigEndian.PutUint32(buf[:PrefixLen], uint32(len(body)))
	copy(buf[PrefixLen:], body)
	_, err := w.Write(buf)
	return err
}
