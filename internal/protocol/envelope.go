package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/danmuck/bridgectl/internal/protocol/frame"
)

// Response status values on the wire.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is one command sent to an interpreter process. ID is assigned by
// the sending worker, monotonic and unique per connection.
type Request struct {
	ID      uint64         `json:"id"`
	Command string         `json:"command"`
	Args    map[string]any `json:"args"`
}

// Response correlates back to a previously-issued request id.
type Response struct {
	RequestID uint64 `json:"request_id"`
	Status    string `json:"status"`
	Result    any    `json:"result,omitempty"`
	Err       string `json:"error,omitempty"`
}

// Message is one decoded wire envelope: *Request or *Response.
type Message interface {
	message()
}

func (*Request) message()  {}
func (*Response) message() {}

// OKResponse builds a success response for a request id.
func OKResponse(requestID uint64, result any) Response {
	return Response{RequestID: requestID, Status: StatusOK, Result: result}
}

// ErrorResponse builds an error response for a request id.
func ErrorResponse(requestID uint64, msg string) Response {
	return Response{RequestID: requestID, Status: StatusError, Err: msg}
}

// EncodeRequest serializes a request body. The frame prefix is applied by
// the transport, not here.
func EncodeRequest(req Request) ([]byte, error) {
	if req.Command == "" {
		return nil, ErrEmptyCommand
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	return json.Marshal(req)
}

// EncodeResponse serializes a response body.
func EncodeResponse(resp Response) ([]byte, error) {
	switch resp.Status {
	case StatusOK, StatusError:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, resp.Status)
	}
	return json.Marshal(resp)
}

// Decode classifies one body as a request, a response, or a malformed
// envelope. A malformed body with a recoverable integer id yields a
// *MalformedError with HasID set; the caller owes that id exactly one
// error response. A body with no recoverable id can only be logged.
func Decode(body []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &MalformedError{Reason: ErrNotJSON}
	}

	if _, ok := fields["command"]; ok {
		return decodeRequest(fields)
	}
	if _, ok := fields["status"]; ok {
		return decodeResponse(fields)
	}

	merr := &MalformedError{Reason: ErrAmbiguousShape}
	if id, ok := recoverID(fields, "id"); ok {
		merr.ID, merr.HasID = id, true
	} else if id, ok := recoverID(fields, "request_id"); ok {
		merr.ID, merr.HasID = id, true
	}
	return nil, merr
}

func decodeRequest(fields map[string]json.RawMessage) (Message, error) {
	id, ok := recoverID(fields, "id")
	if !ok {
		return nil, &MalformedError{Reason: ErrMissingID}
	}

	var command string
	if err := json.Unmarshal(fields["command"], &command); err != nil {
		return nil, &MalformedError{ID: id, HasID: true, Reason: fmt.Errorf("command is not a string")}
	}
	if command == "" {
		return nil, &MalformedError{ID: id, HasID: true, Reason: ErrEmptyCommand}
	}

	args := map[string]any{}
	if raw, ok := fields["args"]; ok {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &MalformedError{ID: id, HasID: true, Reason: fmt.Errorf("args is not an object")}
		}
	}
	return &Request{ID: id, Command: command, Args: args}, nil
}

func decodeResponse(fields map[string]json.RawMessage) (Message, error) {
	id, hasID := recoverID(fields, "request_id")

	var status string
	if err := json.Unmarshal(fields["status"], &status); err != nil {
		return nil, &MalformedError{ID: id, HasID: hasID, Reason: fmt.Errorf("status is not a string")}
	}
	if !hasID {
		return nil, &MalformedError{Reason: ErrMissingID}
	}

	switch status {
	case StatusOK:
		resp := &Response{RequestID: id, Status: StatusOK}
		if raw, ok := fields["result"]; ok {
			if err := json.Unmarshal(raw, &resp.Result); err != nil {
				return nil, &MalformedError{ID: id, HasID: true, Reason: fmt.Errorf("result is not valid JSON")}
			}
		}
		return resp, nil
	case StatusError:
		resp := &Response{RequestID: id, Status: StatusError}
		if raw, ok := fields["error"]; ok {
			if err := json.Unmarshal(raw, &resp.Err); err != nil {
				return nil, &MalformedError{ID: id, HasID: true, Reason: fmt.Errorf("error is not a string")}
			}
		}
		return resp, nil
	default:
		return nil, &MalformedError{ID: id, HasID: true, Reason: fmt.Errorf("%w: %q", ErrUnknownStatus, status)}
	}
}

// recoverID pulls an unsigned integer field out of a possibly-broken body.
func recoverID(fields map[string]json.RawMessage, key string) (uint64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false
	}
	return id, true
}

// WriteRequest frames and writes one request.
func WriteRequest(w io.Writer, req Request, limits frame.Limits) error {
	body, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, body, limits)
}

// WriteResponse frames and writes one response.
func WriteResponse(w io.Writer, resp Response, limits frame.Limits) error {
	body, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, body, limits)
}

// ReadMessage reads one frame and decodes its envelope.
func ReadMessage(r io.Reader, limits frame.Limits) (Message, error) {
	body, err := frame.ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}
	return Decode(body)
}
