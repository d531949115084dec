package mockinterp

import (
	"errors"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/bridgectl/internal/protocol"
	"github.com/danmuck/bridgectl/internal/protocol/frame"
)

// Serve runs the framed request/response loop until the peer closes the
// stream or a shutdown command is acknowledged.
//
// Malformed bodies follow the protocol's asymmetry: a recoverable id gets a
// correlated error response so the caller never hangs; a body with no id is
// logged and dropped because there is no caller to notify.
func (i *Interp) Serve(r io.Reader, w io.Writer) error {
	limits := frame.DefaultLimits()
	for {
		body, err := frame.ReadFrame(r, limits)
		if err != nil {
			if errors.Is(err, frame.ErrClosed) {
				return nil
			}
			return err
		}

		msg, err := protocol.Decode(body)
		if err != nil {
			var merr *protocol.MalformedError
			if errors.As(err, &merr) && merr.HasID {
				resp := protocol.ErrorResponse(merr.ID, "malformed request: "+merr.Reason.Error())
				if werr := protocol.WriteResponse(w, resp, limits); werr != nil {
					return werr
				}
				continue
			}
			log.Warn().Err(err).Msg("mockinterp_dropped_body")
			continue
		}

		req, ok := msg.(*protocol.Request)
		if !ok {
			log.Warn().Msg("mockinterp_unexpected_response_dropped")
			continue
		}

		resp := i.Handle(*req)
		if err := protocol.WriteResponse(w, resp, limits); err != nil {
			return err
		}
		if i.stopRequested() {
			return nil
		}
	}
}
