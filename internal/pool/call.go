package pool

import (
	"context"

	"github.com/danmuck/bridgectl/internal/contract"
)

// CallRequest is one typed remote call routed through the pool.
type CallRequest struct {
	SessionID string
	Command   string
	Args      map[string]any
	// Spec, when set, validates Args (with optional defaults applied)
	// before any wire traffic.
	Spec *contract.MethodSpec
	// Return, when set, casts the raw result into its declared type.
	Return *contract.TypeSpec
}

// Call runs the full path: validate, checkout, framed call, cast, checkin.
// Every outcome is a typed value or a typed error; validation and cast
// errors surface synchronously and are never retried here. Retry policy is
// a caller concern.
func (p *Pool) Call(ctx context.Context, req CallRequest) (any, error) {
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	if req.Spec != nil {
		args = contract.ApplyDefaults(args, *req.Spec)
		if err := contract.Validate(args, *req.Spec); err != nil {
			return nil, err
		}
	}

	lease, err := p.Checkout(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	result, callErr := lease.Worker().Call(ctx, req.Command, args)
	lease.Release(callErr)
	if callErr != nil {
		return nil, callErr
	}

	if req.Return != nil {
		return contract.Cast(result, *req.Return)
	}
	return result, nil
}
