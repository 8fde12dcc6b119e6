package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hatago/hatago/internal/hubtypes"
)

// Call issues a JSON-RPC request against this upstream's transport and
// returns its result, bounding ctx to the configured per-call timeout if
// the caller hasn't already set a tighter deadline. The upstream must
// already be ACTIVE (callers reach Call only via Acquire).
func (u *Upstream) Call(ctx context.Context, method string, params any) (json.RawMessage, *hubtypes.RPCError, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && u.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, u.cfg.CallTimeout)
		defer cancel()
	}
	return u.call(callCtx, method, params)
}

// Notify sends a one-way notification upstream, e.g.
// notifications/cancelled for a timed-out or client-aborted call.
func (u *Upstream) Notify(ctx context.Context, method string, params any) error {
	return u.notify(ctx, method, params)
}

// CallTimeout returns the configured per-call deadline, used by routers
// to size their own cancellation-notification grace window.
func (u *Upstream) CallTimeout() time.Duration { return u.cfg.CallTimeout }
