// Package router dispatches downstream-facing tools/call, resources/*,
// and prompts/* requests to the owning upstream, bridging progress
// tokens across the trust boundary and bounding each call to its
// upstream's configured timeout. Adapted from gateway/handler.go's
// handleToolsCall/handleToolsList dispatch shape, with the teacher's
// workspace/route-rule resolution replaced by registry.ResolvePublicTool
// lookups.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/session"
	"github.com/hatago/hatago/internal/supervisor"
)

// Router fans downstream requests out to upstreams by consulting the
// capability registry, and bridges per-call progress tokens between the
// public (client-facing) and upstream (server-facing) namespaces.
type Router struct {
	reg       *registry.Registry
	upstreams map[string]*supervisor.Upstream

	tokens *tokenBroker
}

// New creates a Router over the given upstream set, keyed by server ID,
// and registers its progress-bridging handler on each upstream through
// OnNotification, so progress frames are bridged back to the owning
// session.
func New(reg *registry.Registry, upstreams map[string]*supervisor.Upstream) *Router {
	r := &Router{reg: reg, upstreams: upstreams, tokens: newTokenBroker()}
	for serverID, up := range upstreams {
		up.OnNotification(r.notificationHandler(serverID))
	}
	return r
}

// ErrUpstreamNotWired means the registry resolved a server ID this
// Router was never constructed with. This indicates a wiring bug, not a
// client error, and always maps to CodeInternalError.
var ErrUpstreamNotWired = errors.New("router: upstream not wired")

func (r *Router) upstreamFor(serverID string) (*supervisor.Upstream, error) {
	up, ok := r.upstreams[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamNotWired, serverID)
	}
	return up, nil
}

// CallTool dispatches a tools/call to the upstream owning req.Name,
// activating it if necessary, substituting a fresh upstream progress
// token for req.Meta.ProgressToken if present, and sending a best-effort
// notifications/cancelled upstream if ctx expires mid-call.
func (r *Router) CallTool(ctx context.Context, sess *session.Session, req hubtypes.CallToolRequest) (*hubtypes.CallToolResult, *hubtypes.RPCError) {
	serverID, original, ok := r.reg.ResolvePublicTool(req.Name)
	if !ok {
		return nil, r.toolNotFoundError(req.Name)
	}

	up, err := r.upstreamFor(serverID)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}

	release, err := up.Acquire(ctx, supervisor.SourceToolCall)
	if err != nil {
		return nil, &hubtypes.RPCError{
			Code:    hubtypes.CodeActivationDenied,
			Message: fmt.Sprintf("cannot activate %s: %v", serverID, err),
		}
	}
	defer release()

	callParams := hubtypes.CallToolRequest{Name: original, Arguments: req.Arguments}

	var upstreamToken string
	if sess != nil && req.Meta != nil && len(req.Meta.ProgressToken) > 0 {
		upstreamToken = r.tokens.register(serverID, sess, req.Meta.ProgressToken)
		defer r.tokens.release(upstreamToken)
		tokenRaw, _ := json.Marshal(upstreamToken)
		callParams.Meta = &hubtypes.RequestMeta{ProgressToken: tokenRaw}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout := up.CallTimeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, rpcErr, err := up.Call(callCtx, "tools/call", callParams)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			notifyCtx, notifyCancel := context.WithTimeout(context.Background(), cancelGrace)
			_ = up.Notify(notifyCtx, "notifications/cancelled", hubtypes.CancelledNotificationParams{Reason: "timeout"})
			notifyCancel()
			return nil, &hubtypes.RPCError{
				Code:    hubtypes.CodeInternalError,
				Message: "tool call timed out",
				Data: &hubtypes.ErrorData{
					HatagoCode:  "timeout",
					TimeoutMs:   up.CallTimeout().Milliseconds(),
					Recoverable: true,
				},
			}
		}
		if errors.Is(err, context.Canceled) {
			notifyCtx, notifyCancel := context.WithTimeout(context.Background(), cancelGrace)
			_ = up.Notify(notifyCtx, "notifications/cancelled", hubtypes.CancelledNotificationParams{Reason: "client cancelled"})
			notifyCancel()
			return nil, &hubtypes.RPCError{Code: hubtypes.CodeCancelled, Message: "tool call cancelled: " + err.Error()}
		}
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeTransportClosed, Message: err.Error()}
	}
	if rpcErr != nil {
		return nil, rpcErr
	}

	var out hubtypes.CallToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: "malformed tool result: " + err.Error()}
	}
	return &out, nil
}

const cancelGrace = 2 * time.Second
