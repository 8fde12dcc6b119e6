package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/supervisor"
	"golang.org/x/sync/errgroup"
)

// ReadResource dispatches resources/read to the upstream owning uri,
// resolving a namespaced "serverId::uri" form back to the upstream's
// original URI first.
func (r *Router) ReadResource(ctx context.Context, uri string) (json.RawMessage, *hubtypes.RPCError) {
	serverID, original, ok := r.reg.ResolveResourceURI(uri)
	if !ok {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeMethodNotFound, Message: fmt.Sprintf("resource %q not found", uri)}
	}

	up, err := r.upstreamFor(serverID)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}

	release, err := up.Acquire(ctx, supervisor.SourceToolCall)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeActivationDenied, Message: err.Error()}
	}
	defer release()

	result, rpcErr, err := up.Call(ctx, "resources/read", hubtypes.ReadResourceRequest{URI: original})
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeTransportClosed, Message: err.Error()}
	}
	if rpcErr != nil {
		return nil, rpcErr
	}
	return result, nil
}

// ListResourceTemplates fans resources/templates/list out to every
// currently running (ACTIVE or IDLING) upstream in parallel, without
// activating any other upstream, tolerating -32601 as "this
// upstream has no templates" rather than failing the aggregate call.
// Unlike tools/call and resources/read, this operation has no single
// owning upstream to route by name; it is a broadcast query answered by
// whichever upstreams are already running.
func (r *Router) ListResourceTemplates(ctx context.Context) []json.RawMessage {
	g, gctx := errgroup.WithContext(ctx)
	results := make([][]json.RawMessage, len(r.upstreams))

	i := 0
	for serverID, up := range r.upstreams {
		idx := i
		i++
		sid := serverID
		u := up
		g.Go(func() error {
			if st := u.State(); st != supervisor.StateActive && st != supervisor.StateIdling {
				return nil
			}
			if r.reg.CapabilityOf(sid, "resources/templates/list") == registry.CapabilityUnsupported {
				return nil
			}
			release, err := u.Acquire(gctx, supervisor.SourceToolCall)
			if err != nil {
				return nil
			}
			defer release()

			result, rpcErr, err := u.Call(gctx, "resources/templates/list", struct{}{})
			if err != nil {
				return nil
			}
			if rpcErr != nil {
				if rpcErr.Code == hubtypes.CodeMethodNotFound {
					r.reg.SetCapability(sid, "resources/templates/list", registry.CapabilityUnsupported)
				}
				return nil
			}
			r.reg.SetCapability(sid, "resources/templates/list", registry.CapabilitySupported)

			var parsed struct {
				ResourceTemplates []json.RawMessage `json:"resourceTemplates"`
			}
			if err := json.Unmarshal(result, &parsed); err != nil {
				return nil
			}
			results[idx] = parsed.ResourceTemplates
			return nil
		})
	}
	_ = g.Wait()

	var out []json.RawMessage
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out
}
