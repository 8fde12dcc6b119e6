package router

import (
	"context"
	"fmt"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/supervisor"
)

// GetPrompt dispatches prompts/get to the upstream owning req.Name.
func (r *Router) GetPrompt(ctx context.Context, req hubtypes.GetPromptRequest) (*hubtypes.GetPromptResult, *hubtypes.RPCError) {
	serverID, original, ok := r.reg.ResolvePublicPrompt(req.Name)
	if !ok {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeMethodNotFound, Message: fmt.Sprintf("prompt %q not found", req.Name)}
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

	result, rpcErr, err := up.Call(ctx, "prompts/get", hubtypes.GetPromptRequest{Name: original, Arguments: req.Arguments})
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeTransportClosed, Message: err.Error()}
	}
	if rpcErr != nil {
		return nil, rpcErr
	}

	var out hubtypes.GetPromptResult
	if err := unmarshalResult(result, &out); err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: "malformed prompt result: " + err.Error()}
	}
	return &out, nil
}
