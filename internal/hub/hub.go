// Package hub implements the downstream-facing JSON-RPC facade: the
// single dispatch point a connected MCP client talks to, fanning
// tools/resources/prompts operations out to the router and answering
// list/initialize/ping locally against the capability registry.
// Adapted from gateway/server.go's dispatch switch, replacing the
// teacher's approval/audit/workspace machinery with registry and router
// lookups.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/router"
	"github.com/hatago/hatago/internal/session"
)

const (
	serverName    = "hatago"
	serverVersion = "0.1.0"
)

// Hub is the facade's core: stateless beyond the registry/router/session
// manager it wraps, so it can be driven by either the stdio Server or
// the streamable-HTTP surface.
type Hub struct {
	reg      *registry.Registry
	router   *router.Router
	sessions *session.Manager

	notifier *debouncedNotifier
}

// New creates a Hub over an already-wired registry and router, with no
// notifier attached yet. Callers that want list_changed notifications
// delivered must call SetNotifier once a transport is ready to receive
// them (NewServer does this for the stdio surface automatically).
func New(reg *registry.Registry, rt *router.Router, sessions *session.Manager) *Hub {
	h := &Hub{reg: reg, router: rt, sessions: sessions}
	h.notifier = newDebouncedNotifier(nil)
	h.watchRegistry()
	return h
}

// Notifier sends a JSON-RPC notification (no id) to the connected
// client. Implemented by the stdio Server and the SSE/streamable-HTTP
// surface alike.
type Notifier interface {
	Notify(method string, params any) error
}

// SetNotifier attaches (or replaces) the transport that receives this
// hub's debounced list_changed notifications.
func (h *Hub) SetNotifier(n Notifier) {
	h.notifier.mu.Lock()
	h.notifier.underlying = n
	h.notifier.mu.Unlock()
}

// Dispatch handles one inbound JSON-RPC message. It returns nil for
// notifications, which carry no response.
func (h *Hub) Dispatch(ctx context.Context, sess *session.Session, req *hubtypes.Request) *hubtypes.Response {
	if req.IsNotification() {
		h.handleNotification(req)
		return nil
	}

	if sess != nil {
		release, err := sess.Acquire(ctx)
		if err != nil {
			return &hubtypes.Response{JSONRPC: hubtypes.JSONRPCVersion, ID: req.ID, Error: &hubtypes.RPCError{Code: hubtypes.CodeCancelled, Message: err.Error()}}
		}
		defer release()
	}

	var result json.RawMessage
	var rpcErr *hubtypes.RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = h.handleInitialize(req.Params)
	case "ping":
		result, _ = json.Marshal(map[string]any{})
	case "tools/list":
		result, rpcErr = h.handleToolsList()
	case "tools/call":
		result, rpcErr = h.handleToolsCall(ctx, sess, req.Params)
	case "resources/list":
		result, rpcErr = h.handleResourcesList()
	case "resources/read":
		result, rpcErr = h.handleResourcesRead(ctx, req.Params)
	case "resources/templates/list":
		result, rpcErr = h.handleResourceTemplatesList(ctx)
	case "prompts/list":
		result, rpcErr = h.handlePromptsList()
	case "prompts/get":
		result, rpcErr = h.handlePromptsGet(ctx, req.Params)
	default:
		rpcErr = &hubtypes.RPCError{
			Code:    hubtypes.CodeMethodNotFound,
			Message: fmt.Sprintf("unknown method: %s", req.Method),
		}
	}

	resp := &hubtypes.Response{JSONRPC: hubtypes.JSONRPCVersion, ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (h *Hub) handleNotification(req *hubtypes.Request) {
	switch req.Method {
	case "notifications/initialized":
		slog.Info("client initialized")
	case "notifications/cancelled":
		slog.Debug("client cancelled request", "params", string(req.Params))
	default:
		slog.Debug("unhandled notification", "method", req.Method)
	}
}

func (h *Hub) handleInitialize(params json.RawMessage) (json.RawMessage, *hubtypes.RPCError) {
	var in hubtypes.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, &hubtypes.RPCError{Code: hubtypes.CodeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}

	result := hubtypes.InitializeResult{
		ProtocolVersion: hubtypes.ProtocolVersion,
		Capabilities: hubtypes.ServerCapability{
			Tools:     &hubtypes.ToolCapability{ListChanged: true},
			Resources: &hubtypes.ResourceCapability{ListChanged: true},
			Prompts:   &hubtypes.PromptCapability{ListChanged: true},
		},
		ServerInfo: hubtypes.ServerInfo{Name: serverName, Version: serverVersion},
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handleToolsList() (json.RawMessage, *hubtypes.RPCError) {
	short, _, revision := h.reg.ToolsetHash()
	result := hubtypes.ToolsListResult{
		Tools: h.reg.ListTools(),
		Meta:  hubtypes.ListMeta{ToolsetHash: short, Revision: revision},
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handleToolsCall(ctx context.Context, sess *session.Session, params json.RawMessage) (json.RawMessage, *hubtypes.RPCError) {
	var req hubtypes.CallToolRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInvalidParams, Message: "invalid tools/call params: " + err.Error()}
	}

	result, rpcErr := h.router.CallTool(ctx, sess, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handleResourcesList() (json.RawMessage, *hubtypes.RPCError) {
	result := hubtypes.ResourcesListResult{Resources: h.reg.ListResources()}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handleResourcesRead(ctx context.Context, params json.RawMessage) (json.RawMessage, *hubtypes.RPCError) {
	var req hubtypes.ReadResourceRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInvalidParams, Message: "invalid resources/read params: " + err.Error()}
	}
	return h.router.ReadResource(ctx, req.URI)
}

func (h *Hub) handleResourceTemplatesList(ctx context.Context) (json.RawMessage, *hubtypes.RPCError) {
	templates := h.router.ListResourceTemplates(ctx)
	raw, err := json.Marshal(struct {
		ResourceTemplates []json.RawMessage `json:"resourceTemplates"`
	}{ResourceTemplates: templates})
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handlePromptsList() (json.RawMessage, *hubtypes.RPCError) {
	result := hubtypes.PromptsListResult{Prompts: h.reg.ListPrompts()}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}

func (h *Hub) handlePromptsGet(ctx context.Context, params json.RawMessage) (json.RawMessage, *hubtypes.RPCError) {
	var req hubtypes.GetPromptRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInvalidParams, Message: "invalid prompts/get params: " + err.Error()}
	}
	result, rpcErr := h.router.GetPrompt(ctx, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, &hubtypes.RPCError{Code: hubtypes.CodeInternalError, Message: err.Error()}
	}
	return raw, nil
}
