package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/transport"
)

// fakeTransport is a scripted transport.Transport covering the seed
// end-to-end scenarios: tools/list contents, a configurable tools/call
// responder (with optional delay and progress emission), unsupported
// discovery methods, and a one-shot Start failure for restart testing.
type fakeTransport struct {
	mu     sync.Mutex
	onMsg  transport.MessageHandler
	onErr  transport.ErrorHandler
	closed bool
	sent   atomic.Int64

	startErrOnce  error // returned by the first Start call only
	startAttempts int

	tools              []hubtypes.Tool
	unsupportedMethods map[string]bool

	// callFn, if set, computes the tools/call result and any progress
	// frames to emit beforehand.
	callFn func(req hubtypes.CallToolRequest, progressToken json.RawMessage) (hubtypes.CallToolResult, []hubtypes.ProgressNotificationParams, time.Duration)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{unsupportedMethods: map[string]bool{}}
}

func (f *fakeTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startAttempts++
	if f.startAttempts == 1 && f.startErrOnce != nil {
		return f.startErrOnce
	}
	return nil
}

func (f *fakeTransport) Close() error { f.mu.Lock(); f.closed = true; f.mu.Unlock(); return nil }

func (f *fakeTransport) OnMessage(h transport.MessageHandler) { f.mu.Lock(); f.onMsg = h; f.mu.Unlock() }
func (f *fakeTransport) OnError(h transport.ErrorHandler)     { f.mu.Lock(); f.onErr = h; f.mu.Unlock() }

type inboundMsg struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (f *fakeTransport) sendCount() int64 { return f.sent.Load() }

func (f *fakeTransport) Send(ctx context.Context, msg json.RawMessage) error {
	f.sent.Add(1)

	var req inboundMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return err
	}
	if len(req.ID) == 0 {
		return nil
	}

	f.mu.Lock()
	onMsg := f.onMsg
	f.mu.Unlock()
	if onMsg == nil {
		return nil
	}

	go f.respond(req, onMsg)
	return nil
}

func (f *fakeTransport) respond(req inboundMsg, onMsg transport.MessageHandler) {
	var resp hubtypes.Response
	resp.JSONRPC = hubtypes.JSONRPCVersion
	resp.ID = req.ID

	if f.unsupportedMethods[req.Method] {
		resp.Error = &hubtypes.RPCError{Code: hubtypes.CodeMethodNotFound, Message: "method not found"}
		raw, _ := json.Marshal(resp)
		onMsg(raw)
		return
	}

	switch req.Method {
	case "initialize":
		result, _ := json.Marshal(hubtypes.InitializeResult{ServerInfo: hubtypes.ServerInfo{Name: "fake"}})
		resp.Result = result
	case "tools/list":
		result, _ := json.Marshal(hubtypes.ToolsListResult{Tools: f.tools})
		resp.Result = result
	case "resources/list":
		result, _ := json.Marshal(hubtypes.ResourcesListResult{})
		resp.Result = result
	case "prompts/list":
		result, _ := json.Marshal(hubtypes.PromptsListResult{})
		resp.Result = result
	case "tools/call":
		var callReq hubtypes.CallToolRequest
		_ = json.Unmarshal(req.Params, &callReq)
		var progressToken json.RawMessage
		if callReq.Meta != nil {
			progressToken = callReq.Meta.ProgressToken
		}

		if f.callFn == nil {
			result, _ := json.Marshal(hubtypes.CallToolResult{})
			resp.Result = result
			break
		}

		result, progress, delay := f.callFn(callReq, progressToken)
		for _, p := range progress {
			params, _ := json.Marshal(p)
			notif, _ := json.Marshal(hubtypes.Request{JSONRPC: hubtypes.JSONRPCVersion, Method: "notifications/progress", Params: params})
			onMsg(notif)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		resultRaw, _ := json.Marshal(result)
		resp.Result = resultRaw
	default:
		result, _ := json.Marshal(map[string]any{})
		resp.Result = result
	}

	raw, _ := json.Marshal(resp)
	onMsg(raw)
}

func (f *fakeTransport) simulateCrash(err error) {
	f.mu.Lock()
	onErr := f.onErr
	f.mu.Unlock()
	if onErr != nil {
		onErr(err)
	}
}
