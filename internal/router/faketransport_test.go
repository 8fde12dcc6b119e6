package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/transport"
)

// fakeTransport is a minimal scripted transport.Transport for exercising
// Router against a supervisor.Upstream without a real child process,
// mirroring internal/supervisor's own fakeTransport test double.
type fakeTransport struct {
	mu    sync.Mutex
	onMsg transport.MessageHandler
	onErr transport.ErrorHandler

	// toolResult, if set, is returned verbatim for tools/call; when the
	// incoming tools/call carries a _meta.progressToken, a
	// notifications/progress frame carrying it is emitted just before the
	// tools/call response.
	toolResult  hubtypes.CallToolResult
	unsupported map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{unsupported: map[string]bool{}}
}

func (f *fakeTransport) Start(ctx context.Context) error { return nil }
func (f *fakeTransport) Close() error                     { return nil }

func (f *fakeTransport) OnMessage(h transport.MessageHandler) { f.mu.Lock(); f.onMsg = h; f.mu.Unlock() }
func (f *fakeTransport) OnError(h transport.ErrorHandler)     { f.mu.Lock(); f.onErr = h; f.mu.Unlock() }

type inboundMsg struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (f *fakeTransport) Send(ctx context.Context, msg json.RawMessage) error {
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

	go func() {
		if req.Method == "tools/call" {
			var params hubtypes.CallToolRequest
			_ = json.Unmarshal(req.Params, &params)
			if params.Meta != nil && len(params.Meta.ProgressToken) > 0 {
				f.emitProgress(params.Meta.ProgressToken)
			}
		}

		var resp hubtypes.Response
		resp.JSONRPC = hubtypes.JSONRPCVersion
		resp.ID = req.ID

		if f.unsupported[req.Method] {
			resp.Error = &hubtypes.RPCError{Code: hubtypes.CodeMethodNotFound, Message: "method not found"}
		} else {
			switch req.Method {
			case "initialize":
				result, _ := json.Marshal(hubtypes.InitializeResult{ServerInfo: hubtypes.ServerInfo{Name: "fake"}})
				resp.Result = result
			case "tools/call":
				result, _ := json.Marshal(f.toolResult)
				resp.Result = result
			default:
				result, _ := json.Marshal(map[string]any{})
				resp.Result = result
			}
		}

		raw, _ := json.Marshal(resp)
		onMsg(raw)
	}()

	return nil
}

func (f *fakeTransport) emitProgress(token json.RawMessage) {
	params, _ := json.Marshal(hubtypes.ProgressNotificationParams{ProgressToken: token, Progress: 1, Total: 2})
	notif, _ := json.Marshal(hubtypes.Request{JSONRPC: hubtypes.JSONRPCVersion, Method: "notifications/progress", Params: params})

	f.mu.Lock()
	onMsg := f.onMsg
	f.mu.Unlock()
	if onMsg != nil {
		onMsg(notif)
	}
}
