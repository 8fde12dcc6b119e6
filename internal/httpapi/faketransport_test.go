package httpapi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/transport"
)

// fakeTransport answers initialize/tools-list/tools-call with canned
// responses so the httpapi surface can be exercised without a real
// upstream, same idiom as internal/hub's fakeTransport.
type fakeTransport struct {
	mu    sync.Mutex
	onMsg transport.MessageHandler
	tools []hubtypes.Tool
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) Start(ctx context.Context) error      { return nil }
func (f *fakeTransport) Close() error                         { return nil }
func (f *fakeTransport) OnMessage(h transport.MessageHandler) { f.mu.Lock(); f.onMsg = h; f.mu.Unlock() }
func (f *fakeTransport) OnError(h transport.ErrorHandler)     {}

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
	go f.respond(req, onMsg)
	return nil
}

func (f *fakeTransport) respond(req inboundMsg, onMsg transport.MessageHandler) {
	var resp hubtypes.Response
	resp.JSONRPC = hubtypes.JSONRPCVersion
	resp.ID = req.ID

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
		result, _ := json.Marshal(hubtypes.CallToolResult{Content: []hubtypes.ContentBlock{{Type: "text", Text: "ok"}}})
		resp.Result = result
	default:
		result, _ := json.Marshal(map[string]any{})
		resp.Result = result
	}

	raw, _ := json.Marshal(resp)
	onMsg(raw)
}
