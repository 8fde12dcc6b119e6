package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/transport"
)

// fakeTransport is a scripted, in-memory transport.Transport used to
// drive the supervisor's activation/discovery/call paths without a real
// child process or socket, mirroring how the teacher's instance_test.go
// style exercises Instance against a fake stdout/stdin pair.
type fakeTransport struct {
	mu        sync.Mutex
	onMsg     transport.MessageHandler
	onErr     transport.ErrorHandler
	startErr  error
	closed    atomic.Bool
	sendCount atomic.Int64

	unsupportedMethods map[string]bool

	// hold, when non-nil, delays every reply until closed, letting a
	// test freeze activation mid-handshake (state ACTIVATING, transport
	// already assigned).
	hold chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{unsupportedMethods: map[string]bool{}}
}

func (f *fakeTransport) Start(ctx context.Context) error { return f.startErr }

func (f *fakeTransport) OnMessage(h transport.MessageHandler) { f.mu.Lock(); f.onMsg = h; f.mu.Unlock() }
func (f *fakeTransport) OnError(h transport.ErrorHandler)     { f.mu.Lock(); f.onErr = h; f.mu.Unlock() }

func (f *fakeTransport) Close() error { f.closed.Store(true); return nil }

type inboundReq struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func (f *fakeTransport) Send(ctx context.Context, msg json.RawMessage) error {
	f.sendCount.Add(1)
	var req inboundReq
	if err := json.Unmarshal(msg, &req); err != nil {
		return err
	}
	if len(req.ID) == 0 {
		return nil // notification, no response
	}

	f.mu.Lock()
	onMsg := f.onMsg
	f.mu.Unlock()
	if onMsg == nil {
		return nil
	}

	go func() {
		f.mu.Lock()
		hold := f.hold
		f.mu.Unlock()
		if hold != nil {
			<-hold
		}

		var resp hubtypes.Response
		resp.JSONRPC = hubtypes.JSONRPCVersion
		resp.ID = req.ID

		if f.unsupportedMethods[req.Method] {
			resp.Error = &hubtypes.RPCError{Code: hubtypes.CodeMethodNotFound, Message: "method not found"}
		} else {
			switch req.Method {
			case "initialize":
				result, _ := json.Marshal(hubtypes.InitializeResult{
					ProtocolVersion: hubtypes.DownstreamHTTPProtocolVersion,
					ServerInfo:      hubtypes.ServerInfo{Name: "fake", Version: "1.0"},
				})
				resp.Result = result
			case "tools/list":
				result, _ := json.Marshal(hubtypes.ToolsListResult{
					Tools: []hubtypes.Tool{{OriginalName: "echo", Name: "echo", InputSchema: []byte(`{}`)}},
				})
				resp.Result = result
			case "resources/list":
				result, _ := json.Marshal(hubtypes.ResourcesListResult{})
				resp.Result = result
			case "prompts/list":
				result, _ := json.Marshal(hubtypes.PromptsListResult{})
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

func (f *fakeTransport) simulateCrash(err error) {
	f.mu.Lock()
	onErr := f.onErr
	f.mu.Unlock()
	if onErr != nil {
		onErr(err)
	}
}
