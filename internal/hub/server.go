package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/session"
)

// Server runs a Hub over a newline-delimited JSON stdio connection,
// adapted from gateway/server.go's scanner-based dispatch loop. One
// Server instance serves exactly one session, matching the stdio
// transport's single-client assumption (spec §6).
type Server struct {
	hub  *Hub
	sess *session.Session

	mu sync.Mutex
	w  io.Writer
}

// NewServer wires a Server around hub, creating its single session and
// registering itself as the hub's notifier.
func NewServer(h *Hub, sessions *session.Manager) *Server {
	sess := sessions.Create("stdio-client", "")
	s := &Server{hub: h, sess: sess}
	h.SetNotifier(s)
	return s
}

// RunStdio serves the hub over os.Stdin/os.Stdout until ctx is
// cancelled or the input stream closes.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// Run serves the hub over an arbitrary newline-delimited JSON reader/
// writer pair, per spec §6's stdio framing rules: no Content-Length
// header, bytes after the final newline retained until more arrive.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.dispatchLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := s.writeJSON(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatchLine(ctx context.Context, line []byte) *hubtypes.Response {
	var req hubtypes.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &hubtypes.Response{
			JSONRPC: hubtypes.JSONRPCVersion,
			Error:   &hubtypes.RPCError{Code: hubtypes.CodeParseError, Message: "invalid JSON: " + err.Error()},
		}
	}
	return s.hub.Dispatch(ctx, s.sess, &req)
}

func (s *Server) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// Notify sends a JSON-RPC notification (no id) to the connected client,
// satisfying the Notifier interface the Hub's debounced list_changed
// watcher drives.
func (s *Server) Notify(method string, params any) error {
	notif := struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{JSONRPC: hubtypes.JSONRPCVersion, Method: method, Params: params}
	return s.writeJSON(notif)
}
