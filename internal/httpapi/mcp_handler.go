package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/session"
)

const maxMCPBodyBytes = int64(1 << 20) // 1 MiB, matching the teacher's request body cap

const sessionIDHeader = "Mcp-Session-Id"

func setProtocolVersionHeader(w http.ResponseWriter) {
	w.Header().Set("MCP-Protocol-Version", hubtypes.DownstreamHTTPProtocolVersion)
}

// handleMCPPost serves POST /mcp: a single JSON-RPC request in, its
// response out, per spec §6. A client that sends no Mcp-Session-Id is
// served statelessly against a throwaway session; a client that sends
// "initialize" without one gets a freshly minted session back on the
// response header.
func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	setProtocolVersionHeader(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req hubtypes.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusOK, hubtypes.Response{
			JSONRPC: hubtypes.JSONRPCVersion,
			Error:   &hubtypes.RPCError{Code: hubtypes.CodeParseError, Message: "invalid JSON: " + err.Error()},
		})
		return
	}

	sess, minted := s.resolveSession(r, req.Method)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	s.metrics.observeRequest(req.Method)

	resp := s.hub.Dispatch(r.Context(), sess, &req)
	if minted {
		w.Header().Set(sessionIDHeader, sess.ID)
	}
	if resp == nil {
		// Notification: no body, per JSON-RPC convention.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if resp.Error != nil {
		s.metrics.observeError(req.Method)
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveSession looks up the session named by the Mcp-Session-Id
// header. With no header present, "initialize" mints and tracks a new
// session (reported back via the response header); any other method
// runs against a short-lived, untracked session, i.e. fully stateless.
func (s *Server) resolveSession(r *http.Request, method string) (sess *session.Session, minted bool) {
	if id := r.Header.Get(sessionIDHeader); id != "" {
		found, ok := s.sessions.Get(id)
		if !ok {
			return nil, false
		}
		return found, false
	}
	if method == "initialize" {
		return s.sessions.Create("http-client", ""), true
	}
	// No header and not initializing: serve statelessly against an
	// untracked session so the manager never accumulates one-shot
	// entries for callers that never establish a real session.
	return session.New("http-client-stateless", ""), false
}

// handleMCPGet serves GET /mcp: in stateless mode this always 405s; in
// stateful mode it upgrades to the same SSE notification stream as
// /sse, correlated to the caller's Mcp-Session-Id.
func (s *Server) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	if s.stateless {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "server is running in stateless mode")
		return
	}
	s.streamSSE(w, r)
}

// handleMCPDelete serves DELETE /mcp: terminates the named session.
func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionIDHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}
	if _, ok := s.sessions.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.broadcast.remove(id)
	s.sessions.Close(id)
	w.WriteHeader(http.StatusOK)
}
