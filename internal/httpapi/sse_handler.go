package httpapi

import (
	"fmt"
	"net/http"
	"time"
)

// sseDrainInterval is how often a streaming connection polls its
// session's ProgressQueue for frames to flush downstream.
const sseDrainInterval = 50 * time.Millisecond

// handleSSE serves GET /sse: progress and list_changed notifications
// for one session, correlated by Mcp-Session-Id, streamed as
// `data: <json>` lines until the client disconnects. Grounded on the
// teacher's internal/api auditSSEHandler/approvalSSEHandler streaming
// idiom (flush-per-event over a ticker, context-cancellation exit).
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	s.streamSSE(w, r)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionIDHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		return
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	setProtocolVersionHeader(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.broadcast.add(sess)
	s.metrics.sseConnected()
	defer func() {
		s.broadcast.remove(sess.ID)
		s.metrics.sseDisconnected()
	}()

	ticker := time.NewTicker(sseDrainInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, frame := range sess.ProgressQueue().Drain() {
				if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}
