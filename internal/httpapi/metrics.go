package httpapi

import (
	"net/http"
	"sync/atomic"
)

// metrics is the JSON counter snapshot spec §6's GET /metrics (gated on
// HATAGO_METRICS=1) exposes, mirroring the teacher's habit of gating
// optional surfaces behind an environment variable rather than a config
// flag (cmd/mcplexer does the same for its dashboard/audit features).
type metrics struct {
	toolCallsTotal  atomic.Int64
	toolErrorsTotal atomic.Int64
	retriesTotal    atomic.Int64
	sseClients      atomic.Int64
}

func newMetrics() *metrics { return &metrics{} }

func (m *metrics) observeRequest(method string) {
	if method == "tools/call" {
		m.toolCallsTotal.Add(1)
	}
}

func (m *metrics) observeError(method string) {
	if method == "tools/call" {
		m.toolErrorsTotal.Add(1)
	}
}

func (m *metrics) observeRetry() { m.retriesTotal.Add(1) }

func (m *metrics) sseConnected()    { m.sseClients.Add(1) }
func (m *metrics) sseDisconnected() { m.sseClients.Add(-1) }

type metricsResponse struct {
	ToolCallsTotal  int64 `json:"tool_calls_total"`
	ToolErrorsTotal int64 `json:"tool_errors_total"`
	RetriesTotal    int64 `json:"retries_total"`
	ActiveSessions  int64 `json:"active_sessions"`
	SSEClients      int64 `json:"sse_clients"`
}

// handleMetrics serves GET /metrics. Only registered when HATAGO_METRICS=1.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metricsResponse{
		ToolCallsTotal:  s.metrics.toolCallsTotal.Load(),
		ToolErrorsTotal: s.metrics.toolErrorsTotal.Load(),
		RetriesTotal:    s.metrics.retriesTotal.Load(),
		ActiveSessions:  int64(s.sessions.Len()),
		SSEClients:      s.metrics.sseClients.Load(),
	})
}
