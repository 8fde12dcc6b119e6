// Package httpapi is the streamable-HTTP downstream surface, generalized
// from the teacher's internal/api/router.go and middleware.go: the same
// request-ID-injecting, access-logged, CORS-for-local-origins mux
// structure, now hosting the spec's POST/GET/DELETE /mcp, GET /sse,
// GET /health and GET /metrics instead of the teacher's workspace/
// downstream/route/auth/audit admin surfaces.
package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/hatago/hatago/internal/hub"
	"github.com/hatago/hatago/internal/session"
)

// Deps holds everything the HTTP surface needs to serve requests,
// mirroring the teacher's RouterDeps shape.
type Deps struct {
	Hub      *hub.Hub
	Sessions *session.Manager

	// Stateless, when true, makes GET /mcp always return 405 (spec
	// §6's "server is permitted to be stateless" branch).
	Stateless bool
}

// Server is the streamable-HTTP + SSE downstream transport.
type Server struct {
	hub       *hub.Hub
	sessions  *session.Manager
	stateless bool
	broadcast *broadcaster
	metrics   *metrics
	startedAt time.Time
}

// NewServer wires a Server ready to produce an http.Handler via Handler.
func NewServer(deps Deps) *Server {
	return &Server{
		hub:       deps.Hub,
		sessions:  deps.Sessions,
		stateless: deps.Stateless,
		broadcast: newBroadcaster(),
		metrics:   newMetrics(),
		startedAt: time.Now(),
	}
}

// Handler builds the full mux with middleware applied, matching the
// teacher's loggingMiddleware(requestIDMiddleware(corsMiddleware(mux)))
// chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /mcp", s.handleMCPPost)
	mux.HandleFunc("GET /mcp", s.handleMCPGet)
	mux.HandleFunc("DELETE /mcp", s.handleMCPDelete)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /health", s.handleHealth)

	if os.Getenv("HATAGO_METRICS") == "1" {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}

	// The hub's debounced list_changed notifications fan out to every
	// currently streaming session via the broadcaster.
	s.hub.SetNotifier(s.broadcast)

	return loggingMiddleware(requestIDMiddleware(corsMiddleware(securityHeadersMiddleware(mux))))
}
