package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/hub"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/router"
	"github.com/hatago/hatago/internal/session"
	"github.com/hatago/hatago/internal/supervisor"
	"github.com/hatago/hatago/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()

	ft := newFakeTransport()

	reg := registry.New(registry.DefaultNamingConfig(), nil)
	up := supervisor.New(supervisor.Config{
		ServerID:     "srv1",
		NewTransport: func() transport.Transport { return ft },
		CallTimeout:  time.Second,
	}, nil, reg)
	rt := router.New(reg, map[string]*supervisor.Upstream{"srv1": up})
	sessions := session.NewManager()
	h := hub.New(reg, rt, sessions)

	srv := NewServer(Deps{Hub: h, Sessions: sessions})
	return srv, sessions
}

func TestHandleMCPPost_InitializeMintsSession(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	req := httptest.NewRequest("POST", "http://localhost/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	require.NotEmpty(t, rr.Header().Get("Mcp-Session-Id"))
	require.Equal(t, "2024-11-05", rr.Header().Get("MCP-Protocol-Version"))
}

func TestHandleMCPPost_UnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`
	req := httptest.NewRequest("POST", "http://localhost/mcp", strings.NewReader(body))
	req.Header.Set("Mcp-Session-Id", "nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 404, rr.Code)
}

func TestHandleMCPDelete_UnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest("DELETE", "http://localhost/mcp", nil)
	req.Header.Set("Mcp-Session-Id", "nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 404, rr.Code)
}

func TestHandleMCPDelete_KnownSessionIs200(t *testing.T) {
	srv, sessions := newTestServer(t)
	handler := srv.Handler()
	sess := sessions.Create("test", "")

	req := httptest.NewRequest("DELETE", "http://localhost/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sess.ID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	_, ok := sessions.Get(sess.ID)
	require.False(t, ok)
}

func TestHandleMCPGet_StatelessIs405(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.stateless = true
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "http://localhost/mcp", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 405, rr.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest("GET", "http://localhost/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}
