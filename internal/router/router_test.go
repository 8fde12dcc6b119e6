package router

import (
	"context"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/supervisor"
	"github.com/hatago/hatago/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Router, *registry.Registry, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	reg.RegisterServerTools("srv1", []hubtypes.Tool{{OriginalName: "echo"}, {OriginalName: "ping"}})

	up := supervisor.New(supervisor.Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
	}, supervisor.NewBus(), reg)

	return New(reg, map[string]*supervisor.Upstream{"srv1": up}), reg, ft
}

func TestCallTool_UnknownName_SuggestsClosest(t *testing.T) {
	r, _, _ := newTestRouter(t)

	_, rpcErr := r.CallTool(context.Background(), nil, hubtypes.CallToolRequest{Name: "ech_srv1"})
	require.NotNil(t, rpcErr)
	require.Equal(t, hubtypes.CodeMethodNotFound, rpcErr.Code)
	require.NotNil(t, rpcErr.Data)
	require.Contains(t, rpcErr.Data.Suggestions, "echo_srv1")
}

func TestCallTool_ActivatesUpstreamOnDemand(t *testing.T) {
	r, _, _ := newTestRouter(t)

	result, rpcErr := r.CallTool(context.Background(), nil, hubtypes.CallToolRequest{Name: "echo_srv1"})
	require.Nil(t, rpcErr)
	require.NotNil(t, result)
}

func TestGetPrompt_NotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, rpcErr := r.GetPrompt(context.Background(), hubtypes.GetPromptRequest{Name: "missing"})
	require.NotNil(t, rpcErr)
	require.Equal(t, hubtypes.CodeMethodNotFound, rpcErr.Code)
}

func TestReadResource_NotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, rpcErr := r.ReadResource(context.Background(), "file:///missing")
	require.NotNil(t, rpcErr)
	require.Equal(t, hubtypes.CodeMethodNotFound, rpcErr.Code)
}
