package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/transport"
	"github.com/stretchr/testify/require"
)

func newTestUpstream(t *testing.T, ft *fakeTransport) (*Upstream, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	u := New(Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
	}, NewBus(), reg)
	return u, reg
}

func TestActivate_SucceedsAndRegistersTools(t *testing.T) {
	ft := newFakeTransport()
	u, reg := newTestUpstream(t, ft)

	err := u.Activate(context.Background(), SourceToolCall)
	require.NoError(t, err)
	require.Equal(t, StateActive, u.State())
	require.Len(t, reg.ListTools(), 1)
}

// P1: at most one activation attempt is ever in flight for a given
// server, regardless of how many callers call Activate concurrently.
func TestActivate_SingleFlight(t *testing.T) {
	ft := newFakeTransport()
	u, _ := newTestUpstream(t, ft)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = u.Activate(context.Background(), SourceToolCall)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, StateActive, u.State())
	// initialize + notifications/initialized + tools/list + resources/list
	// + prompts/list = 5 sends, no matter how many goroutines called
	// Activate.
	require.Equal(t, int64(5), ft.sendCount.Load())
}

func TestActivate_UnsupportedDiscoveryMethodCached(t *testing.T) {
	ft := newFakeTransport()
	ft.unsupportedMethods["resources/list"] = true
	u, reg := newTestUpstream(t, ft)

	require.NoError(t, u.Activate(context.Background(), SourceToolCall))
	require.Equal(t, registry.CapabilityUnsupported, reg.CapabilityOf("srv1", "resources/list"))
	require.Empty(t, reg.ListResources())
}

func TestActivate_TransportStartFailureEntersCooldown(t *testing.T) {
	ft := newFakeTransport()
	ft.startErr = errors.New("spawn failed")
	u, _ := newTestUpstream(t, ft)

	err := u.Activate(context.Background(), SourceToolCall)
	require.Error(t, err)
	require.Equal(t, StateCooldown, u.State())
}

func TestActivate_AlreadyActiveIsNoop(t *testing.T) {
	ft := newFakeTransport()
	u, _ := newTestUpstream(t, ft)
	require.NoError(t, u.Activate(context.Background(), SourceToolCall))
	sendsAfterFirst := ft.sendCount.Load()

	require.NoError(t, u.Activate(context.Background(), SourceToolCall))
	require.Equal(t, sendsAfterFirst, ft.sendCount.Load())
}
