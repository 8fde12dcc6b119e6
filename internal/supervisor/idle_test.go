package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/transport"
	"github.com/stretchr/testify/require"
)

// P2: an upstream with refCount 0 for longer than idleTimeout
// eventually returns to INACTIVE and its registry entries are dropped.
func TestIdleReaper_StopsAfterTimeout(t *testing.T) {
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	u := New(Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
		IdleTimeout:    20 * time.Millisecond,
	}, NewBus(), reg)

	release, err := u.Acquire(context.Background(), SourceToolCall)
	require.NoError(t, err)
	require.Equal(t, StateActive, u.State())
	require.NotEmpty(t, reg.ListTools())

	release()
	require.Eventually(t, func() bool { return u.State() == StateIdling }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return u.State() == StateInactive }, time.Second, time.Millisecond)
	require.Empty(t, reg.ListTools())
	require.True(t, ft.closed.Load())
}

// A second Acquire before the idle timer fires cancels the pending
// shutdown and keeps the upstream ACTIVE without a new activation.
func TestIdleReaper_ReacquireCancelsShutdown(t *testing.T) {
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	u := New(Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
		IdleTimeout:    50 * time.Millisecond,
	}, NewBus(), reg)

	release1, err := u.Acquire(context.Background(), SourceToolCall)
	require.NoError(t, err)
	release1()

	require.Eventually(t, func() bool { return u.State() == StateIdling }, time.Second, time.Millisecond)

	release2, err := u.Acquire(context.Background(), SourceToolCall)
	require.NoError(t, err)
	require.Equal(t, StateActive, u.State())

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, StateActive, u.State())
	require.False(t, ft.closed.Load())

	release2()
}

// Shutdown called mid-activation (state ACTIVATING, handshake in
// flight) must still close the already-started transport and settle on
// INACTIVE instead of silently bailing out because STOPPING isn't a
// legal edge from ACTIVATING.
func TestShutdown_DuringActivation_ClosesTransport(t *testing.T) {
	ft := newFakeTransport()
	ft.hold = make(chan struct{})
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	u := New(Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: 10 * time.Second,
		CallTimeout:    10 * time.Second,
	}, NewBus(), reg)

	go func() { _, _ = u.Acquire(context.Background(), SourceToolCall) }()
	require.Eventually(t, func() bool { return u.State() == StateActivating }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, u.Shutdown(ctx))
	require.Equal(t, StateInactive, u.State())
	require.True(t, ft.closed.Load())
}

func TestShutdown_ForcesInactiveRegardlessOfRefCount(t *testing.T) {
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	u := New(Config{
		ServerID:       "srv1",
		NewTransport:   func() transport.Transport { return ft },
		ConnectTimeout: time.Second,
		CallTimeout:    time.Second,
	}, NewBus(), reg)

	_, err := u.Acquire(context.Background(), SourceToolCall)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, u.Shutdown(ctx))
	require.Equal(t, StateInactive, u.State())
	require.True(t, ft.closed.Load())
}
