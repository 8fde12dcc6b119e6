package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/transport"
	"github.com/stretchr/testify/require"
)

func newPolicyUpstream(t *testing.T, policy ActivationPolicy) *Upstream {
	t.Helper()
	ft := newFakeTransport()
	reg := registry.New(registry.DefaultNamingConfig(), nil)
	return New(Config{
		ServerID:         "srv1",
		NewTransport:     func() transport.Transport { return ft },
		ActivationPolicy: policy,
		ConnectTimeout:   time.Second,
		CallTimeout:      time.Second,
	}, NewBus(), reg)
}

func TestActivationPolicy_ManualDeniesToolCall(t *testing.T) {
	u := newPolicyUpstream(t, ActivationManual)

	err := u.Activate(context.Background(), SourceToolCall)
	require.ErrorIs(t, err, ErrActivationDenied)
	require.Equal(t, StateInactive, u.State())
}

func TestActivationPolicy_ManualAllowsManualSource(t *testing.T) {
	u := newPolicyUpstream(t, ActivationManual)

	err := u.Activate(context.Background(), SourceManual)
	require.NoError(t, err)
	require.Equal(t, StateActive, u.State())
}

func TestActivationPolicy_AlwaysDeniesToolCallButAllowsStartup(t *testing.T) {
	u := newPolicyUpstream(t, ActivationAlways)

	err := u.Activate(context.Background(), SourceToolCall)
	require.ErrorIs(t, err, ErrActivationDenied)
	require.Equal(t, StateInactive, u.State())

	require.NoError(t, u.Activate(context.Background(), SourceStartup))
	require.Equal(t, StateActive, u.State())
}

func TestActivationPolicy_OnDemandAllowsAnySource(t *testing.T) {
	u := newPolicyUpstream(t, ActivationOnDemand)
	require.NoError(t, u.Activate(context.Background(), SourceToolCall))
}

func TestActivationPolicy_ZeroValueDefaultsToOnDemand(t *testing.T) {
	u := newPolicyUpstream(t, "")
	require.NoError(t, u.Activate(context.Background(), SourceToolCall))
}
