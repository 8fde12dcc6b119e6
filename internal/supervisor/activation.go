package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hatago/hatago/internal/hubtypes"
	"github.com/hatago/hatago/internal/registry"
	"golang.org/x/sync/errgroup"
)

// ErrActivationDenied is returned when Activate is called while the
// upstream is in a state that cannot lead to ACTIVE (e.g. mid-COOLDOWN).
var ErrActivationDenied = errors.New("supervisor: activation denied in current state")

// Acquire activates the upstream if necessary and increments its
// reference count, returning a release func the caller must invoke
// exactly once when done. Concurrent Acquire calls on an INACTIVE
// upstream collapse into a single activation attempt (spec §4.1
// invariant P1), via singleflight keyed on the server ID.
func (u *Upstream) Acquire(ctx context.Context, source Source) (release func(), err error) {
	if err := u.Activate(ctx, source); err != nil {
		return nil, err
	}

	u.mu.Lock()
	u.refCount++
	if u.idleTimer != nil {
		u.idleTimer.Stop()
		u.idleTimer = nil
	}
	if u.state == StateIdling {
		if terr := u.transitionLocked(StateActive); terr != nil {
			u.mu.Unlock()
			return nil, terr
		}
	}
	u.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { u.release() })
	}, nil
}

func (u *Upstream) release() {
	u.mu.Lock()
	if u.refCount > 0 {
		u.refCount--
	}
	shouldIdle := u.refCount == 0 && u.state == StateActive
	u.mu.Unlock()

	if shouldIdle {
		u.scheduleIdle()
	}
}

// Activate drives the upstream to ACTIVE if it is not already there,
// single-flighted per server ID so at most one activation attempt is
// ever in flight regardless of how many callers request it concurrently.
func (u *Upstream) Activate(ctx context.Context, source Source) error {
	u.mu.Lock()
	state := u.state
	u.mu.Unlock()
	if state == StateActive || state == StateIdling {
		return nil
	}
	if state != StateInactive {
		return fmt.Errorf("%w: currently %s", ErrActivationDenied, state)
	}
	if !u.cfg.allowsActivation(source) {
		return fmt.Errorf("%w: policy=%s forbids source=%s", ErrActivationDenied, u.cfg.ActivationPolicy, source)
	}

	_, err, _ := u.activation.Do(u.cfg.ServerID, func() (any, error) {
		return nil, u.doActivate(ctx)
	})
	return err
}

func (u *Upstream) doActivate(ctx context.Context) error {
	u.mu.Lock()
	if u.state == StateActive || u.state == StateIdling {
		u.mu.Unlock()
		return nil
	}
	if err := u.transitionLocked(StateActivating); err != nil {
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()
	u.bus.Publish(Event{Name: EventActivationStart, ServerID: u.cfg.ServerID})

	connectCtx, cancel := context.WithTimeout(ctx, u.cfg.ConnectTimeout)
	defer cancel()

	tr := u.cfg.NewTransport()
	tr.OnMessage(u.handleMessage)
	tr.OnError(u.handleTransportError)

	if err := tr.Start(connectCtx); err != nil {
		return u.fail(fmt.Errorf("start transport: %w", err))
	}

	u.mu.Lock()
	u.tr = tr
	u.mu.Unlock()

	if err := u.handshake(connectCtx); err != nil {
		tr.Close()
		return u.fail(fmt.Errorf("handshake: %w", err))
	}

	u.discover(ctx)

	u.mu.Lock()
	err := u.transitionLocked(StateActive)
	u.restartCount = 0
	u.mu.Unlock()
	if err != nil {
		return u.fail(err)
	}

	u.bus.Publish(Event{Name: EventActivationSuccess, ServerID: u.cfg.ServerID})
	return nil
}

func (u *Upstream) handshake(ctx context.Context) error {
	params := hubtypes.InitializeParams{
		ProtocolVersion: hubtypes.DownstreamHTTPProtocolVersion,
		ClientInfo:      hubtypes.ServerInfo{Name: "hatago", Version: "0.1.0"},
	}
	_, rpcErr, err := u.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return fmt.Errorf("initialize rejected: %s", rpcErr.Message)
	}
	return u.notify(ctx, "notifications/initialized", struct{}{})
}

// discover runs tools/list, resources/list, and prompts/list in
// parallel, each independently optional: a -32601 response records
// CapabilityUnsupported on the registry so future activations skip the
// call, per spec §4.2/§7. Discovery never fails activation; a transport
// error here surfaces via handleTransportError instead.
func (u *Upstream) discover(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { u.discoverTools(gctx); return nil })
	g.Go(func() error { u.discoverResources(gctx); return nil })
	g.Go(func() error { u.discoverPrompts(gctx); return nil })

	_ = g.Wait()
}

func (u *Upstream) discoverTools(ctx context.Context) {
	if u.reg == nil || u.reg.CapabilityOf(u.cfg.ServerID, "tools/list") == registry.CapabilityUnsupported {
		return
	}
	result, rpcErr, err := u.call(ctx, "tools/list", struct{}{})
	if err != nil {
		return
	}
	if rpcErr != nil {
		if rpcErr.Code == hubtypes.CodeMethodNotFound {
			u.reg.SetCapability(u.cfg.ServerID, "tools/list", registry.CapabilityUnsupported)
		}
		return
	}
	var parsed hubtypes.ToolsListResult
	if err := unmarshalInto(result, &parsed); err != nil {
		return
	}
	for i := range parsed.Tools {
		parsed.Tools[i].OriginalName = parsed.Tools[i].Name
	}
	u.reg.SetCapability(u.cfg.ServerID, "tools/list", registry.CapabilitySupported)
	u.reg.RegisterServerTools(u.cfg.ServerID, parsed.Tools)
}

func (u *Upstream) discoverResources(ctx context.Context) {
	if u.reg == nil || u.reg.CapabilityOf(u.cfg.ServerID, "resources/list") == registry.CapabilityUnsupported {
		return
	}
	result, rpcErr, err := u.call(ctx, "resources/list", struct{}{})
	if err != nil {
		return
	}
	if rpcErr != nil {
		if rpcErr.Code == hubtypes.CodeMethodNotFound {
			u.reg.SetCapability(u.cfg.ServerID, "resources/list", registry.CapabilityUnsupported)
		}
		return
	}
	var parsed hubtypes.ResourcesListResult
	if err := unmarshalInto(result, &parsed); err != nil {
		return
	}
	u.reg.SetCapability(u.cfg.ServerID, "resources/list", registry.CapabilitySupported)
	u.reg.RegisterServerResources(u.cfg.ServerID, parsed.Resources)
}

func (u *Upstream) discoverPrompts(ctx context.Context) {
	if u.reg == nil || u.reg.CapabilityOf(u.cfg.ServerID, "prompts/list") == registry.CapabilityUnsupported {
		return
	}
	result, rpcErr, err := u.call(ctx, "prompts/list", struct{}{})
	if err != nil {
		return
	}
	if rpcErr != nil {
		if rpcErr.Code == hubtypes.CodeMethodNotFound {
			u.reg.SetCapability(u.cfg.ServerID, "prompts/list", registry.CapabilityUnsupported)
		}
		return
	}
	var parsed hubtypes.PromptsListResult
	if err := unmarshalInto(result, &parsed); err != nil {
		return
	}
	for i := range parsed.Prompts {
		parsed.Prompts[i].OriginalName = parsed.Prompts[i].Name
	}
	u.reg.SetCapability(u.cfg.ServerID, "prompts/list", registry.CapabilitySupported)
	u.reg.RegisterServerPrompts(u.cfg.ServerID, parsed.Prompts)
}

// fail transitions the upstream to ERROR then schedules a COOLDOWN
// timer before it becomes eligible for reactivation, per spec §4.1's
// restart/backoff edge.
func (u *Upstream) fail(cause error) error {
	u.mu.Lock()
	_ = u.transitionLocked(StateError)
	u.restartCount++
	restartCount := u.restartCount
	if u.tr != nil {
		u.tr.Close()
		u.tr = nil
	}
	_ = u.transitionLocked(StateCooldown)
	u.mu.Unlock()

	if u.reg != nil {
		u.reg.UnregisterServer(u.cfg.ServerID)
		u.reg.ClearServerCapabilities(u.cfg.ServerID)
	}
	u.bus.Publish(Event{Name: EventActivationFailed, ServerID: u.cfg.ServerID, Data: cause.Error()})

	delay := u.backoff.Delay(restartCount)
	time.AfterFunc(delay, func() {
		u.mu.Lock()
		if u.state != StateCooldown {
			u.mu.Unlock()
			return
		}
		if restartCount >= u.cfg.MaxRestarts {
			_ = u.transitionLocked(StateInactive)
			u.mu.Unlock()
			return
		}
		u.mu.Unlock()
		u.autoRestart()
	})

	return cause
}

// autoRestart re-attempts activation from COOLDOWN without a client
// request driving it, per spec §4.1's restart/backoff edge. Routed
// through the same singleflight group as Activate so a concurrent
// Acquire never races it into a second attempt.
func (u *Upstream) autoRestart() {
	_, _, _ = u.activation.Do(u.cfg.ServerID, func() (any, error) {
		return nil, u.doActivate(context.Background())
	})
}
