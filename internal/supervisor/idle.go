package supervisor

import (
	"context"
	"encoding/json"
	"time"
)

func unmarshalInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// scheduleIdle arms the idle timer when the upstream has no more
// in-flight callers. Per spec §4.1/§9, the delay is
// max(idleTimeout - timeSinceBecameIdle, minLinger - runtime); since the
// reaper fires the instant refCount reaches zero, that reduces to
// max(idleTimeout, minLinger) measured from now, using whichever the
// operator configured.
func (u *Upstream) scheduleIdle() {
	if u.cfg.IdleTimeout <= 0 {
		return
	}

	u.mu.Lock()
	if u.state != StateActive || u.refCount != 0 {
		u.mu.Unlock()
		return
	}
	if err := u.transitionLocked(StateIdling); err != nil {
		u.mu.Unlock()
		return
	}
	delay := u.cfg.IdleTimeout
	if u.cfg.MinLinger > delay {
		delay = u.cfg.MinLinger
	}
	if u.idleTimer != nil {
		u.idleTimer.Stop()
	}
	u.idleTimer = time.AfterFunc(delay, u.onIdleTimeout)
	u.mu.Unlock()

	u.bus.Publish(Event{Name: EventIdleScheduled, ServerID: u.cfg.ServerID, Data: delay})
}

func (u *Upstream) onIdleTimeout() {
	u.mu.Lock()
	if u.state != StateIdling || u.refCount != 0 {
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()

	u.stopForIdle()
}

func (u *Upstream) stopForIdle() {
	u.mu.Lock()
	if err := u.transitionLocked(StateStopping); err != nil {
		u.mu.Unlock()
		return
	}
	tr := u.tr
	u.tr = nil
	u.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	if u.reg != nil {
		u.reg.UnregisterServer(u.cfg.ServerID)
		u.reg.ClearServerCapabilities(u.cfg.ServerID)
	}

	u.mu.Lock()
	_ = u.transitionLocked(StateInactive)
	u.mu.Unlock()

	u.bus.Publish(Event{Name: EventIdleStopped, ServerID: u.cfg.ServerID})
}

// Shutdown forcibly stops the upstream regardless of refCount, within
// deadline. Called on hub shutdown for every managed upstream.
//
// ACTIVATING and COOLDOWN cannot transition directly to STOPPING (see
// allowedEdges in state.go), so those two states are walked down to
// INACTIVE via their own legal edges (ACTIVATING->ERROR->COOLDOWN->
// INACTIVE, COOLDOWN->INACTIVE) instead of going through STOPPING; the
// transport, if one was already started mid-activation, is still closed
// directly so a shutdown can never leak a child process.
func (u *Upstream) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	if u.idleTimer != nil {
		u.idleTimer.Stop()
		u.idleTimer = nil
	}
	state := u.state
	if state == StateInactive {
		u.mu.Unlock()
		return nil
	}

	tr := u.tr
	u.tr = nil

	switch state {
	case StateActivating:
		_ = u.transitionLocked(StateError)
		_ = u.transitionLocked(StateCooldown)
		_ = u.transitionLocked(StateInactive)
		u.mu.Unlock()
		return u.closeTransport(ctx, tr)
	case StateCooldown:
		_ = u.transitionLocked(StateInactive)
		u.mu.Unlock()
		return u.closeTransport(ctx, tr)
	case StateError:
		_ = u.transitionLocked(StateCooldown)
		_ = u.transitionLocked(StateInactive)
		u.mu.Unlock()
		return u.closeTransport(ctx, tr)
	}

	if err := u.transitionLocked(StateStopping); err != nil {
		u.tr = tr
		u.mu.Unlock()
		return err
	}
	u.mu.Unlock()

	if err := u.closeTransport(ctx, tr); err != nil {
		return err
	}

	if u.reg != nil {
		u.reg.UnregisterServer(u.cfg.ServerID)
	}

	u.mu.Lock()
	_ = u.transitionLocked(StateInactive)
	u.mu.Unlock()
	return nil
}

// closeTransport closes tr (if non-nil) in a goroutine so a hung Close
// cannot block Shutdown past ctx's deadline.
func (u *Upstream) closeTransport(ctx context.Context, tr interface{ Close() error }) error {
	if tr == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
