package store

import (
	"context"
	"time"

	"github.com/hatago/hatago/internal/registry"
	"github.com/hatago/hatago/internal/supervisor"
)

// WireUpstreamPersistence subscribes to bus and marks w with an updated
// UpstreamState on every lifecycle transition, so the debounced writer
// always has a fresh record to flush. This is display-only bookkeeping
// (spec §6): nothing here feeds back into registry or supervisor state.
func WireUpstreamPersistence(bus *supervisor.Bus, reg *registry.Registry, w *Writer) {
	ch, _ := bus.Subscribe()
	go func() {
		for ev := range ch {
			switch ev.Name {
			case supervisor.EventStateChanged:
				states, ok := ev.Data.([2]supervisor.State)
				if !ok {
					continue
				}
				markTransition(reg, w, ev.ServerID, states[1])
			case supervisor.EventActivationFailed:
				reason, _ := ev.Data.(string)
				markFailure(w, ev.ServerID, reason)
			}
		}
	}()
}

func markTransition(reg *registry.Registry, w *Writer, serverID string, next supervisor.State) {
	s, err := w.store.LoadUpstreamState(context.Background(), serverID)
	if err != nil {
		s = UpstreamState{ServerID: serverID}
	}

	switch next {
	case supervisor.StateActive:
		s.LastStartedAt = now()
		s.DiscoveredToolNames = toolNamesFor(reg, serverID)
	case supervisor.StateInactive, supervisor.StateStopping:
		s.LastStoppedAt = now()
	}
	w.Mark(s)
}

func markFailure(w *Writer, serverID, reason string) {
	s := UpstreamState{ServerID: serverID, LastFailureAt: now(), LastFailureReason: reason}
	w.mu.Lock()
	if existing, ok := w.pending[serverID]; ok {
		existing.LastFailureAt = s.LastFailureAt
		existing.LastFailureReason = s.LastFailureReason
		existing.RestartCount++
		s = existing
	}
	w.mu.Unlock()
	w.Mark(s)
}

func toolNamesFor(reg *registry.Registry, serverID string) []string {
	var names []string
	for _, t := range reg.ListTools() {
		if t.ServerID == serverID {
			names = append(names, t.OriginalName)
		}
	}
	return names
}

func now() time.Time { return time.Now() }
