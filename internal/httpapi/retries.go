package httpapi

import "github.com/hatago/hatago/internal/supervisor"

// WireRetryCounter subscribes to bus and counts every
// EventActivationFailed as a retry for the retries_total metric. The
// supervisor publishes that event each time an activation attempt or an
// active transport fails and the upstream enters COOLDOWN, ahead of any
// backoff-delayed restart (spec §4.1). Callers typically share one Bus across all
// configured upstreams, so a single call covers the whole fleet.
func (s *Server) WireRetryCounter(bus *supervisor.Bus) {
	ch, _ := bus.Subscribe()
	go func() {
		for ev := range ch {
			if ev.Name == supervisor.EventActivationFailed {
				s.metrics.observeRetry()
			}
		}
	}()
}
