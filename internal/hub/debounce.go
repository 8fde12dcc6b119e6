package hub

import (
	"sync"
	"time"

	"github.com/hatago/hatago/internal/registry"
)

// listChangedDebounce is the minimum interval between successive
// notifications/*/list_changed frames of the same kind, per spec §4.5.
const listChangedDebounce = 100 * time.Millisecond

// debouncedNotifier coalesces bursts of registry change events into at
// most one notification per kind per listChangedDebounce window.
// Adapted from the "debounced persistence" design note's aggregating-
// writer pattern, applied to outbound notifications instead of storage
// writes.
type debouncedNotifier struct {
	underlying Notifier

	mu      sync.Mutex
	timers  map[string]*time.Timer
}

func newDebouncedNotifier(n Notifier) *debouncedNotifier {
	return &debouncedNotifier{underlying: n, timers: make(map[string]*time.Timer)}
}

func (d *debouncedNotifier) schedule(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, pending := d.timers[method]; pending {
		return
	}
	d.timers[method] = time.AfterFunc(listChangedDebounce, func() {
		d.mu.Lock()
		delete(d.timers, method)
		underlying := d.underlying
		d.mu.Unlock()
		if underlying != nil {
			_ = underlying.Notify(method, struct{}{})
		}
	})
}

// watchRegistry subscribes to the registry's event bus for the
// remainder of the Hub's lifetime, translating toolset/resources/
// prompts change events into debounced list_changed notifications.
func (h *Hub) watchRegistry() {
	ch, _ := h.reg.Subscribe()
	go func() {
		for ev := range ch {
			switch ev.Name {
			case registry.EventToolsetChanged:
				h.notifier.schedule("notifications/tools/list_changed")
			case registry.EventResourcesChanged:
				h.notifier.schedule("notifications/resources/list_changed")
			case registry.EventPromptsChanged:
				h.notifier.schedule("notifications/prompts/list_changed")
			}
		}
	}()
}
