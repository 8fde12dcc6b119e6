package supervisor

import "sync"

// EventName is a closed set of event kinds the supervisor emits, per
// spec §9's "typed channels or tiny pub-sub hub" note.
type EventName string

const (
	EventToolRegistered     EventName = "tool:registered"
	EventToolUnregistered   EventName = "tool:unregistered"
	EventStateChanged       EventName = "state:changed"
	EventActivationStart    EventName = "activation:start"
	EventActivationSuccess  EventName = "activation:success"
	EventActivationFailed   EventName = "activation:failed"
	EventIdleScheduled      EventName = "idle:scheduled"
	EventIdleStopped        EventName = "idle:stopped"
)

// Event is published on the bus; Data's shape depends on Name.
type Event struct {
	Name     EventName
	ServerID string
	Data     any
}

// Bus fans out supervisor events to subscribers without blocking.
// Adapted from internal/audit/bus.go's non-blocking publish/subscribe
// pattern, generalized from audit records to the closed Event set.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. Call the returned disposer to
// unsubscribe; it is idempotent.
func (b *Bus) Subscribe() (ch <-chan Event, dispose func()) {
	c := make(chan Event, 64)
	b.mu.Lock()
	b.subs[c] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	dispose = func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[c]; ok {
				delete(b.subs, c)
				close(c)
			}
			b.mu.Unlock()
		})
	}
	return c, dispose
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
