// Package registry is the capability registry: it namespaces the
// tools/resources/prompts discovered from upstreams into one federated
// set, resolves naming collisions deterministically, and computes the
// toolset hash clients use to detect changes. Grounded on the teacher's
// extractNamespacedTools namespace-guard logic, generalized to the four
// naming strategies and three collision policies of spec §4.2.
package registry

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hatago/hatago/internal/cache"
	"github.com/hatago/hatago/internal/hubtypes"
)

// Capability is the cached outcome of a discovery probe for an optional
// method, per spec §4.2's capabilityOf.
type Capability int

const (
	CapabilityUnknown Capability = iota
	CapabilitySupported
	CapabilityUnsupported
)

type toolEntry struct{ hubtypes.Tool }

func (t toolEntry) schemaBytes() json.RawMessage { return t.InputSchema }

// EventName is the closed set of events the registry emits.
type EventName string

const (
	EventToolRegistered    EventName = "tool:registered"
	EventToolUnregistered  EventName = "tool:unregistered"
	EventResourceCollision EventName = "resource:collision"
	EventToolsetChanged    EventName = "toolset:changed"
	EventResourcesChanged  EventName = "resources:changed"
	EventPromptsChanged    EventName = "prompts:changed"
)

// Event is published on the registry's Bus.
type Event struct {
	Name     EventName
	ServerID string
	Data     any
}

// Bus fans out registry events to subscribers without blocking. Same
// pattern as internal/supervisor's Bus (itself adapted from the
// teacher's audit bus), kept as a sibling type rather than shared so
// each component owns its own closed event vocabulary.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus { return &Bus{subs: make(map[chan Event]struct{})} }

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

// Registry holds the federated tool/resource/prompt tables. All mutating
// operations take a single writer lock; reads (List*/Resolve*) take a
// read lock and never wait on other readers, per spec §5's single
// writer / many reader discipline.
type Registry struct {
	naming NamingConfig
	bus    *Bus

	mu        sync.RWMutex
	tools     map[string]hubtypes.Tool     // publicName -> entry
	resources map[string]hubtypes.Resource // publicURI -> entry
	prompts   map[string]hubtypes.Prompt   // publicName -> entry

	byServerTools     map[string]map[string]struct{}
	byServerResources map[string]map[string]struct{}
	byServerPrompts   map[string]map[string]struct{}

	toolsetHashFull  string
	toolsetHashShort string
	revision         atomic.Int64

	capCache *cache.Cache[capKey, Capability]
}

type capKey struct {
	serverID string
	method   string
}

// New creates an empty registry under the given naming configuration.
func New(naming NamingConfig, bus *Bus) *Registry {
	if bus == nil {
		bus = NewBus()
	}
	return &Registry{
		naming:            naming,
		bus:               bus,
		tools:             make(map[string]hubtypes.Tool),
		resources:         make(map[string]hubtypes.Resource),
		prompts:           make(map[string]hubtypes.Prompt),
		byServerTools:     make(map[string]map[string]struct{}),
		byServerResources: make(map[string]map[string]struct{}),
		byServerPrompts:   make(map[string]map[string]struct{}),
		capCache:          cache.New[capKey, Capability](4096, 0),
	}
}

// RegisterServerTools atomically replaces serverID's published tool set,
// computing the added/removed delta, recomputing the toolset hash, and
// emitting tool:registered/tool:unregistered events. Per spec §4.2.
func (r *Registry) RegisterServerTools(serverID string, tools []hubtypes.Tool) {
	r.mu.Lock()

	r.unregisterServerToolsLocked(serverID)

	// Deterministic ascending (serverID, originalName) order, per spec §4.2.
	sorted := append([]hubtypes.Tool(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OriginalName < sorted[j].OriginalName })

	added := make([]string, 0, len(sorted))
	for _, t := range sorted {
		t.ServerID = serverID
		public, ok := r.resolveCollisionLocked(r.tools, serverID, t.OriginalName)
		if !ok {
			slog.Warn("tool collision rejected", "server", serverID, "tool", t.OriginalName)
			continue
		}
		t.Name = public
		r.tools[public] = t
		if r.byServerTools[serverID] == nil {
			r.byServerTools[serverID] = make(map[string]struct{})
		}
		r.byServerTools[serverID][public] = struct{}{}
		added = append(added, public)
	}

	r.recomputeToolsetHashLocked()
	r.revision.Add(1)
	r.mu.Unlock()

	for _, name := range added {
		r.bus.Publish(Event{Name: EventToolRegistered, ServerID: serverID, Data: name})
	}
	r.bus.Publish(Event{Name: EventToolsetChanged, ServerID: serverID})
}

// UnregisterServer drops every tool/resource/prompt owned by serverID,
// e.g. when its upstream leaves ACTIVE state. Per the data-model
// invariant that non-ACTIVE upstreams contribute no registry entries.
func (r *Registry) UnregisterServer(serverID string) {
	r.mu.Lock()
	removed := r.unregisterServerToolsLocked(serverID)
	r.unregisterServerResourcesLocked(serverID)
	r.unregisterServerPromptsLocked(serverID)
	r.recomputeToolsetHashLocked()
	r.revision.Add(1)
	r.mu.Unlock()

	for _, name := range removed {
		r.bus.Publish(Event{Name: EventToolUnregistered, ServerID: serverID, Data: name})
	}
	r.bus.Publish(Event{Name: EventToolsetChanged, ServerID: serverID})
	r.bus.Publish(Event{Name: EventResourcesChanged, ServerID: serverID})
	r.bus.Publish(Event{Name: EventPromptsChanged, ServerID: serverID})
}

func (r *Registry) unregisterServerToolsLocked(serverID string) []string {
	names := r.byServerTools[serverID]
	removed := make([]string, 0, len(names))
	for name := range names {
		delete(r.tools, name)
		removed = append(removed, name)
	}
	delete(r.byServerTools, serverID)
	return removed
}

// resolveCollisionLocked computes the public name for (serverID,
// original) under r.naming, applying collisionPolicy if the naming
// strategy's candidate name is already taken by a different server. ok
// is false only under CollisionError, where the entry must be dropped.
func (r *Registry) resolveCollisionLocked(table map[string]hubtypes.Tool, serverID, original string) (string, bool) {
	candidate := r.naming.publicName(serverID, original)
	existing, taken := table[candidate]
	if !taken || existing.ServerID == serverID {
		return candidate, true
	}

	switch r.naming.CollisionPolicy {
	case CollisionPrefix:
		fallback := r.naming.namespacedFallback(serverID, original)
		return fallback, true
	case CollisionRename:
		for i := 2; ; i++ {
			renamed := candidate + "~" + itoa(i)
			if _, taken := table[renamed]; !taken {
				return renamed, true
			}
		}
	default: // CollisionError
		return "", false
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	pos := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		pos--
		b[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		b[pos] = '-'
	}
	return string(b[pos:])
}

func (r *Registry) recomputeToolsetHashLocked() {
	hashables := make(map[string]hashable, len(r.tools))
	for name, t := range r.tools {
		hashables[name] = toolEntry{t}
	}
	r.toolsetHashFull, r.toolsetHashShort = computeToolsetHash(hashables)
}

// ResolvePublicTool resolves a federated tool name back to its owning
// server and original name.
func (r *Registry) ResolvePublicTool(publicName string) (serverID, originalName string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[publicName]
	if !ok {
		return "", "", false
	}
	return t.ServerID, t.OriginalName, true
}

// ListTools returns the union of currently-reachable tools, sorted by
// public name for deterministic output.
func (r *Registry) ListTools() []hubtypes.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hubtypes.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToolsetHash returns the transport-truncated and full toolset hashes,
// plus the current revision counter.
func (r *Registry) ToolsetHash() (short, full string, revision int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toolsetHashShort, r.toolsetHashFull, r.revision.Load()
}

// Subscribe registers a listener on the registry's event bus. Call the
// returned disposer to unsubscribe; it is idempotent.
func (r *Registry) Subscribe() (ch <-chan Event, dispose func()) {
	return r.bus.Subscribe()
}

// CapabilityOf returns the cached discovery outcome for (serverID,
// method); CapabilityUnknown if never probed.
func (r *Registry) CapabilityOf(serverID, method string) Capability {
	v, ok := r.capCache.Get(capKey{serverID, method})
	if !ok {
		return CapabilityUnknown
	}
	return v
}

// SetCapability records the discovery outcome for (serverID, method).
// Per spec §4.2/§7, a -32601 response records CapabilityUnsupported so
// future re-use skips the pointless call.
func (r *Registry) SetCapability(serverID, method string, c Capability) {
	r.capCache.Set(capKey{serverID, method}, c)
}

// ClearServerCapabilities drops cached capability flags for serverID,
// called on deactivation so the next activation re-probes from scratch.
func (r *Registry) ClearServerCapabilities(serverID string) {
	r.capCache.InvalidateFunc(func(k capKey) bool { return k.serverID == serverID })
}
