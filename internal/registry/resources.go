package registry

import (
	"log/slog"
	"sort"

	"github.com/hatago/hatago/internal/hubtypes"
)

// RegisterServerResources atomically replaces serverID's published
// resource set. Resources are keyed by URI, which the spec assumes
// unique across upstreams (§9 Open Question 2); when two ACTIVE
// upstreams report the same URI, the colliding resource is namespaced
// as serverId + "::" + uri (mirroring the tool namespace convention)
// and a resource:collision event is emitted — see SPEC_FULL.md's
// decision on this open question.
func (r *Registry) RegisterServerResources(serverID string, resources []hubtypes.Resource) {
	r.mu.Lock()

	r.unregisterServerResourcesLocked(serverID)

	sorted := append([]hubtypes.Resource(nil), resources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URI < sorted[j].URI })

	var collided []string
	for _, res := range sorted {
		res.OriginalURI = res.URI
		res.ServerID = serverID

		public := res.URI
		if existing, taken := r.resources[public]; taken && existing.ServerID != serverID {
			public = serverID + "::" + res.URI
			collided = append(collided, public)
		}
		res.URI = public

		r.resources[public] = res
		if r.byServerResources[serverID] == nil {
			r.byServerResources[serverID] = make(map[string]struct{})
		}
		r.byServerResources[serverID][public] = struct{}{}
	}
	r.mu.Unlock()

	for _, uri := range collided {
		slog.Warn("resource uri collision, namespaced", "server", serverID, "uri", uri)
		r.bus.Publish(Event{Name: EventResourceCollision, ServerID: serverID, Data: uri})
	}
	r.bus.Publish(Event{Name: EventResourcesChanged, ServerID: serverID})
}

func (r *Registry) unregisterServerResourcesLocked(serverID string) {
	for uri := range r.byServerResources[serverID] {
		delete(r.resources, uri)
	}
	delete(r.byServerResources, serverID)
}

// ResolveResourceURI finds the upstream owning a (possibly namespaced)
// resource URI for resources/read.
func (r *Registry) ResolveResourceURI(publicURI string) (serverID, originalURI string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[publicURI]
	if !ok {
		return "", "", false
	}
	return res.ServerID, res.OriginalURI, true
}

// ListResources returns the union of currently-reachable resources.
func (r *Registry) ListResources() []hubtypes.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hubtypes.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}
