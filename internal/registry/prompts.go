package registry

import (
	"sort"

	"github.com/hatago/hatago/internal/hubtypes"
)

// RegisterServerPrompts atomically replaces serverID's published prompt
// set, under the same naming/collision rules as tools.
func (r *Registry) RegisterServerPrompts(serverID string, prompts []hubtypes.Prompt) {
	r.mu.Lock()

	r.unregisterServerPromptsLocked(serverID)

	sorted := append([]hubtypes.Prompt(nil), prompts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OriginalName < sorted[j].OriginalName })

	for _, p := range sorted {
		p.ServerID = serverID
		public, ok := r.resolvePromptCollisionLocked(serverID, p.OriginalName)
		if !ok {
			continue
		}
		p.Name = public
		r.prompts[public] = p
		if r.byServerPrompts[serverID] == nil {
			r.byServerPrompts[serverID] = make(map[string]struct{})
		}
		r.byServerPrompts[serverID][public] = struct{}{}
	}
	r.mu.Unlock()

	r.bus.Publish(Event{Name: EventPromptsChanged, ServerID: serverID})
}

func (r *Registry) resolvePromptCollisionLocked(serverID, original string) (string, bool) {
	candidate := r.naming.publicName(serverID, original)
	existing, taken := r.prompts[candidate]
	if !taken || existing.ServerID == serverID {
		return candidate, true
	}
	switch r.naming.CollisionPolicy {
	case CollisionPrefix:
		return r.naming.namespacedFallback(serverID, original), true
	case CollisionRename:
		for i := 2; ; i++ {
			renamed := candidate + "~" + itoa(i)
			if _, taken := r.prompts[renamed]; !taken {
				return renamed, true
			}
		}
	default:
		return "", false
	}
}

func (r *Registry) unregisterServerPromptsLocked(serverID string) {
	for name := range r.byServerPrompts[serverID] {
		delete(r.prompts, name)
	}
	delete(r.byServerPrompts, serverID)
}

// ResolvePublicPrompt resolves a federated prompt name to its owner.
func (r *Registry) ResolvePublicPrompt(publicName string) (serverID, originalName string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[publicName]
	if !ok {
		return "", "", false
	}
	return p.ServerID, p.OriginalName, true
}

// ListPrompts returns the union of currently-reachable prompts.
func (r *Registry) ListPrompts() []hubtypes.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]hubtypes.Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
