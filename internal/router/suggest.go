package router

import (
	"fmt"
	"sort"

	"github.com/agext/levenshtein"
	"github.com/hatago/hatago/internal/hubtypes"
)

const maxSuggestions = 5

// toolNotFoundError builds the CodeMethodNotFound-adjacent "did you
// mean" response for an unresolvable tool name, per spec §4.3/§9:
// candidates within floor(len(name)/2) edits of name, closest first, top
// 5. Grounded on codeready-toolchain-tarsy's use of
// github.com/agext/levenshtein for fuzzy command matching.
func (r *Router) toolNotFoundError(name string) *hubtypes.RPCError {
	suggestions := r.suggestToolNames(name)
	return &hubtypes.RPCError{
		Code:    hubtypes.CodeMethodNotFound,
		Message: fmt.Sprintf("tool %q not found", name),
		Data: &hubtypes.ErrorData{
			HatagoCode:  "tool_not_found",
			Recoverable: false,
			Suggestions: suggestions,
		},
	}
}

func (r *Router) suggestToolNames(name string) []string {
	threshold := len(name) / 2

	type candidate struct {
		name string
		dist int
	}
	var candidates []candidate
	for _, t := range r.reg.ListTools() {
		d := levenshtein.Distance(name, t.Name, nil)
		if d <= threshold {
			candidates = append(candidates, candidate{name: t.Name, dist: d})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}
