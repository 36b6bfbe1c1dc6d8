package subagent

import (
	"sort"
	"strings"

	"github.com/coreagent/runtime/agent/core"
)

// knownAgentTypes lists every built-in SubagentType for SuggestAgents. Its
// order does not affect results: matches are sorted by length, then name.
var knownAgentTypes = []core.SubagentType{
	core.SubagentExplore,
	core.SubagentPlan,
	core.SubagentBash,
	core.SubagentGeneralPurpose,
}

// SuggestAgents implements the agent prefix autocomplete from spec.md §8
// scenario S1: given a query like "agent-exp", strip any "agent-" prefix and
// return every known agent type (built-ins plus any custom names the caller
// passes in customTypes) whose name starts with the remaining text, ranked
// shortest-name-first then alphabetically so the most specific match comes
// first.
func SuggestAgents(query string, customTypes []string) []string {
	q := strings.TrimPrefix(query, "agent-")
	q = strings.TrimPrefix(q, "agent ")

	candidates := make([]string, 0, len(knownAgentTypes)+len(customTypes))
	for _, t := range knownAgentTypes {
		candidates = append(candidates, string(t))
	}
	candidates = append(candidates, customTypes...)

	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, q) {
			matches = append(matches, c)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return matches
}
