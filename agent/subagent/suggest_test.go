package subagent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSuggestAgentsScenarioS1 implements spec.md §8 scenario S1: query
// "agent-exp" over the built-in agent types ranks "explore" first.
func TestSuggestAgentsScenarioS1(t *testing.T) {
	matches := SuggestAgents("agent-exp", nil)
	require.NotEmpty(t, matches)
	require.Equal(t, "explore", matches[0])
}

func TestSuggestAgentsIncludesCustomTypes(t *testing.T) {
	matches := SuggestAgents("agent-rev", []string{"reviewer"})
	require.Equal(t, []string{"reviewer"}, matches)
}

func TestSuggestAgentsEmptyQueryReturnsAllSortedByLength(t *testing.T) {
	matches := SuggestAgents("", nil)
	require.Equal(t, []string{"bash", "plan", "explore", "general-purpose"}, matches)
}
