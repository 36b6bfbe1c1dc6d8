package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch/glob"
)

// GlobTool is the read-only workspace-glob tool wired to agent/dispatch/glob,
// honoring .gitignore exclusions (spec.md §8 scenario S5).
type GlobTool struct {
	Root string
}

type globInput struct {
	Pattern string `json:"pattern"`
}

var globSchema = json.RawMessage(`{
	"type": "object",
	"properties": { "pattern": { "type": "string" } },
	"required": ["pattern"]
}`)

func (GlobTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:              "glob",
		Parameters:        globSchema,
		ConcurrencySafety: core.Safe,
		ReadOnly:          true,
		Description:       "Find files under the workspace matching a glob pattern, respecting .gitignore.",
	}
}

func (t GlobTool) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []ContextModifier, error) {
	var in globInput
	if err := json.Unmarshal(input, &in); err != nil {
		return core.ToolResultContent{}, nil, err
	}
	matches, err := glob.Glob(t.Root, in.Pattern)
	if err != nil {
		return core.ToolResultContent{}, nil, err
	}
	return core.TextResult(strings.Join(matches, "\n")), nil, nil
}
