package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/smartedit"
)

// ReadTool reads a file from disk and records it with a ReadTracker so
// later EditTool calls satisfy spec.md §4.6 step 1's precondition.
type ReadTool struct {
	Tracker *ReadTracker
}

type readInput struct {
	Path string `json:"path"`
}

var readSchema = json.RawMessage(`{
	"type": "object",
	"properties": { "path": { "type": "string" } },
	"required": ["path"]
}`)

func (ReadTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:              "read",
		Parameters:        readSchema,
		ConcurrencySafety: core.Safe,
		ReadOnly:          true,
		Description:       "Read a file's contents from the workspace.",
	}
}

func (t ReadTool) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []ContextModifier, error) {
	var in readInput
	if err := json.Unmarshal(input, &in); err != nil {
		return core.ToolResultContent{}, nil, err
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return core.ToolResultContent{}, nil, err
	}
	if t.Tracker != nil {
		t.Tracker.RecordRead(in.Path)
	}
	return core.TextResult(string(data)), []ContextModifier{{Kind: ModifierFileRead, FilePath: in.Path}}, nil
}

// EditTool wraps smartedit.Engine as a dispatchable tool implementing
// spec.md §4.6's old_string/new_string/instruction contract.
type EditTool struct {
	Engine *smartedit.Engine

	// PlanMode and PlanFile implement the plan-mode edit restriction
	// (spec.md §4.6: "Plan mode: blocks edits to any path except the
	// active plan file"). PlanMode is read at execution time so the same
	// EditTool instance tracks the loop's current mode.
	PlanMode func() bool
	PlanFile func() string
}

type editInput struct {
	Path        string `json:"path"`
	OldString   string `json:"old_string"`
	NewString   string `json:"new_string"`
	Instruction string `json:"instruction"`
}

var editSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": { "type": "string" },
		"old_string": { "type": "string" },
		"new_string": { "type": "string" },
		"instruction": { "type": "string" }
	},
	"required": ["path", "old_string", "new_string"]
}`)

func (EditTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:              "edit",
		Parameters:        editSchema,
		ConcurrencySafety: core.Unsafe,
		ReadOnly:          false,
		Description:       "Replace old_string with new_string in path using the smart-edit strategy cascade.",
	}
}

func (t EditTool) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []ContextModifier, error) {
	var in editInput
	if err := json.Unmarshal(input, &in); err != nil {
		return core.ToolResultContent{}, nil, err
	}

	if t.PlanMode != nil && t.PlanMode() && smartedit.PlanModeBlocked(true, t.PlanFile(), in.Path) {
		return core.ToolResultContent{}, nil, fmt.Errorf("edit: plan mode blocks writes outside %s", t.PlanFile())
	}

	current, err := os.ReadFile(in.Path)
	if err != nil {
		return core.ToolResultContent{}, nil, err
	}

	res, err := t.Engine.Apply(ctx, smartedit.Request{
		Path:        in.Path,
		OldString:   in.OldString,
		NewString:   in.NewString,
		Instruction: in.Instruction,
	}, string(current))
	if err != nil {
		return core.ToolResultContent{}, nil, err
	}
	if res.NoChange {
		return core.TextResult("no changes required"), nil, nil
	}

	if err := os.WriteFile(in.Path, []byte(res.NewContent), 0o644); err != nil {
		return core.ToolResultContent{}, nil, err
	}

	summary := fmt.Sprintf("Edited %s via %s strategy\n\n%s", in.Path, res.Strategy, res.Diff)
	return core.TextResult(summary), []ContextModifier{
		{Kind: ModifierFileRead, FilePath: in.Path},
		{Kind: ModifierFileWrite, FilePath: in.Path},
	}, nil
}
