package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/patch"
)

// ApplyPatchTool executes the apply_patch grammar from spec.md §6 against
// Root. It is Unsafe (spec.md §4.1: "Shell/None exclude apply_patch" only
// governs the Freeform/Function tool-selection switch; the tool itself
// mutates the filesystem and so runs exclusively, like other writes).
type ApplyPatchTool struct {
	Root string
}

var applyPatchCustomFormat = &core.CustomFormat{
	Type:   "grammar",
	Syntax: "lark",
	Definition: `start: "*** Begin Patch" NEWLINE section+ "*** End Patch"
section: add_file | update_file | delete_file`,
}

func (ApplyPatchTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:              "apply_patch",
		CustomFormat:      applyPatchCustomFormat,
		ConcurrencySafety: core.Unsafe,
		ReadOnly:          false,
		Description:       "Apply a patch in the apply_patch grammar to add, update, or delete files.",
	}
}

// Execute expects input to be the raw patch text wrapped as a JSON string
// (freeform tools deliver their grammar text this way once decoded from the
// provider's tool-call arguments).
func (t ApplyPatchTool) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []ContextModifier, error) {
	var text string
	if err := json.Unmarshal(input, &text); err != nil {
		// Some providers deliver the grammar body as the raw (non-JSON-string)
		// bytes directly; fall back to treating input itself as the patch text.
		text = string(input)
	}

	p, err := patch.Parse(text)
	if err != nil {
		return core.ToolResultContent{}, nil, err
	}

	var modifiers []ContextModifier
	var summary []string

	// Add/Delete are atomic per-operation (spec.md invariant 8); Update
	// preserves line endings via patch.ApplyUpdate. A failure partway
	// through leaves earlier operations in this patch already applied,
	// matching apply_patch's documented per-file atomicity rather than
	// whole-patch transactionality.
	for _, op := range p.Operations {
		abs := filepath.Join(t.Root, op.Path)
		switch op.Kind {
		case patch.OpAddFile:
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			if err := os.WriteFile(abs, []byte(patch.AddContent(op)), 0o644); err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			modifiers = append(modifiers,
				ContextModifier{Kind: ModifierFileRead, FilePath: op.Path},
				ContextModifier{Kind: ModifierFileWrite, FilePath: op.Path},
			)
			summary = append(summary, fmt.Sprintf("Add %s", op.Path))

		case patch.OpUpdateFile:
			current, err := os.ReadFile(abs)
			if err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			updated, err := patch.ApplyUpdate(op, string(current))
			if err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			if err := os.WriteFile(abs, []byte(updated), 0o644); err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			modifiers = append(modifiers,
				ContextModifier{Kind: ModifierFileRead, FilePath: op.Path},
				ContextModifier{Kind: ModifierFileWrite, FilePath: op.Path},
			)
			summary = append(summary, fmt.Sprintf("Update %s", op.Path))

		case patch.OpDeleteFile:
			if err := os.Remove(abs); err != nil {
				return core.ToolResultContent{}, modifiers, err
			}
			modifiers = append(modifiers, ContextModifier{Kind: ModifierFileWrite, FilePath: op.Path})
			summary = append(summary, fmt.Sprintf("Delete %s", op.Path))
		}
	}

	return core.TextResult(joinSummary(summary)), modifiers, nil
}

func joinSummary(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
