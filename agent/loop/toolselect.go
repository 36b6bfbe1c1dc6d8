package loop

import (
	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/provider"
)

// SelectToolsForModel filters the registry's full tool list down to what a
// given model should see, per spec.md §4.1 step 1: "filtered by
// select_tools_for_model: a per-ModelInfo predicate on apply_patch_tool_type,
// experimental_supported_tools whitelist, excluded_tools blacklist. Tool
// selection rule: Function variant replaces registry default; Freeform uses
// custom_format; Shell/None exclude apply_patch."
func SelectToolsForModel(all []core.ToolDefinition, info provider.ModelInfo) []core.ToolDefinition {
	excluded := toSet(info.ExcludedTools)
	experimental := toSet(info.ExperimentalSupportedTools)

	out := make([]core.ToolDefinition, 0, len(all))
	for _, def := range all {
		if excluded[def.Name] {
			continue
		}
		if def.FeatureGate == "experimental" && !experimental[def.Name] {
			continue
		}
		if def.Name == "apply_patch" {
			switch info.ApplyPatchToolType {
			case provider.ApplyPatchShell, provider.ApplyPatchNone:
				continue
			case provider.ApplyPatchFreeform:
				out = append(out, withFreeform(def))
				continue
			case provider.ApplyPatchFunction:
				out = append(out, def)
				continue
			}
		}
		out = append(out, def)
	}
	return out
}

func withFreeform(def core.ToolDefinition) core.ToolDefinition {
	def.Parameters = nil
	def.CustomFormat = &core.CustomFormat{Type: "grammar", Syntax: "lark", Definition: "apply_patch"}
	return def
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
