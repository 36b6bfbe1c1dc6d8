package hooks

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/coreagent/runtime/agent/sandbox"
	"github.com/coreagent/runtime/agent/telemetry"
)

// Chain runs a set of HookDefinitions for a matching tool call against a
// single EventKind, in Source-priority order, stopping at the first Reject,
// AskUser or Async outcome (spec.md §4.2 step 4: "run PreToolUse hooks of
// matching scope in priority order").
type Chain struct {
	defs []*HookDefinition
	log  telemetry.Logger
}

// NewChain builds a Chain from the registered definitions.
func NewChain(defs []*HookDefinition, log telemetry.Logger) *Chain {
	return &Chain{defs: defs, log: log}
}

// Invoker executes one hook invocation, abstracting over the Command/Prompt
// handler kinds and the grpc/stdio plugin transports.
type Invoker interface {
	Invoke(ctx context.Context, def *HookDefinition, hctx HookContext) (HookResult, error)
}

// Run executes every enabled, matching hook for evt/toolName in priority
// order. Hook errors degrade to Continue with a logged warning
// (spec.md §7: "Hook errors → degrade to Continue with a warning"), except
// that a hook explicitly returning OutcomeReject is never downgraded.
func (c *Chain) Run(ctx context.Context, inv Invoker, evt EventKind, toolName string, hctx HookContext) HookResult {
	matching := c.matching(evt, toolName)
	var mutations []sandbox.CommandMutation
	for _, def := range matching {
		if def.Once && def.firedOnce {
			continue
		}
		res, err := inv.Invoke(ctx, def, hctx)
		if def.Once {
			def.firedOnce = true
		}
		if err != nil {
			if c.log != nil {
				c.log.Warn(ctx, "hook invocation failed, continuing", "hook", def.Name, "error", err.Error())
			}
			continue
		}
		mutations = append(mutations, res.CommandMutations...)
		switch res.Outcome {
		case OutcomeReject, OutcomeAskUser:
			res.CommandMutations = mutations
			return res
		case OutcomeContinueModifyInput:
			hctx.ToolInput = res.ModifiedInput
			// fall through to next hook with the modified input
		case OutcomeAsync:
			res.CommandMutations = mutations
			return res
		}
	}
	return HookResult{Outcome: OutcomeContinue, ModifiedInput: hctx.ToolInput, CommandMutations: mutations}
}

func (c *Chain) matching(evt EventKind, toolName string) []*HookDefinition {
	var out []*HookDefinition
	for _, d := range c.defs {
		if !d.Enabled || d.Event != evt {
			continue
		}
		if d.Matcher != "" {
			if ok, _ := filepath.Match(d.Matcher, toolName); !ok {
				continue
			}
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Source.PriorityRank() < out[j].Source.PriorityRank()
	})
	return out
}
