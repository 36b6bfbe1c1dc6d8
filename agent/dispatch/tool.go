// Package dispatch implements the Tool Dispatch & Permission Pipeline: the
// nine-step per-tool execution pipeline and the Safe/Unsafe concurrency
// admission rule from spec.md §4.2.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coreagent/runtime/agent/core"
)

// Tool is one dispatchable tool implementation. Definition is read once at
// registration time; Execute runs the tool body after the pipeline has
// validated input, resolved permission, and applied sandbox mutations. The
// returned ContextModifiers feed step 9 of the pipeline (spec.md §4.2:
// "Accumulate ContextModifiers into the turn's effect list") — e.g. a file
// Read tool returns a ModifierFileRead so the reminder orchestrator's
// AlreadyReadFile generator (§4.5) and the smart-edit preconditions (§4.6)
// can see it.
type Tool interface {
	Definition() core.ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []ContextModifier, error)
}

// Registry holds the set of tools known to a dispatcher.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool under its own Definition().Name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition().Name] = tool
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Remove drops a tool from the registry, used when a skill's AllowedTools
// restriction or subagent teardown should stop exposing it.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// All returns a snapshot of every registered ToolDefinition, used to build
// the request-time tool list (spec.md §4.1 step 1).
func (r *Registry) All() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	return out
}
