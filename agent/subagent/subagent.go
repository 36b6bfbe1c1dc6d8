// Package subagent implements the Sub-agent Manager (spec.md §4.3): spawning
// child Agent Loops with reduced capability sets and surfacing their
// outputs to the parent. Parent/child references are modeled as an arena of
// opaque agent_id handles rather than a cyclic object graph (spec.md §9:
// "model as arena + opaque agent_id handles; parents hold ids, the Subagent
// Manager owns instances"), the same re-architecture goa-ai's own nested
// agent-as-tool execution takes by keying everything off run/agent
// identifiers instead of direct references (runtime/agent/runtime/agent_tools.go).
package subagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreagent/runtime/agent/core"
)

// Runner starts one child agent loop and blocks until it completes or ctx is
// cancelled. Implemented by agent/loop; Manager depends on this narrow
// interface rather than the loop package directly to avoid a cycle (loop
// itself owns a Manager to dispatch spawn/output/cancel commands).
type Runner interface {
	RunChild(ctx context.Context, spec ChildSpec) (core.SubagentOutput, error)
}

// ChildSpec describes a child agent loop to start.
type ChildSpec struct {
	Type         core.SubagentType
	Prompt       string
	Description  string
	Model        *core.ModelSpec
	AllowedTools []string
	ResumeID     string

	// OutputSchema, when non-nil, is the JSON Schema the synthetic
	// complete_task tool enforces on the child's final output (spec.md §4.3:
	// "complete_task ... arguments match the agent's declared
	// OutputConfig.schema (or {output:string} default)").
	OutputSchema []byte
}

// defaultAllowedTools implements spec.md §4.3's per-type tool whitelist:
// "Explore/Plan are read-only (no writes, no shell); Bash allows shell;
// custom agents use a declared whitelist."
var defaultAllowedTools = map[core.SubagentType][]string{
	core.SubagentExplore: {"read", "glob", "grep"},
	core.SubagentPlan:    {"read", "glob", "grep"},
	core.SubagentBash:    {"read", "glob", "grep", "bash"},
}

type child struct {
	mu     sync.Mutex
	record core.Subagent
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks every spawned Subagent and runs them via a Runner.
type Manager struct {
	runner Runner

	mu       sync.Mutex
	children map[string]*child
	nextID   int

	// OnUpdate, when set, is invoked on every status transition a child
	// goes through (Running -> Completed/Failed/Backgrounded), so a caller
	// can bubble the change up as a SubagentUpdate event (spec.md §4.1's
	// event vocabulary: "Progress events bubble up as SubagentUpdate
	// events"). Invoked with the Manager's own lock released.
	OnUpdate func(id string, status core.SubagentStatus)
}

// NewManager builds a Manager over runner.
func NewManager(runner Runner) *Manager {
	return &Manager{runner: runner, children: map[string]*child{}}
}

func (m *Manager) notify(id string, status core.SubagentStatus) {
	if m.OnUpdate != nil {
		m.OnUpdate(id, status)
	}
}

// Spawn starts a child agent loop. If runInBackground is false, Spawn blocks
// until the child completes and returns its id with Status already terminal
// (spec.md §4.3: "Foreground: the parent turn awaits completion"). If true,
// Spawn returns immediately with Status == Running and the caller retrieves
// the result later via Output.
func (m *Manager) Spawn(ctx context.Context, parent string, spec ChildSpec, runInBackground bool) (string, error) {
	if spec.AllowedTools == nil {
		spec.AllowedTools = defaultAllowedTools[spec.Type]
	}

	id := m.allocateID(spec.Type)
	childCtx, cancel := context.WithCancel(context.Background())
	c := &child{
		record: core.Subagent{
			ID:           id,
			Type:         spec.Type,
			Parent:       parent,
			Status:       core.SubagentRunning,
			AllowedTools: spec.AllowedTools,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.children[id] = c
	m.mu.Unlock()
	m.notify(id, core.SubagentRunning)

	run := func() {
		defer close(c.done)
		out, err := m.runner.RunChild(childCtx, spec)
		c.mu.Lock()
		if c.record.Status == core.SubagentBackgrounded {
			// background_all() flipped the visible status; a backgrounded
			// child still moves to Completed or Failed below.
		}
		var final core.SubagentStatus
		if err != nil {
			c.record.Status = core.SubagentFailed
			c.record.Output = &core.SubagentOutput{Error: err.Error()}
			final = core.SubagentFailed
		} else {
			c.record.Status = core.SubagentCompleted
			c.record.Output = &out
			final = core.SubagentCompleted
		}
		c.mu.Unlock()
		m.notify(id, final)
	}

	if runInBackground {
		go run()
		return id, nil
	}

	run()
	return id, ctx.Err()
}

// Output retrieves a child's current state. If block is true and the child
// is still Running, Output waits up to timeout for completion before
// returning the still-running record.
func (m *Manager) Output(ctx context.Context, agentID string, block bool, timeout time.Duration) (core.Subagent, error) {
	m.mu.Lock()
	c, ok := m.children[agentID]
	m.mu.Unlock()
	if !ok {
		return core.Subagent{}, fmt.Errorf("subagent: unknown agent id %q", agentID)
	}

	if block {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
		case <-ctx.Done():
			return core.Subagent{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record, nil
}

// BackgroundAll converts every currently-Running child to Backgrounded,
// implementing spec.md §4.3's "background_all() — converts every foreground
// child to background".
func (m *Manager) BackgroundAll() {
	m.mu.Lock()
	children := make([]*child, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.mu.Unlock()
	for _, c := range children {
		c.mu.Lock()
		changed := c.record.Status == core.SubagentRunning
		if changed {
			c.record.Status = core.SubagentBackgrounded
		}
		id := c.record.ID
		c.mu.Unlock()
		if changed {
			m.notify(id, core.SubagentBackgrounded)
		}
	}
}

// Cancel stops a child's context, causing its Runner.RunChild call to
// observe cancellation.
func (m *Manager) Cancel(agentID string) error {
	m.mu.Lock()
	c, ok := m.children[agentID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("subagent: unknown agent id %q", agentID)
	}
	c.cancel()
	return nil
}

func (m *Manager) allocateID(t core.SubagentType) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return fmt.Sprintf("%s-%d", t, m.nextID)
}
