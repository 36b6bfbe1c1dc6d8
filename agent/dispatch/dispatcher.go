package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/features"
	"github.com/coreagent/runtime/agent/hooks"
	"github.com/coreagent/runtime/agent/sandbox"
	"github.com/coreagent/runtime/agent/telemetry"
)

// ContextModifier is accumulated by a dispatched tool call for the turn to
// apply afterward (spec.md §4.1 step 5, §4.2 step 9): recording a file as
// read, installing a session permission rule, or restricting the active
// tool set for the life of a skill invocation.
type ContextModifier struct {
	Kind              ContextModifierKind
	FilePath          string // FileRead, FileWrite
	PermissionRule    *Rule  // PermissionGranted
	SkillAllowedTools []string
}

// ContextModifierKind tags the variant of a ContextModifier.
type ContextModifierKind string

const (
	ModifierFileRead          ContextModifierKind = "file_read"
	ModifierFileWrite         ContextModifierKind = "file_write"
	ModifierPermissionGranted ContextModifierKind = "permission_granted"
	ModifierSkillAllowedTools ContextModifierKind = "skill_allowed_tools"
)

// CompletionSignal is implemented by a sentinel error a Tool.Execute can
// return to deliver a structured payload as its non-error result content,
// instead of being treated as a failed call (e.g. agent/subagent's
// complete_task tool, after which the agent loop ends a spawned child's
// turn loop).
type CompletionSignal interface {
	error
	CompletionPayload() []byte
}

// Dispatcher executes ToolUse calls against a Registry with the full
// nine-step pipeline from spec.md §4.2.
type Dispatcher struct {
	registry *Registry
	schemas  *SchemaCache
	perms    *Resolver
	chain    *hooks.Chain
	invoker  hooks.Invoker
	broker   *Broker
	sandbox  *sandbox.Sandbox
	features *features.Set
	log      telemetry.Logger

	sem *Semaphore

	mu        sync.Mutex
	modifiers []ContextModifier // accumulated across calls since the last DrainModifiers

	// ArgSummary extracts the permission-relevant argument from a tool call's
	// input (a path for file tools, a command prefix for shell tools). nil
	// defaults to the empty string, meaning only tool-level rules apply.
	ArgSummary func(toolName string, input json.RawMessage) string

	// ApprovalTimeout bounds how long a NeedsApproval call waits before
	// auto-denial (spec.md §4.2: "block (with timeout → default Denied)").
	ApprovalTimeout time.Duration
}

// New builds a Dispatcher. broker and sb may be nil to disable approval
// brokerage and sandboxing respectively (e.g. in unit tests exercising pure
// Safe read-only tools).
func New(registry *Registry, perms *Resolver, chain *hooks.Chain, invoker hooks.Invoker, broker *Broker, sb *sandbox.Sandbox, fs *features.Set, log telemetry.Logger) *Dispatcher {
	return &Dispatcher{
		registry:        registry,
		schemas:         NewSchemaCache(),
		perms:           perms,
		chain:           chain,
		invoker:         invoker,
		broker:          broker,
		sandbox:         sb,
		features:        fs,
		log:             log,
		sem:             NewSemaphore(),
		ApprovalTimeout: 5 * time.Minute,
	}
}

// Dispatch runs every tool call, honoring the Safe/Unsafe concurrency
// admission rule, and returns results in the same order the calls were
// given (spec.md §4.2 contract: "dispatch(tool_calls, ctx) → seq<ToolResult>
// preserving input order"; invariant 2: tool order is preserved).
func (d *Dispatcher) Dispatch(ctx context.Context, workerID string, calls []core.ToolUseBlock) []core.ToolResultBlock {
	results := make([]core.ToolResultBlock, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, workerID, call)
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, workerID string, call core.ToolUseBlock) (result core.ToolResultBlock) {
	result.CallID = call.ID

	defer func() {
		if r := recover(); r != nil {
			// spec.md §4.2: "any unhandled tool panic converts to
			// ToolResult{is_error:true}; the dispatcher never crashes the loop."
			result.IsError = true
			result.Content = core.TextResult(fmt.Sprintf("tool %s panicked: %v", call.Name, r))
		}
	}()

	tool, ok := d.registry.Resolve(call.Name)
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}
	def := tool.Definition()

	// Step 1: feature gate.
	if def.FeatureGate != "" {
		if _, known := d.features.Lookup(def.FeatureGate); known && !d.features.Enabled(def.FeatureGate) {
			return errorResult(call.ID, fmt.Sprintf("tool %s is gated by disabled feature %s", def.Name, def.FeatureGate))
		}
	}

	// Step 2: input validation.
	if err := d.schemas.Validate(def, call.Input); err != nil {
		return errorResult(call.ID, err.Error())
	}

	argSummary := ""
	if d.ArgSummary != nil {
		argSummary = d.ArgSummary(call.Name, call.Input)
	}

	// Step 3: permission resolution.
	decision, verdict := d.perms.ResolveVerdict(def, argSummary)
	if verdict == VerdictDenied {
		return errorResult(call.ID, fmt.Sprintf("permission denied: %s (source=%d)", decision.Reason, decision.Source))
	}

	toolInput := call.Input

	// Step 4: PreToolUse hook chain.
	hctx := hooks.HookContext{Event: hooks.PreToolUse, ToolName: def.Name, ToolInput: toolInput}
	preResult := d.chain.Run(ctx, d.invoker, hooks.PreToolUse, def.Name, hctx)
	switch preResult.Outcome {
	case hooks.OutcomeReject:
		return errorResult(call.ID, "blocked by hook: "+preResult.RejectReason)
	case hooks.OutcomeAskUser, hooks.OutcomeAsync:
		return errorResult(call.ID, "tool call requires out-of-band approval, deferring")
	}
	if len(preResult.ModifiedInput) > 0 {
		toolInput = preResult.ModifiedInput
	}

	// Step 5: approval brokerage.
	if verdict == VerdictNeedsApproval {
		if d.broker == nil {
			return errorResult(call.ID, "approval required but no approval broker configured")
		}
		req := core.ApprovalRequest{
			RequestID:     call.ID,
			ToolName:      def.Name,
			Description:   def.Description,
			AllowRemember: true,
		}
		resp, err := d.broker.Request(ctx, workerID, req, d.ApprovalTimeout)
		if err != nil {
			return errorResult(call.ID, "approval wait cancelled: "+err.Error())
		}
		switch resp.Kind {
		case ApprovalDenied:
			return errorResult(call.ID, "user denied the tool call")
		case ApprovalApprovedWithPrefix:
			rule := Rule{
				Source:      core.RuleSourceSession,
				ToolPattern: def.Name,
				ArgPattern:  resp.Prefix,
				Verdict:     VerdictAllowed,
				Reason:      "remembered approval",
			}
			d.perms.AddRule(rule)
			d.mu.Lock()
			d.modifiers = append(d.modifiers, ContextModifier{Kind: ModifierPermissionGranted, PermissionRule: &rule})
			d.mu.Unlock()
		}
	}

	// Step 6: sandbox transformation (shell-like tools only).
	if d.sandbox != nil && isShellLike(def) {
		transformed, err := d.transformShell(toolInput, preResult.CommandMutations)
		if err != nil {
			return errorResult(call.ID, err.Error())
		}
		toolInput = transformed
	}

	// Step 7: acquire concurrency slot, execute, release. Read-only tools
	// are always admitted as Safe.
	safety := def.ConcurrencySafety
	if def.ReadOnly {
		safety = core.Safe
	}
	if err := d.sem.Acquire(ctx, safety); err != nil {
		return errorResult(call.ID, "dispatch cancelled: "+err.Error())
	}
	content, mods, execErr := tool.Execute(ctx, toolInput)
	d.sem.Release(safety)

	isError := execErr != nil
	if cs, ok := execErr.(CompletionSignal); ok {
		// A tool (e.g. agent/subagent's complete_task) can deliver a
		// structured payload through a CompletionSignal error; surface it as
		// the result content rather than as a failed call.
		isError = false
		content = core.TextResult(string(cs.CompletionPayload()))
	} else if isError {
		content = core.TextResult(execErr.Error())
	} else if len(mods) > 0 {
		// Step 9: accumulate context modifiers into the turn's effect list.
		d.mu.Lock()
		d.modifiers = append(d.modifiers, mods...)
		d.mu.Unlock()
	}
	content = truncate(content, def.MaxResultSizeChars)

	// Step 8: PostToolUse hooks.
	resultJSON, _ := json.Marshal(content)
	postCtx := hooks.HookContext{Event: hooks.PostToolUse, ToolName: def.Name, ToolInput: toolInput, ToolResult: resultJSON}
	postResult := d.chain.Run(ctx, d.invoker, hooks.PostToolUse, def.Name, postCtx)
	if postResult.Outcome == hooks.OutcomeReject {
		isError = true
		content = core.TextResult("post-execution hook rejected result: " + postResult.RejectReason)
	}

	// Step 9's accumulation happened above; the caller (the Agent Loop)
	// collects the modifiers with DrainModifiers after Dispatch returns.
	return core.ToolResultBlock{CallID: call.ID, Content: content, IsError: isError}
}

func (d *Dispatcher) transformShell(input json.RawMessage, mutations []sandbox.CommandMutation) (json.RawMessage, error) {
	var shellInput struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &shellInput); err != nil {
		return input, nil
	}
	rewritten, err := d.sandbox.Transform(shellInput.Command, mutations)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Command string `json:"command"`
	}{Command: rewritten})
}

func isShellLike(def core.ToolDefinition) bool {
	return def.Name == "bash" || def.Name == "shell"
}

func truncate(content core.ToolResultContent, maxChars int) core.ToolResultContent {
	if maxChars <= 0 || content.Kind != core.ToolResultKindText {
		return content
	}
	if len(content.Text) <= maxChars {
		return content
	}
	content.Text = content.Text[:maxChars] + "\n... [truncated]"
	return content
}

func errorResult(callID, message string) core.ToolResultBlock {
	return core.ToolResultBlock{CallID: callID, Content: core.TextResult(message), IsError: true}
}

// RespondApproval forwards an ApprovalResponse to the approval broker, if
// one is configured. Returns false if the request is unknown or no broker
// is wired.
func (d *Dispatcher) RespondApproval(resp ApprovalResponse) bool {
	if d.broker == nil {
		return false
	}
	return d.broker.Respond(resp)
}

// OnApprovalRequest registers fn to run synchronously whenever the approval
// broker opens a new pending request. A no-op if no broker is configured.
func (d *Dispatcher) OnApprovalRequest(fn func(workerID string, req core.ApprovalRequest)) {
	if d.broker != nil {
		d.broker.OnRequest = fn
	}
}

// CancelWorker cancels every pending approval owned by workerID (spec.md §5).
func (d *Dispatcher) CancelWorker(workerID string) {
	if d.broker != nil {
		d.broker.CancelWorker(workerID)
	}
}

// DrainModifiers returns and clears every ContextModifier accumulated since
// the last call, for the Agent Loop to apply at the end of a turn (spec.md
// §4.1 step 5).
func (d *Dispatcher) DrainModifiers() []ContextModifier {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.modifiers
	d.modifiers = nil
	return out
}
