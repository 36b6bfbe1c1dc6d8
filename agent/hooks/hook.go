package hooks

import (
	"encoding/json"
	"time"

	"github.com/coreagent/runtime/agent/sandbox"
)

// EventKind is the tool-lifecycle point a HookDefinition matches against
// (spec.md §4.2 step 4/8: PreToolUse / PostToolUse).
type EventKind string

const (
	PreToolUse  EventKind = "pre_tool_use"
	PostToolUse EventKind = "post_tool_use"
)

// Source identifies where a HookDefinition was registered from, used to
// order hook execution within a chain (session-registered hooks run before
// skill/plugin/policy hooks, mirroring permission RuleSource ordering).
type SourceKind string

const (
	SourceSessionHook SourceKind = "session"
	SourceSkillHook   SourceKind = "skill"
	SourcePluginHook  SourceKind = "plugin"
	SourcePolicyHook  SourceKind = "policy"
)

// HandlerKind selects how a hook is invoked.
type HandlerKind string

const (
	HandlerCommand HandlerKind = "command"
	HandlerPrompt  HandlerKind = "prompt"
)

// CommandHandler runs a subprocess over the documented stdin/stdout JSON
// contract (spec.md §6).
type CommandHandler struct {
	Exe     string
	Args    []string
	Timeout time.Duration
}

// PromptHandler asks a (possibly smaller) model to approve/reject, parsing
// its XML `{ok, reason?}` response per spec.md §6.
type PromptHandler struct {
	Template string
	Model    string
}

// HookDefinition describes one registered hook.
type HookDefinition struct {
	Name    string
	Event   EventKind
	Matcher string // glob over tool names; empty matches every tool

	Handler HandlerKind
	Command *CommandHandler
	Prompt  *PromptHandler

	Source SourceKind

	// PluginTransport, when set alongside Source == SourcePluginHook,
	// selects the grpc transport for long-lived out-of-process hook
	// servers instead of forking Command per call (SPEC_FULL.md §4.2).
	PluginTransport *PluginTransport

	Enabled bool
	Timeout time.Duration
	Once    bool

	firedOnce bool
}

// HookContext is the immutable payload sent to a hook invocation.
type HookContext struct {
	Event       EventKind
	ToolName    string
	ToolInput   json.RawMessage
	ToolResult  json.RawMessage // set only for PostToolUse
	SubmissionID string
	TurnID      string
}

// Outcome tags the result of one hook invocation (spec.md §4.2 step 4).
type Outcome string

const (
	OutcomeContinue            Outcome = "continue"
	OutcomeContinueModifyInput Outcome = "continue_modify_input"
	OutcomeContinueAdditional  Outcome = "continue_additional_context"
	OutcomeReject              Outcome = "reject"
	OutcomeAsync               Outcome = "async"
	OutcomeAskUser             Outcome = "ask_user"
)

// HookResult is what a hook invocation returns, interpreted by the
// dispatcher's hook chain.
type HookResult struct {
	Outcome Outcome

	ModifiedInput     json.RawMessage // OutcomeContinueModifyInput
	AdditionalContext string          // OutcomeContinueAdditional
	RejectReason      string          // OutcomeReject
	AsyncTaskID       string          // OutcomeAsync
	AskUserPrompt     string          // OutcomeAskUser

	// CommandMutations are contributed by PreToolUse hooks matching a
	// shell-like tool, consumed by the dispatcher's sandbox transformation
	// step (spec.md §4.2 step 6).
	CommandMutations []sandbox.CommandMutation
}

// PriorityRank orders sources for deterministic chain execution: session
// hooks run first, then skill, plugin, policy.
func (s SourceKind) PriorityRank() int {
	switch s {
	case SourceSessionHook:
		return 0
	case SourceSkillHook:
		return 1
	case SourcePluginHook:
		return 2
	case SourcePolicyHook:
		return 3
	default:
		return 4
	}
}
