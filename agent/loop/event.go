package loop

import (
	"github.com/coreagent/runtime/agent/core"
)

// EventKind tags the variant of a LoopEvent, per spec.md §4.1's events()
// stream: "AssistantText, ThinkingDelta, ToolStart/End, ApprovalRequest,
// SubagentUpdate, StopReason."
type EventKind string

const (
	EventAssistantText  EventKind = "assistant_text"
	EventThinkingDelta  EventKind = "thinking_delta"
	EventToolStart      EventKind = "tool_start"
	EventToolEnd        EventKind = "tool_end"
	EventApprovalNeeded EventKind = "approval_request"
	EventSubagentUpdate EventKind = "subagent_update"
	EventStop           EventKind = "stop_reason"
)

// LoopEvent is one item in the event stream a submitted command produces.
type LoopEvent struct {
	Kind         EventKind
	SubmissionID core.SubmissionID
	TurnID       core.TurnID

	// AssistantText / ThinkingDelta
	TextDelta string

	// ToolStart / ToolEnd
	ToolCallID string
	ToolName   string
	ToolResult *core.ToolResultBlock

	// ApprovalRequest
	Approval *core.ApprovalRequest

	// SubagentUpdate
	SubagentID     string
	SubagentStatus core.SubagentStatus

	// StopReason
	Stop *LoopResult
}

// StopReasonKind is why a turn loop stopped producing turns.
type StopReasonKind string

const (
	StopModelStopSignal   StopReasonKind = "model_stop_signal"
	StopMaxTurnsReached   StopReasonKind = "max_turns_reached"
	StopUserInterrupted   StopReasonKind = "user_interrupted"
	StopError             StopReasonKind = "error"
	StopTokenBudgetExhaust StopReasonKind = "token_budget_exhausted"
	StopShutdown          StopReasonKind = "shutdown"
)

// LoopResult is the terminal payload of a submission.
type LoopResult struct {
	Reason    StopReasonKind
	TurnCount int
	Err       error
}
