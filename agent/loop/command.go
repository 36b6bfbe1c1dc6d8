// Package loop implements the Agent Loop & Turn Scheduler (spec.md §4.1):
// the state machine that turns a stream of UserCommands into completed
// turns, driving the provider, the tool dispatcher, and (once a turn ends)
// the context-modifier effects those tools accumulated.
package loop

import (
	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch"
)

// CommandKind tags the variant of a UserCommand, mirroring the named signal
// set in spec.md §4.1 rather than one struct type per command (the shape
// goa-ai's interrupt.Controller uses for its own pause/resume/clarify/
// tool-result signals).
type CommandKind string

const (
	CommandSubmitInput        CommandKind = "submit_input"
	CommandInterrupt          CommandKind = "interrupt"
	CommandSetPlanMode        CommandKind = "set_plan_mode"
	CommandSetThinkingLevel   CommandKind = "set_thinking_level"
	CommandSetModel           CommandKind = "set_model"
	CommandApprovalResponse   CommandKind = "approval_response"
	CommandExecuteSkill       CommandKind = "execute_skill"
	CommandQueueCommand       CommandKind = "queue_command"
	CommandBackgroundAllTasks CommandKind = "background_all_tasks"
	CommandClearQueues        CommandKind = "clear_queues"
	CommandSetOutputStyle     CommandKind = "set_output_style"
	CommandShutdown           CommandKind = "shutdown"
)

// UserCommand is the single envelope for every operation the host can send
// to a running Loop.
type UserCommand struct {
	Kind CommandKind

	// SubmitInput / QueueCommand / ExecuteSkill
	Text      string
	SkillName string

	// SetPlanMode
	PlanMode bool

	// SetThinkingLevel
	ThinkingLevel *core.ThinkingLevel

	// SetModel
	Model *core.ModelSpec

	// ApprovalResponse
	ApprovalRequestID string
	ApprovalResponse  dispatch.ApprovalResponse

	// SetOutputStyle
	OutputStyle string
}
