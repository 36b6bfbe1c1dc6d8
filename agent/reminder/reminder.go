// Package reminder implements the System-Reminder Orchestrator from
// spec.md §4.5: parallel, per-generator-throttled context injection that
// synthesises short `<system-reminder>` blocks appended at turn boundaries.
// Grounded on goadesign-goa-ai's runtime/agent/reminder package (Tier,
// Attachment, per-reminder throttle fields map almost field-for-field onto
// spec.md's ThrottleConfig), generalized from a flat Reminder struct to the
// spec's named-generator model with multi-message reminders.
package reminder

import (
	"context"

	"github.com/coreagent/runtime/agent/core"
)

// Tier gates which agents a generator runs for (spec.md §4.5).
type Tier string

const (
	// TierCore runs for every agent, including sub-agents.
	TierCore Tier = "core"
	// TierMainAgentOnly is skipped when the current turn belongs to a
	// sub-agent.
	TierMainAgentOnly Tier = "main_agent_only"
	// TierUserPrompt only runs on turns that carry fresh user input.
	TierUserPrompt Tier = "user_prompt"
)

// AttachmentType names one of the fourteen generators spec.md §4.5 lists.
type AttachmentType string

const (
	AttachmentChangedFiles         AttachmentType = "changed_files"
	AttachmentPlanModeEnter        AttachmentType = "plan_mode_enter"
	AttachmentPlanModeApproved     AttachmentType = "plan_mode_approved"
	AttachmentPlanModeToolReminder AttachmentType = "plan_mode_tool_reminder"
	AttachmentAsyncHookResponse    AttachmentType = "async_hook_response"
	AttachmentHookAdditionalCtx    AttachmentType = "hook_additional_context"
	AttachmentHookBlockingError    AttachmentType = "hook_blocking_error"
	AttachmentTodoReminder         AttachmentType = "todo_reminder"
	AttachmentCriticalInstruction  AttachmentType = "critical_instruction"
	AttachmentBackgroundTask       AttachmentType = "background_task"
	AttachmentPlanFileReference    AttachmentType = "plan_file_reference"
	AttachmentAlreadyReadFile      AttachmentType = "already_read_file"
	AttachmentSecurityGuidelines   AttachmentType = "security_guidelines"
	AttachmentOutputStyle          AttachmentType = "output_style"
)

// attachmentOrder is the fixed, deterministic ordering spec.md §4.5 and §5
// require ("System reminders are appended in a deterministic
// per-attachment-type order regardless of generator finish order").
var attachmentOrder = []AttachmentType{
	AttachmentChangedFiles,
	AttachmentPlanModeEnter,
	AttachmentPlanModeApproved,
	AttachmentPlanModeToolReminder,
	AttachmentAsyncHookResponse,
	AttachmentHookAdditionalCtx,
	AttachmentHookBlockingError,
	AttachmentTodoReminder,
	AttachmentCriticalInstruction,
	AttachmentBackgroundTask,
	AttachmentPlanFileReference,
	AttachmentAlreadyReadFile,
	AttachmentSecurityGuidelines,
	AttachmentOutputStyle,
}

// ThrottleConfig bounds how often a given attachment type may be generated
// (spec.md §4.5).
type ThrottleConfig struct {
	// MinTurnsBetween enforces at least this many turns between consecutive
	// emissions. Zero means no spacing requirement.
	MinTurnsBetween int

	// MinTurnsAfterTrigger suppresses emission for this many turns after an
	// external trigger event (set via Manager.NoteTrigger), e.g. a
	// PlanModeApproved reminder should not repeat immediately after the
	// approval that triggered it. Zero means no trigger-based suppression.
	MinTurnsAfterTrigger int

	// MaxPerSession caps total emissions across the whole session. Zero
	// means unlimited.
	MaxPerSession int

	// FullContentEveryN selects every Nth emission (including the first)
	// to use the full-content variant; all others use the compact sparse
	// variant. Zero means every emission is full.
	FullContentEveryN int
}

// GenContext is the per-turn context passed to a Generator.
type GenContext struct {
	TurnID       core.TurnID
	TurnSeq      int
	HasUserInput bool
	IsSubagent   bool

	// Full reports whether this emission should use the full-content
	// variant, per ThrottleConfig.FullContentEveryN / should_use_full_content.
	Full bool
}

// ContentKind tags the variant of a generator's output content.
type ContentKind string

const (
	ContentText         ContentKind = "text"
	ContentMultiMessage ContentKind = "multi_message"
)

// ReminderMessage is one threaded message of a MultiMessage reminder
// (spec.md §3: "a synthetic tool_use with a tool_result of 'previously
// read'").
type ReminderMessage struct {
	Role    core.Role
	Content []core.ContentBlock
}

// Content is the tagged payload a Generator produces for one turn.
type Content struct {
	Kind     ContentKind
	Text     string
	Messages []ReminderMessage
}

// Generator produces one SystemReminder attachment. Generate returns
// (nil, nil) when there is nothing to emit this turn.
type Generator interface {
	AttachmentType() AttachmentType
	Tier() Tier
	Throttle() ThrottleConfig
	Generate(ctx context.Context, gctx GenContext) (*Content, error)
}
