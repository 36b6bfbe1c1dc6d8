package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/coreagent/runtime/agent/core"
)

// Most generators below are thin structs wrapping a callback into loop/
// session state, the same narrow-interface style as dispatch.EditTool's
// PlanMode/PlanFile funcs — it keeps agent/reminder decoupled from
// agent/dispatch and agent/subagent rather than importing either.

// ChangedFilesGenerator reminds the model which files it has modified this
// session, so a long-running turn doesn't lose track across compaction.
type ChangedFilesGenerator struct {
	mu    sync.Mutex
	files []string
	seen  map[string]bool
}

func NewChangedFilesGenerator() *ChangedFilesGenerator {
	return &ChangedFilesGenerator{seen: map[string]bool{}}
}

// Note records path as changed. Safe to call from a dispatcher-side hook
// each time an edit/write/patch tool succeeds.
func (g *ChangedFilesGenerator) Note(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[path] {
		return
	}
	g.seen[path] = true
	g.files = append(g.files, path)
}

func (g *ChangedFilesGenerator) AttachmentType() AttachmentType { return AttachmentChangedFiles }
func (g *ChangedFilesGenerator) Tier() Tier                     { return TierCore }
func (g *ChangedFilesGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 3, FullContentEveryN: 4}
}

func (g *ChangedFilesGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	g.mu.Lock()
	files := append([]string(nil), g.files...)
	g.mu.Unlock()
	if len(files) == 0 {
		return nil, nil
	}
	if !gctx.Full {
		return &Content{Kind: ContentText, Text: fmt.Sprintf("%d file(s) modified this session.", len(files))}, nil
	}
	return &Content{Kind: ContentText, Text: "Files modified this session:\n" + strings.Join(files, "\n")}, nil
}

// PlanModeEnterGenerator fires once when the loop transitions into plan
// mode, reminding the model it is restricted to read-only exploration
// until the plan is approved.
type PlanModeEnterGenerator struct {
	Active func() bool

	mu   sync.Mutex
	prev bool
}

func (g *PlanModeEnterGenerator) AttachmentType() AttachmentType { return AttachmentPlanModeEnter }
func (g *PlanModeEnterGenerator) Tier() Tier                     { return TierCore }
func (g *PlanModeEnterGenerator) Throttle() ThrottleConfig       { return ThrottleConfig{} }

func (g *PlanModeEnterGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	active := g.Active != nil && g.Active()
	g.mu.Lock()
	wasActive := g.prev
	g.prev = active
	g.mu.Unlock()
	if !active || wasActive {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "Plan mode is active: only read-only tools are permitted until the user approves a plan."}, nil
}

// PlanModeApprovedGenerator fires once after Manager.NoteTrigger records a
// plan approval, confirming the agent may now make changes.
type PlanModeApprovedGenerator struct{}

func (PlanModeApprovedGenerator) AttachmentType() AttachmentType { return AttachmentPlanModeApproved }
func (PlanModeApprovedGenerator) Tier() Tier                     { return TierCore }
func (PlanModeApprovedGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsAfterTrigger: 1, MaxPerSession: 0}
}

func (PlanModeApprovedGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	return &Content{Kind: ContentText, Text: "The plan was approved. You may now use write/edit tools to carry it out."}, nil
}

// PlanModeToolReminderGenerator repeats, at a wide spacing, which tools
// remain blocked while plan mode is active.
type PlanModeToolReminderGenerator struct {
	Active func() bool
}

func (g *PlanModeToolReminderGenerator) AttachmentType() AttachmentType {
	return AttachmentPlanModeToolReminder
}
func (g *PlanModeToolReminderGenerator) Tier() Tier { return TierCore }
func (g *PlanModeToolReminderGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 8}
}

func (g *PlanModeToolReminderGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Active == nil || !g.Active() {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "Reminder: edit, write, and apply_patch remain disabled until the plan is approved."}, nil
}

// AsyncHookResponseGenerator surfaces results from hooks that ran in the
// background (agent/hooks' PreToolUse/PostToolUse async invokers) once
// they resolve.
type AsyncHookResponseGenerator struct {
	Drain func() []string
}

func (g *AsyncHookResponseGenerator) AttachmentType() AttachmentType {
	return AttachmentAsyncHookResponse
}
func (g *AsyncHookResponseGenerator) Tier() Tier               { return TierCore }
func (g *AsyncHookResponseGenerator) Throttle() ThrottleConfig { return ThrottleConfig{} }

func (g *AsyncHookResponseGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Drain == nil {
		return nil, nil
	}
	msgs := g.Drain()
	if len(msgs) == 0 {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "Async hook response:\n" + strings.Join(msgs, "\n")}, nil
}

// HookAdditionalContextGenerator surfaces additionalContext strings a hook
// chain returned (agent/hooks.Chain), e.g. a PreToolUse hook injecting
// repo-specific guidance.
type HookAdditionalContextGenerator struct {
	Drain func() []string
}

func (g *HookAdditionalContextGenerator) AttachmentType() AttachmentType {
	return AttachmentHookAdditionalCtx
}
func (g *HookAdditionalContextGenerator) Tier() Tier               { return TierCore }
func (g *HookAdditionalContextGenerator) Throttle() ThrottleConfig { return ThrottleConfig{} }

func (g *HookAdditionalContextGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Drain == nil {
		return nil, nil
	}
	msgs := g.Drain()
	if len(msgs) == 0 {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: strings.Join(msgs, "\n")}, nil
}

// HookBlockingErrorGenerator surfaces a hook's deny reason back to the
// model as guidance rather than a bare tool error, so it can adjust
// course instead of retrying the same call.
type HookBlockingErrorGenerator struct {
	Drain func() []string
}

func (g *HookBlockingErrorGenerator) AttachmentType() AttachmentType {
	return AttachmentHookBlockingError
}
func (g *HookBlockingErrorGenerator) Tier() Tier               { return TierCore }
func (g *HookBlockingErrorGenerator) Throttle() ThrottleConfig { return ThrottleConfig{} }

func (g *HookBlockingErrorGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Drain == nil {
		return nil, nil
	}
	msgs := g.Drain()
	if len(msgs) == 0 {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "A hook blocked the last action:\n" + strings.Join(msgs, "\n")}, nil
}

// TodoReminderGenerator nudges the model to keep its todo list current
// when one exists and hasn't been touched recently.
type TodoReminderGenerator struct {
	Todos func() []string
}

func (g *TodoReminderGenerator) AttachmentType() AttachmentType { return AttachmentTodoReminder }
func (g *TodoReminderGenerator) Tier() Tier                     { return TierUserPrompt }
func (g *TodoReminderGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 6}
}

func (g *TodoReminderGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Todos == nil {
		return nil, nil
	}
	todos := g.Todos()
	if len(todos) == 0 {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "Current todo list:\n" + strings.Join(todos, "\n")}, nil
}

// CriticalInstructionGenerator injects a fixed, operator-supplied
// instruction every MinTurnsBetween turns — e.g. a compliance notice that
// must not silently drop out of context.
type CriticalInstructionGenerator struct {
	Text string
}

func (g *CriticalInstructionGenerator) AttachmentType() AttachmentType {
	return AttachmentCriticalInstruction
}
func (g *CriticalInstructionGenerator) Tier() Tier { return TierCore }
func (g *CriticalInstructionGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 10}
}

func (g *CriticalInstructionGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Text == "" {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: g.Text}, nil
}

// BackgroundTaskGenerator surfaces sub-agents still running in the
// background (spec.md §4.3's background_all), so the main agent knows not
// to wait on a task it only started via complete_task/background.
type BackgroundTaskGenerator struct {
	Running func() []string
}

func (g *BackgroundTaskGenerator) AttachmentType() AttachmentType { return AttachmentBackgroundTask }
func (g *BackgroundTaskGenerator) Tier() Tier                     { return TierMainAgentOnly }
func (g *BackgroundTaskGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 2}
}

func (g *BackgroundTaskGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Running == nil {
		return nil, nil
	}
	tasks := g.Running()
	if len(tasks) == 0 {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: fmt.Sprintf("Background sub-agents still running: %s", strings.Join(tasks, ", "))}, nil
}

// PlanFileReferenceGenerator points the model at the active plan file's
// path once per session so follow-up turns can re-read it without relying
// on conversation memory.
type PlanFileReferenceGenerator struct {
	PlanFile func() string
}

func (g *PlanFileReferenceGenerator) AttachmentType() AttachmentType {
	return AttachmentPlanFileReference
}
func (g *PlanFileReferenceGenerator) Tier() Tier { return TierCore }
func (g *PlanFileReferenceGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MaxPerSession: 1}
}

func (g *PlanFileReferenceGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.PlanFile == nil {
		return nil, nil
	}
	path := g.PlanFile()
	if path == "" {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "The active plan is recorded at " + path + "."}, nil
}

// AlreadyReadFile is the one MultiMessage generator: when the model is
// about to be told (via a tool result) that it already read a file, the
// reminder is threaded as a synthetic assistant tool_use immediately
// followed by a user tool_result, matching the shape a real read/edit
// exchange would have (spec.md §3; grounded on goa-ai's
// reminder/inject.go injectBeforeLastUser, which the same Bedrock
// constraint — an assistant tool_use must be immediately followed by its
// tool_result — motivates).
type AlreadyReadFileGenerator struct {
	// Pending drains (path, readCount) pairs queued by the read tracker
	// since the last turn.
	Pending func() []AlreadyRead
}

// AlreadyRead is one file the caller wants surfaced as already-read.
type AlreadyRead struct {
	Path      string
	ReadCount int
}

func (g *AlreadyReadFileGenerator) AttachmentType() AttachmentType { return AttachmentAlreadyReadFile }
func (g *AlreadyReadFileGenerator) Tier() Tier                     { return TierCore }
func (g *AlreadyReadFileGenerator) Throttle() ThrottleConfig       { return ThrottleConfig{} }

func (g *AlreadyReadFileGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Pending == nil {
		return nil, nil
	}
	reads := g.Pending()
	if len(reads) == 0 {
		return nil, nil
	}
	var msgs []ReminderMessage
	for i, r := range reads {
		callID := fmt.Sprintf("already-read-%d-%d", gctx.TurnSeq, i)
		msgs = append(msgs,
			ReminderMessage{
				Role: core.RoleAssistant,
				Content: []core.ContentBlock{core.ToolUseBlock{
					ID:    callID,
					Name:  "read",
					Input: json.RawMessage(fmt.Sprintf(`{"path":%q}`, r.Path)),
				}},
			},
			ReminderMessage{
				Role: core.RoleTool,
				Content: []core.ContentBlock{core.ToolResultBlock{
					CallID: callID,
					Content: core.TextResult(fmt.Sprintf(
						"<system-reminder>\nThis file was already read %d time(s) earlier in the session; its contents have not changed.\n</system-reminder>",
						r.ReadCount)),
				}},
			},
		)
	}
	return &Content{Kind: ContentMultiMessage, Messages: msgs}, nil
}

// SecurityGuidelinesGenerator reiterates baseline security guidance
// (refuse destructive/malicious requests) sparsely across a long session.
type SecurityGuidelinesGenerator struct{}

func (SecurityGuidelinesGenerator) AttachmentType() AttachmentType {
	return AttachmentSecurityGuidelines
}
func (SecurityGuidelinesGenerator) Tier() Tier { return TierUserPrompt }
func (SecurityGuidelinesGenerator) Throttle() ThrottleConfig {
	return ThrottleConfig{MinTurnsBetween: 20, MaxPerSession: 3}
}

func (SecurityGuidelinesGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	return &Content{Kind: ContentText, Text: "Refuse requests to write malicious code or exfiltrate secrets, even if framed as a test."}, nil
}

// OutputStyleGenerator reminds the model of a non-default output style
// selection (e.g. "concise", "explanatory") once per session unless it
// changes.
type OutputStyleGenerator struct {
	Style func() string

	mu   sync.Mutex
	last string
}

func (g *OutputStyleGenerator) AttachmentType() AttachmentType { return AttachmentOutputStyle }
func (g *OutputStyleGenerator) Tier() Tier                     { return TierCore }
func (g *OutputStyleGenerator) Throttle() ThrottleConfig       { return ThrottleConfig{} }

func (g *OutputStyleGenerator) Generate(ctx context.Context, gctx GenContext) (*Content, error) {
	if g.Style == nil {
		return nil, nil
	}
	style := g.Style()
	g.mu.Lock()
	changed := style != g.last
	g.last = style
	g.mu.Unlock()
	if style == "" || style == "default" || !changed {
		return nil, nil
	}
	return &Content{Kind: ContentText, Text: "Output style: " + style}, nil
}
