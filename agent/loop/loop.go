package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch"
	"github.com/coreagent/runtime/agent/provider"
	"github.com/coreagent/runtime/agent/subagent"
	"github.com/coreagent/runtime/agent/telemetry"
)

// MaxOutputTokenRecovery bounds the number of output-budget-increase retries
// on a MaxOutputTokens provider failure (spec.md §4.1).
const MaxOutputTokenRecovery = 3

// ReminderRequest describes the turn context a ReminderSource generates
// attachments for (spec.md §4.5's Tier selection: Core / MainAgentOnly /
// UserPrompt).
type ReminderRequest struct {
	TurnID       core.TurnID
	HasUserInput bool
	IsSubagent   bool
}

// ReminderSource produces system-reminder content blocks to prepend to a
// turn's request. The Agent Loop depends on this narrow interface instead
// of importing agent/reminder directly, the same pattern used for
// subagent.Runner, so the two packages can be built and tested
// independently (dependency order in spec.md §2: "System-Reminder ...
// plug into Agent Loop").
type ReminderSource interface {
	Generate(ctx context.Context, req ReminderRequest) []core.ContentBlock
}

type noopReminders struct{}

func (noopReminders) Generate(context.Context, ReminderRequest) []core.ContentBlock { return nil }

// ReminderMessage is the loop-local mirror of agent/reminder.ReminderMessage,
// kept here (rather than imported) so this package does not depend on
// agent/reminder — the same narrow-interface pattern as ReminderSource.
type ReminderMessage struct {
	Role    core.Role
	Content []core.ContentBlock
}

// multiMessageSource is an additive, optionally-implemented extension to
// ReminderSource for generators (spec.md §4.5's AlreadyReadFile) whose
// content is a synthetic assistant tool_use/user tool_result pair rather
// than plain text. It is consulted via type assertion so ReminderSource
// implementations that only ever emit text (including noopReminders) need
// not change.
type multiMessageSource interface {
	Messages(ctx context.Context, req ReminderRequest) []ReminderMessage
}

// Config are the fixed, rarely-changing inputs a Loop is constructed with.
type Config struct {
	WorkerID     string
	SystemPrompt string
	ModelInfo    provider.ModelInfo
	MaxTurns     int

	Client     provider.Client
	Registry   *dispatch.Registry
	Dispatcher *dispatch.Dispatcher
	Subagents  *subagent.Manager
	Reminders  ReminderSource
	Log        telemetry.Logger

	// OnContextModifiers, if set, receives every ContextModifier a turn's
	// tool dispatch accumulated (spec.md §4.1 step 5) — e.g. to feed a
	// dispatch.ReadTracker or agent/reminder.ChangedFilesGenerator, without
	// this package importing either.
	OnContextModifiers func([]dispatch.ContextModifier)
}

// Loop drives one conversation: it consumes UserCommands, runs the turn
// algorithm from spec.md §4.1, and emits a LoopEvent stream per submission.
type Loop struct {
	cfg Config

	mu            sync.Mutex
	history       []core.Message
	planMode      bool
	thinkingLevel *core.ThinkingLevel
	model         core.ModelSpec
	outputStyle   string
	steering      []string
	shutdown      bool
	active        bool
	activeCancel  context.CancelFunc
	activeEvents  chan LoopEvent
	activeSID     core.SubmissionID
}

// New builds a Loop. cfg.Reminders may be nil, in which case no reminders
// are attached to any turn.
func New(cfg Config) *Loop {
	if cfg.Reminders == nil {
		cfg.Reminders = noopReminders{}
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 100
	}
	l := &Loop{cfg: cfg, model: core.ModelSpec{Provider: string(cfg.ModelInfo.Provider), Model: cfg.ModelInfo.Model}}

	// Bubble approval requests and subagent status transitions up as events
	// on whichever submission is currently active (spec.md §4.1's event
	// vocabulary: ApprovalRequest, SubagentUpdate), rather than making the
	// caller poll the broker or the subagent manager separately.
	if cfg.Dispatcher != nil {
		cfg.Dispatcher.OnApprovalRequest(l.handleApprovalRequest)
	}
	if cfg.Subagents != nil {
		cfg.Subagents.OnUpdate = l.handleSubagentUpdate
	}
	return l
}

// emitActive delivers ev on the currently active submission's event channel,
// if one is running. Dropped silently when idle or when the channel is full,
// since these are best-effort progress notifications, not turn content.
func (l *Loop) emitActive(build func(sid core.SubmissionID) LoopEvent) {
	l.mu.Lock()
	events, sid := l.activeEvents, l.activeSID
	l.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- build(sid):
	default:
	}
}

func (l *Loop) handleApprovalRequest(workerID string, req core.ApprovalRequest) {
	l.emitActive(func(sid core.SubmissionID) LoopEvent {
		r := req
		return LoopEvent{Kind: EventApprovalNeeded, SubmissionID: sid, Approval: &r}
	})
}

func (l *Loop) handleSubagentUpdate(id string, status core.SubagentStatus) {
	l.emitActive(func(sid core.SubmissionID) LoopEvent {
		return LoopEvent{Kind: EventSubagentUpdate, SubmissionID: sid, SubagentID: id, SubagentStatus: status}
	})
}

// Submit applies cmd. Commands that start a turn (SubmitInput, ExecuteSkill,
// QueueCommand while idle) run asynchronously and stream events on the
// returned channel, which is closed once the submission reaches a
// StopReason. Commands that only mutate loop state apply synchronously and
// return a channel already holding a single terminal event.
func (l *Loop) Submit(cmd UserCommand) (core.SubmissionID, <-chan LoopEvent) {
	sid := core.NewSubmissionID()
	events := make(chan LoopEvent, 16)

	switch cmd.Kind {
	case CommandInterrupt:
		l.mu.Lock()
		if l.activeCancel != nil {
			l.activeCancel()
		}
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopUserInterrupted})
		return sid, events

	case CommandSetPlanMode:
		l.mu.Lock()
		l.planMode = cmd.PlanMode
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandSetThinkingLevel:
		l.mu.Lock()
		l.thinkingLevel = cmd.ThinkingLevel
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandSetModel:
		l.mu.Lock()
		if cmd.Model != nil {
			l.model = *cmd.Model
		}
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandSetOutputStyle:
		l.mu.Lock()
		l.outputStyle = cmd.OutputStyle
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandApprovalResponse:
		l.cfg.Dispatcher.RespondApproval(cmd.ApprovalResponse)
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandBackgroundAllTasks:
		if l.cfg.Subagents != nil {
			l.cfg.Subagents.BackgroundAll()
		}
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandClearQueues:
		l.mu.Lock()
		l.steering = nil
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
		return sid, events

	case CommandShutdown:
		l.mu.Lock()
		l.shutdown = true
		if l.activeCancel != nil {
			l.activeCancel()
		}
		l.mu.Unlock()
		l.finish(events, sid, LoopResult{Reason: StopShutdown})
		return sid, events

	case CommandQueueCommand:
		l.mu.Lock()
		l.steering = append(l.steering, cmd.Text)
		alreadyActive := l.active
		l.mu.Unlock()
		if alreadyActive {
			// A turn loop is already running: the queued text is consumed at
			// its next turn boundary (spec.md §4.1's steering injection), so
			// this submission has nothing further to do.
			l.finish(events, sid, LoopResult{Reason: StopModelStopSignal})
			return sid, events
		}
		go l.run(sid, events, cmd)
		return sid, events

	case CommandSubmitInput, CommandExecuteSkill:
		go l.run(sid, events, cmd)
		return sid, events

	default:
		l.finish(events, sid, LoopResult{Reason: StopError, Err: fmt.Errorf("loop: unknown command kind %q", cmd.Kind)})
		return sid, events
	}
}

func (l *Loop) finish(events chan LoopEvent, sid core.SubmissionID, res LoopResult) {
	events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &res}
	close(events)
}

// run executes turns until a stop condition is reached (spec.md §4.1: stop
// conditions max_turns, max_tokens, Shutdown, Interrupt, or a terminal
// model finish_reason).
func (l *Loop) run(sid core.SubmissionID, events chan LoopEvent, cmd UserCommand) {
	defer close(events)

	ctx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	l.activeCancel = cancel
	l.active = true
	l.activeEvents = events
	l.activeSID = sid
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.activeCancel = nil
		l.active = false
		l.activeEvents = nil
		l.activeSID = core.SubmissionID("")
		l.mu.Unlock()
		cancel()
	}()

	if cmd.Kind == CommandSubmitInput || cmd.Kind == CommandExecuteSkill {
		l.mu.Lock()
		l.history = append(l.history, core.Message{Role: core.RoleUser, Content: []core.ContentBlock{core.TextBlock{Text: cmd.Text}}})
		l.mu.Unlock()
	}

	turnCount := 0
	for {
		l.mu.Lock()
		if l.shutdown {
			l.mu.Unlock()
			events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &LoopResult{Reason: StopShutdown, TurnCount: turnCount}}
			return
		}
		l.mu.Unlock()

		if turnCount >= l.cfg.MaxTurns {
			events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &LoopResult{Reason: StopMaxTurnsReached, TurnCount: turnCount}}
			return
		}

		turnID := core.NewTurnID()
		outcome, err := l.runTurn(ctx, sid, turnID, events)
		turnCount++

		if err != nil {
			if ctx.Err() != nil {
				events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &LoopResult{Reason: StopUserInterrupted, TurnCount: turnCount}}
				return
			}
			events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &LoopResult{Reason: StopError, TurnCount: turnCount, Err: err}}
			return
		}

		if !outcome.continueLoop {
			events <- LoopEvent{Kind: EventStop, SubmissionID: sid, Stop: &LoopResult{Reason: outcome.stopReason, TurnCount: turnCount}}
			return
		}
	}
}

// turnOutcome is runTurn's internal verdict: either the loop should build
// another turn (ToolUse finish_reason) or it should stop with the given
// reason (spec.md §4.1 step 6).
type turnOutcome struct {
	continueLoop bool
	stopReason   StopReasonKind
}

// runTurn executes the six-step turn algorithm from spec.md §4.1.
func (l *Loop) runTurn(ctx context.Context, sid core.SubmissionID, turnID core.TurnID, events chan LoopEvent) (turnOutcome, error) {
	// Step 1: build request (reminders, tool list, history + steering).
	l.mu.Lock()
	steering := l.steering
	l.steering = nil
	thinking := l.thinkingLevel
	model := l.model
	history := append([]core.Message(nil), l.history...)
	l.mu.Unlock()

	for _, text := range steering {
		history = append(history, core.Message{
			Role:    core.RoleUser,
			Content: []core.ContentBlock{core.TextBlock{Text: "<system-reminder>" + text + "</system-reminder>"}},
		})
	}

	reminderReq := ReminderRequest{TurnID: turnID, HasUserInput: len(steering) > 0 || turnHasRecentUser(history)}

	if mm, ok := l.cfg.Reminders.(multiMessageSource); ok {
		for _, m := range mm.Messages(ctx, reminderReq) {
			history = append(history, core.Message{Role: m.Role, Content: m.Content})
		}
	}

	reminders := l.cfg.Reminders.Generate(ctx, reminderReq)
	if len(reminders) > 0 {
		history = append(history, core.Message{Role: core.RoleUser, Content: reminders})
	}

	tools := SelectToolsForModel(l.cfg.Registry.All(), l.cfg.ModelInfo)

	// Step 2: merge provider options and invoke the stream.
	thinkingOpts := provider.ConvertThinking(thinking, l.cfg.ModelInfo.Provider)
	opts := provider.MergeRequestOptions(thinkingOpts, l.cfg.ModelInfo)

	req := &provider.Request{Messages: history, Tools: tools, Model: model, Options: opts}

	snap, err := l.streamWithRecovery(ctx, sid, turnID, req, events)
	if err != nil {
		return turnOutcome{}, err
	}

	assistantMsg := snapshotToMessage(snap)
	l.mu.Lock()
	l.history = append(l.history, assistantMsg)
	l.mu.Unlock()

	// Step 4: dispatch tool calls, if any.
	toolCalls := snapshotToolCalls(snap)
	if len(toolCalls) > 0 {
		results := l.cfg.Dispatcher.Dispatch(ctx, l.cfg.WorkerID, toolCalls)
		for _, r := range results {
			events <- LoopEvent{Kind: EventToolEnd, SubmissionID: sid, TurnID: turnID, ToolCallID: r.CallID, ToolResult: &r}
		}

		// Step 5: apply context modifiers (plan-mode tool restriction etc. are
		// enforced by the permission resolver already; here we only fold the
		// FileRead/PermissionGranted/SkillAllowedTools bookkeeping the
		// dispatcher accumulated).
		l.applyContextModifiers(l.cfg.Dispatcher.DrainModifiers())

		var content []core.ContentBlock
		for _, r := range results {
			content = append(content, core.ToolResultBlock{CallID: r.CallID, Content: r.Content, IsError: r.IsError})
		}
		l.mu.Lock()
		l.history = append(l.history, core.Message{Role: core.RoleTool, Content: content})
		l.mu.Unlock()

		// A successful complete_task call ends a spawned child's turn loop.
		for i, r := range results {
			if toolCalls[i].Name == subagent.CompleteTaskToolName && !r.IsError {
				return turnOutcome{stopReason: StopModelStopSignal}, nil
			}
		}
	}

	// Plan mode enforcement (blocking non-plan-file writes) lives entirely in
	// dispatch.Resolver, consulted during step 3 of the dispatch pipeline.

	// Step 6: continue-or-terminate based on finish_reason.
	switch snap.FinishReason {
	case "tool_use", "":
		if len(toolCalls) > 0 {
			return turnOutcome{continueLoop: true}, nil
		}
		return turnOutcome{stopReason: StopModelStopSignal}, nil
	case "length":
		return turnOutcome{stopReason: StopTokenBudgetExhaust}, nil
	case "content_filter":
		return turnOutcome{stopReason: StopError}, nil
	default:
		return turnOutcome{stopReason: StopModelStopSignal}, nil
	}
}

// streamWithRecovery invokes the provider stream, retrying up to
// MaxOutputTokenRecovery times with an increased output budget when the
// failure is a MaxOutputTokens error (spec.md §4.1).
func (l *Loop) streamWithRecovery(ctx context.Context, sid core.SubmissionID, turnID core.TurnID, req *provider.Request, events chan LoopEvent) (*provider.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxOutputTokenRecovery; attempt++ {
		stream, err := l.cfg.Client.Stream(ctx, req)
		if err != nil {
			lastErr = err
			if !core.IsMaxOutputTokens(err) {
				return nil, err
			}
			growOutputBudget(req)
			continue
		}
		snap, err := provider.Consume(stream, func(ev provider.Event) {
			l.emitStreamEvent(events, sid, turnID, ev)
		})
		_ = stream.Close()
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !core.IsMaxOutputTokens(err) {
			return snap, err
		}
		growOutputBudget(req)
	}
	return nil, lastErr
}

// growOutputBudget doubles the requested output-token ceiling, stashed in
// Options.Extra since no provider variant declares a typed field for it
// (spec.md §4.4's typed fields cover thinking/reasoning only).
func growOutputBudget(req *provider.Request) {
	if req.Options == nil {
		req.Options = &provider.Options{}
	}
	if req.Options.Extra == nil {
		req.Options.Extra = map[string]any{}
	}
	current, _ := req.Options.Extra["max_output_tokens"].(int)
	if current == 0 {
		current = 4096
	}
	req.Options.Extra["max_output_tokens"] = current * 2
}

func (l *Loop) emitStreamEvent(events chan LoopEvent, sid core.SubmissionID, turnID core.TurnID, ev provider.Event) {
	switch ev.Type {
	case provider.EventTextDelta:
		events <- LoopEvent{Kind: EventAssistantText, SubmissionID: sid, TurnID: turnID, TextDelta: ev.TextDelta}
	case provider.EventThinkingDelta:
		events <- LoopEvent{Kind: EventThinkingDelta, SubmissionID: sid, TurnID: turnID, TextDelta: ev.ThinkingDelta}
	case provider.EventToolCallDone:
		if ev.ToolCall != nil {
			events <- LoopEvent{Kind: EventToolStart, SubmissionID: sid, TurnID: turnID, ToolCallID: ev.ToolCall.ID, ToolName: ev.ToolCall.Name}
		}
	}
}

// applyContextModifiers folds dispatcher-reported effects into loop state
// (spec.md §4.1 step 5). Permission grants are applied by the dispatcher
// itself via Resolver.AddRule at approval time; FileRead/FileWrite
// bookkeeping has no state of its own in this package and is forwarded to
// OnContextModifiers, if configured, for callers like a ReadTracker or
// ChangedFilesGenerator to consume.
func (l *Loop) applyContextModifiers(mods []dispatch.ContextModifier) {
	if l.cfg.OnContextModifiers != nil && len(mods) > 0 {
		l.cfg.OnContextModifiers(mods)
	}
}

func turnHasRecentUser(history []core.Message) bool {
	if len(history) == 0 {
		return false
	}
	return history[len(history)-1].Role == core.RoleUser
}

func snapshotToMessage(snap *provider.Snapshot) core.Message {
	var content []core.ContentBlock
	if snap.Text != "" {
		content = append(content, core.TextBlock{Text: snap.Text})
	}
	if snap.Thinking != nil {
		content = append(content, core.ThinkingBlock{Content: snap.Thinking.Text, Signature: snap.Thinking.Signature})
	}
	for _, tc := range snap.ToolCalls {
		content = append(content, core.ToolUseBlock{ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Arguments)})
	}
	return core.Message{Role: core.RoleAssistant, Content: content}
}

func snapshotToolCalls(snap *provider.Snapshot) []core.ToolUseBlock {
	out := make([]core.ToolUseBlock, 0, len(snap.ToolCalls))
	for _, tc := range snap.ToolCalls {
		if !tc.Done {
			continue
		}
		out = append(out, core.ToolUseBlock{ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Arguments)})
	}
	return out
}
