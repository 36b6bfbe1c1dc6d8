package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/sandbox"
)

// CommandInvoker runs Command-handler hooks as subprocesses, sending the
// HookContext as JSON on stdin and parsing one JSON line of HookResult from
// stdout, per spec.md §6's "Hook wire format".
type CommandInvoker struct{}

// wireContext is the JSON-on-stdin shape sent to a hook subprocess.
type wireContext struct {
	Event        EventKind       `json:"event"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolResult   json.RawMessage `json:"tool_result,omitempty"`
	SubmissionID string          `json:"submission_id"`
	TurnID       string          `json:"turn_id"`
}

// wireResult is the JSON-on-stdout shape returned by a hook subprocess.
type wireResult struct {
	Outcome           Outcome                     `json:"outcome"`
	ModifiedInput     json.RawMessage             `json:"modified_input,omitempty"`
	AdditionalContext string                      `json:"additional_context,omitempty"`
	RejectReason      string                      `json:"reject_reason,omitempty"`
	AsyncTaskID       string                      `json:"async_task_id,omitempty"`
	AskUserPrompt     string                      `json:"ask_user_prompt,omitempty"`
	CommandMutations  []sandbox.CommandMutation   `json:"command_mutations,omitempty"`
}

func (CommandInvoker) Invoke(ctx context.Context, def *HookDefinition, hctx HookContext) (HookResult, error) {
	if def.Command == nil {
		return HookResult{}, core.NewError(core.ErrConfigError, "hooks: command handler missing for "+def.Name)
	}
	runCtx := ctx
	cancel := func() {}
	if def.Command.Timeout > 0 {
		var c context.CancelFunc
		runCtx, c = context.WithTimeout(ctx, def.Command.Timeout)
		cancel = c
	}
	defer cancel()

	payload, err := json.Marshal(wireContext{
		Event:        hctx.Event,
		ToolName:     hctx.ToolName,
		ToolInput:    hctx.ToolInput,
		ToolResult:   hctx.ToolResult,
		SubmissionID: hctx.SubmissionID,
		TurnID:       hctx.TurnID,
	})
	if err != nil {
		return HookResult{}, err
	}

	cmd := exec.CommandContext(runCtx, def.Command.Exe, def.Command.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return HookResult{}, core.WrapError(core.ErrInternal, "hooks: command invocation failed", err)
	}

	var wr wireResult
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &wr); err != nil {
		return HookResult{}, core.WrapError(core.ErrParseError, "hooks: malformed hook response", err)
	}
	return HookResult{
		Outcome:           wr.Outcome,
		ModifiedInput:     wr.ModifiedInput,
		AdditionalContext: wr.AdditionalContext,
		RejectReason:      wr.RejectReason,
		AsyncTaskID:       wr.AsyncTaskID,
		AskUserPrompt:     wr.AskUserPrompt,
		CommandMutations:  wr.CommandMutations,
	}, nil
}
