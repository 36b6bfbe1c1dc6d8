package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch"
)

// defaultOutputSchema is the fallback complete_task argument shape when a
// child spec declares no OutputSchema: a single free-text "output" field
// (spec.md §4.3).
var defaultOutputSchema = json.RawMessage(`{
	"type": "object",
	"properties": { "output": { "type": "string" } },
	"required": ["output"]
}`)

// completeTaskResult is the sentinel error type complete_task returns. The
// dispatcher recognizes it through dispatch.CompletionSignal and turns the
// payload into the call's non-error result content; the agent loop then
// ends the child's turn loop after that turn.
type completeTaskResult struct {
	Payload []byte
}

func (completeTaskResult) Error() string { return "subagent: task completed" }

// CompletionPayload implements dispatch.CompletionSignal.
func (r completeTaskResult) CompletionPayload() []byte { return r.Payload }

// CompleteTaskToolName is the tool name the child loop's event stream uses
// to recognize the call that ended the turn loop.
const CompleteTaskToolName = "complete_task"

// CompleteTask is the synthetic tool injected into every spawned child's
// tool set. Its schema is the spawn's declared OutputConfig.schema, falling
// back to {"output": string}. Calling it validates the arguments against
// that schema via the same compiled-schema cache the main dispatcher uses,
// then signals completion by returning a completeTaskResult error, which the
// dispatcher turns into the call's result content and after which the
// agent loop stops.
type CompleteTask struct {
	Schema json.RawMessage
	cache  *dispatch.SchemaCache
}

// NewCompleteTask builds a CompleteTask tool bound to schema (or the
// default schema when schema is nil).
func NewCompleteTask(schema json.RawMessage) *CompleteTask {
	if len(schema) == 0 {
		schema = defaultOutputSchema
	}
	return &CompleteTask{Schema: schema, cache: dispatch.NewSchemaCache()}
}

func (t *CompleteTask) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		Name:              "complete_task",
		Parameters:        t.Schema,
		ConcurrencySafety: core.Safe,
		ReadOnly:          true,
		Description:       "Report the final result of this sub-agent's assigned task and end its turn loop.",
	}
}

func (t *CompleteTask) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []dispatch.ContextModifier, error) {
	if err := t.cache.Validate(t.Definition(), input); err != nil {
		return core.ToolResultContent{}, nil, fmt.Errorf("complete_task: %w", err)
	}
	return core.ToolResultContent{}, nil, completeTaskResult{Payload: append([]byte(nil), input...)}
}

// AsCompletion reports whether err is a completeTaskResult and, if so,
// returns its payload, for callers holding the raw error from Execute.
func AsCompletion(err error) ([]byte, bool) {
	ct, ok := err.(completeTaskResult)
	if !ok {
		return nil, false
	}
	return ct.Payload, true
}
