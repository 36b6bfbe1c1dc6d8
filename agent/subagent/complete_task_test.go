package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompleteTaskDefaultSchemaAccepted(t *testing.T) {
	ct := NewCompleteTask(nil)
	_, _, err := ct.Execute(context.Background(), json.RawMessage(`{"output":"hello"}`))
	payload, ok := AsCompletion(err)
	require.True(t, ok)
	require.JSONEq(t, `{"output":"hello"}`, string(payload))
}

func TestCompleteTaskRejectsSchemaMismatch(t *testing.T) {
	ct := NewCompleteTask(nil)
	_, _, err := ct.Execute(context.Background(), json.RawMessage(`{"wrong":"field"}`))
	_, ok := AsCompletion(err)
	require.False(t, ok)
	require.Error(t, err)
}

func TestCompleteTaskCustomSchema(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": { "files_changed": { "type": "integer" } },
		"required": ["files_changed"]
	}`)
	ct := NewCompleteTask(schema)
	_, _, err := ct.Execute(context.Background(), json.RawMessage(`{"files_changed": 3}`))
	payload, ok := AsCompletion(err)
	require.True(t, ok)
	require.JSONEq(t, `{"files_changed": 3}`, string(payload))
}

func TestAsCompletionFalseForOrdinaryError(t *testing.T) {
	_, ok := AsCompletion(context.Canceled)
	require.False(t, ok)
}
