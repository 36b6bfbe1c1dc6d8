package loop

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch"
	"github.com/coreagent/runtime/agent/features"
	"github.com/coreagent/runtime/agent/hooks"
	"github.com/coreagent/runtime/agent/provider"
	"github.com/coreagent/runtime/agent/telemetry"
)

type scriptedStream struct {
	events []provider.Event
	pos    int
}

func (s *scriptedStream) Recv() (provider.Event, error) {
	if s.pos >= len(s.events) {
		return provider.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedClient struct {
	turns [][]provider.Event
	idx   int
}

func (c *scriptedClient) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return nil, core.NewError(core.ErrUnsupportedCapability, "scriptedClient: Complete not used")
}

func (c *scriptedClient) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	if c.idx >= len(c.turns) {
		return nil, core.NewError(core.ErrInternal, "scriptedClient: no more scripted turns")
	}
	events := c.turns[c.idx]
	c.idx++
	return &scriptedStream{events: events}, nil
}

type echoTool struct{}

func (echoTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{Name: "echo", ConcurrencySafety: core.Safe, ReadOnly: true}
}

func (echoTool) Execute(ctx context.Context, input json.RawMessage) (core.ToolResultContent, []dispatch.ContextModifier, error) {
	return core.TextResult("echoed"), nil, nil
}

func newTestLoop(t *testing.T, turns [][]provider.Event) (*Loop, *scriptedClient) {
	t.Helper()
	registry := dispatch.NewRegistry()
	registry.Register(echoTool{})

	perms := dispatch.NewResolver()
	perms.Bypass = true

	chain := hooks.NewChain(nil, telemetry.NoopLogger{})
	d := dispatch.New(registry, perms, chain, nil, nil, nil, features.New(), telemetry.NoopLogger{})

	client := &scriptedClient{turns: turns}

	l := New(Config{
		WorkerID:   "worker-1",
		Client:     client,
		Registry:   registry,
		Dispatcher: d,
		Log:        telemetry.NoopLogger{},
	})
	return l, client
}

func drain(t *testing.T, events <-chan LoopEvent, timeout time.Duration) []LoopEvent {
	t.Helper()
	var out []LoopEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestSubmitInputSingleTurnStops(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Type: provider.EventTextDelta, TextDelta: "hello"},
			{Type: provider.EventResponseDone, FinishReason: "stop"},
		},
	}
	l, _ := newTestLoop(t, turns)

	_, events := l.Submit(UserCommand{Kind: CommandSubmitInput, Text: "hi"})
	got := drain(t, events, time.Second)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Equal(t, EventStop, last.Kind)
	require.Equal(t, StopModelStopSignal, last.Stop.Reason)
	require.Equal(t, 1, last.Stop.TurnCount)
}

func TestSubmitInputDispatchesToolThenStops(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Type: provider.EventToolCallStart, ToolCallIndex: 0, ToolCallID: "call-1", ToolCallName: "echo"},
			{Type: provider.EventToolCallDone, ToolCallIndex: 0, ToolCall: &core.ToolUseBlock{ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`)}},
			{Type: provider.EventResponseDone, FinishReason: "tool_use"},
		},
		{
			{Type: provider.EventTextDelta, TextDelta: "done"},
			{Type: provider.EventResponseDone, FinishReason: "stop"},
		},
	}
	l, client := newTestLoop(t, turns)

	_, events := l.Submit(UserCommand{Kind: CommandSubmitInput, Text: "run echo"})
	got := drain(t, events, time.Second)

	require.Equal(t, 2, client.idx)
	last := got[len(got)-1]
	require.Equal(t, StopModelStopSignal, last.Stop.Reason)
	require.Equal(t, 2, last.Stop.TurnCount)

	var sawToolEnd bool
	for _, ev := range got {
		if ev.Kind == EventToolEnd {
			sawToolEnd = true
			require.False(t, ev.ToolResult.IsError)
			require.Equal(t, "echoed", ev.ToolResult.Content.Text)
		}
	}
	require.True(t, sawToolEnd)
}

func TestMaxTurnsStopsLoop(t *testing.T) {
	toolUseTurn := []provider.Event{
		{Type: provider.EventToolCallStart, ToolCallIndex: 0, ToolCallID: "call-1", ToolCallName: "echo"},
		{Type: provider.EventToolCallDone, ToolCallIndex: 0, ToolCall: &core.ToolUseBlock{ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`)}},
		{Type: provider.EventResponseDone, FinishReason: "tool_use"},
	}
	turns := make([][]provider.Event, 5)
	for i := range turns {
		turns[i] = toolUseTurn
	}

	registry := dispatch.NewRegistry()
	registry.Register(echoTool{})
	perms := dispatch.NewResolver()
	perms.Bypass = true
	chain := hooks.NewChain(nil, telemetry.NoopLogger{})
	d := dispatch.New(registry, perms, chain, nil, nil, nil, features.New(), telemetry.NoopLogger{})
	client := &scriptedClient{turns: turns}

	l := New(Config{WorkerID: "w", Client: client, Registry: registry, Dispatcher: d, MaxTurns: 3})

	_, events := l.Submit(UserCommand{Kind: CommandSubmitInput, Text: "loop forever"})
	got := drain(t, events, time.Second)

	last := got[len(got)-1]
	require.Equal(t, StopMaxTurnsReached, last.Stop.Reason)
	require.Equal(t, 3, last.Stop.TurnCount)
}

func TestSetPlanModeAppliesSynchronously(t *testing.T) {
	l, _ := newTestLoop(t, nil)
	_, events := l.Submit(UserCommand{Kind: CommandSetPlanMode, PlanMode: true})
	drain(t, events, time.Second)

	l.mu.Lock()
	defer l.mu.Unlock()
	require.True(t, l.planMode)
}

func TestQueueCommandWhileIdleStartsATurn(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Type: provider.EventTextDelta, TextDelta: "ack"},
			{Type: provider.EventResponseDone, FinishReason: "stop"},
		},
	}
	l, _ := newTestLoop(t, turns)

	_, events := l.Submit(UserCommand{Kind: CommandQueueCommand, Text: "steer this"})
	got := drain(t, events, time.Second)
	last := got[len(got)-1]
	require.Equal(t, StopModelStopSignal, last.Stop.Reason)
}
