package provider

import (
	"errors"
	"io"

	"github.com/coreagent/runtime/agent/core"
)

// EventType tags the variant of a streaming Event.
type EventType string

const (
	EventResponseCreated EventType = "response_created"
	EventTextDelta       EventType = "text_delta"
	EventTextDone        EventType = "text_done"
	EventThinkingDelta   EventType = "thinking_delta"
	EventThinkingDone    EventType = "thinking_done"
	EventToolCallStart   EventType = "tool_call_start"
	EventToolCallDelta   EventType = "tool_call_delta"
	EventToolCallDone    EventType = "tool_call_done"
	EventResponseDone    EventType = "response_done"
	EventError           EventType = "error"
	EventIgnored         EventType = "ignored"
)

// Event is one streaming chunk from a provider, normalized to a single tagged
// shape so the stream processor can stay provider-agnostic (spec.md §3).
type Event struct {
	Type EventType

	// ResponseCreated
	ResponseID string

	// TextDelta
	TextDelta string

	// ThinkingDelta / ThinkingDone
	ThinkingDelta     string
	ThinkingContent   string
	ThinkingSignature string

	// ToolCallStart / ToolCallDelta / ToolCallDone
	ToolCallIndex         int
	ToolCallID            string
	ToolCallName          string
	ToolCallArgumentsDelta string
	ToolCall              *core.ToolUseBlock

	// ResponseDone
	Usage        TokenUsage
	FinishReason string
	Model        string

	// Error
	Err error
}

// ToolCallSnapshot is the running accumulation of a single tool call as its
// deltas arrive.
type ToolCallSnapshot struct {
	ID        string
	Name      string
	Arguments string // concatenated raw JSON fragments
	Done      bool
}

// ThinkingSnapshot accumulates a reasoning block.
type ThinkingSnapshot struct {
	Text      string
	Signature string
}

// SnapshotState is the explicit tagged state of the stream processor,
// replacing the implicit state shared between closures in the teacher's
// source pattern (spec.md §9).
type SnapshotState string

const (
	StateInitial   SnapshotState = "initial"
	StateStreaming SnapshotState = "streaming"
	StateComplete  SnapshotState = "complete"
	StateFailed    SnapshotState = "failed"
)

// Snapshot is the running accumulation of a streamed response. Invariant
// (spec.md §8 invariant 1): Text equals the concatenation of every delivered
// TextDelta in arrival order.
type Snapshot struct {
	State SnapshotState

	ResponseID string
	Model      string
	Text       string
	Thinking   *ThinkingSnapshot

	// ToolCalls preserves the order of first appearance (spec.md §3
	// invariant: "tool_calls preserve the order of first appearance").
	ToolCalls []*ToolCallSnapshot

	Usage        TokenUsage
	FinishReason string
	Err          error

	// toolIndex maps a provider stream index to a position in ToolCalls.
	toolIndex map[int]int

	thinkingDeltaSeen bool
}

// IsComplete reports whether the snapshot reached a terminal state.
func (s *Snapshot) IsComplete() bool {
	return s.State == StateComplete || s.State == StateFailed
}

// NewSnapshot returns a freshly initialized Snapshot in StateInitial.
func NewSnapshot() *Snapshot {
	return &Snapshot{State: StateInitial, toolIndex: map[int]int{}}
}

// Apply folds one Event into the snapshot, advancing its state machine.
// Applying an Event after the snapshot is already complete is a no-op,
// defending terminal-state determinism against any duplicate delivery.
func (s *Snapshot) Apply(ev Event) {
	if s.IsComplete() {
		return
	}
	if s.State == StateInitial && ev.Type != EventError {
		s.State = StateStreaming
	}
	switch ev.Type {
	case EventResponseCreated:
		s.ResponseID = ev.ResponseID
	case EventTextDelta:
		s.Text += ev.TextDelta
	case EventTextDone:
		// no-op: Text already holds the full concatenation.
	case EventThinkingDelta:
		if s.Thinking == nil {
			s.Thinking = &ThinkingSnapshot{}
		}
		s.Thinking.Text += ev.ThinkingDelta
		s.thinkingDeltaSeen = true
	case EventThinkingDone:
		// Prefer accumulated deltas; fall back to the final content only if
		// no deltas arrived (spec.md §4.4: "ThinkingDone prefers accumulated
		// deltas... if no deltas arrived, uses the final content").
		if s.Thinking == nil {
			s.Thinking = &ThinkingSnapshot{}
		}
		if !s.thinkingDeltaSeen {
			s.Thinking.Text = ev.ThinkingContent
		}
		s.Thinking.Signature = ev.ThinkingSignature
	case EventToolCallStart:
		tc := &ToolCallSnapshot{ID: ev.ToolCallID, Name: ev.ToolCallName}
		s.ToolCalls = append(s.ToolCalls, tc)
		s.toolIndex[ev.ToolCallIndex] = len(s.ToolCalls) - 1
	case EventToolCallDelta:
		if pos, ok := s.toolIndex[ev.ToolCallIndex]; ok {
			s.ToolCalls[pos].Arguments += ev.ToolCallArgumentsDelta
		}
	case EventToolCallDone:
		if pos, ok := s.toolIndex[ev.ToolCallIndex]; ok {
			s.ToolCalls[pos].Done = true
			if ev.ToolCall != nil {
				s.ToolCalls[pos].ID = ev.ToolCall.ID
				s.ToolCalls[pos].Name = ev.ToolCall.Name
				s.ToolCalls[pos].Arguments = string(ev.ToolCall.Input)
			}
		}
	case EventResponseDone:
		s.Usage = ev.Usage
		s.FinishReason = ev.FinishReason
		if ev.Model != "" {
			s.Model = ev.Model
		}
		s.State = StateComplete
	case EventError:
		s.Err = ev.Err
		s.State = StateFailed
	case EventIgnored:
		// intentionally no-op
	}
}

// Consume drains a Streamer into a Snapshot, invoking onEvent for every
// Event as it arrives so callers can emit incremental UI deltas
// (spec.md §4.1 step 3: "Emit incremental events as deltas arrive").
func Consume(stream Streamer, onEvent func(Event)) (*Snapshot, error) {
	snap := NewSnapshot()
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			snap.Apply(Event{Type: EventError, Err: err})
			return snap, err
		}
		snap.Apply(ev)
		if onEvent != nil {
			onEvent(ev)
		}
		if snap.IsComplete() {
			break
		}
	}
	return snap, snap.Err
}
