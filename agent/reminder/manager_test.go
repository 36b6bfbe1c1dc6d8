package reminder

import (
	"context"
	"testing"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/loop"
)

// fixedGen is a Generator stub whose Generate always returns the same
// Content (or nil), for exercising Manager throttling in isolation.
type fixedGen struct {
	at      AttachmentType
	tier    Tier
	cfg     ThrottleConfig
	content *Content
}

func (g fixedGen) AttachmentType() AttachmentType { return g.at }
func (g fixedGen) Tier() Tier                     { return g.tier }
func (g fixedGen) Throttle() ThrottleConfig       { return g.cfg }
func (g fixedGen) Generate(context.Context, GenContext) (*Content, error) {
	return g.content, nil
}

// TestShouldEmitMinTurnsBetween is scenario S6 from spec.md §7 verbatim:
// min_turns_between=5, last_generated_turn=10 → turn 13 suppressed, turn 15
// emitted (15-10 == 5, not < 5).
func TestShouldEmitMinTurnsBetween(t *testing.T) {
	cfg := ThrottleConfig{MinTurnsBetween: 5}
	st := &state{lastEmittedTurn: 10, triggerTurn: -1}

	if shouldEmit(cfg, st, 13) {
		t.Fatal("turn 13 should be suppressed (13-10=3 < 5)")
	}
	if !shouldEmit(cfg, st, 15) {
		t.Fatal("turn 15 should be emitted (15-10=5, not < 5)")
	}
}

func TestShouldEmitMaxPerSession(t *testing.T) {
	cfg := ThrottleConfig{MaxPerSession: 2}
	st := &state{lastEmittedTurn: -1, triggerTurn: -1, sessionCount: 2}
	if shouldEmit(cfg, st, 100) {
		t.Fatal("session cap reached, must not emit")
	}
}

func TestShouldEmitMinTurnsAfterTrigger(t *testing.T) {
	cfg := ThrottleConfig{MinTurnsAfterTrigger: 3}
	st := &state{lastEmittedTurn: -1, triggerTurn: 10}
	if shouldEmit(cfg, st, 11) {
		t.Fatal("too soon after trigger")
	}
	if !shouldEmit(cfg, st, 13) {
		t.Fatal("should emit once trigger spacing satisfied")
	}
}

func TestShouldUseFullContent(t *testing.T) {
	cfg := ThrottleConfig{FullContentEveryN: 3}
	st := &state{}
	got := []bool{}
	for i := 0; i < 6; i++ {
		got = append(got, shouldUseFullContent(cfg, st))
		st.emitCount++
	}
	want := []bool{true, false, false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emission %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func blockText(t *testing.T, b core.ContentBlock) string {
	t.Helper()
	tb, ok := b.(core.TextBlock)
	if !ok {
		t.Fatalf("block is not a TextBlock: %#v", b)
	}
	return tb.Text
}

func TestManagerFixedOrdering(t *testing.T) {
	m := NewManager()
	// Register out of attachmentOrder's declared sequence on purpose.
	m.Register(fixedGen{at: AttachmentOutputStyle, tier: TierCore, content: &Content{Kind: ContentText, Text: "style"}})
	m.Register(fixedGen{at: AttachmentChangedFiles, tier: TierCore, content: &Content{Kind: ContentText, Text: "files"}})
	m.Register(fixedGen{at: AttachmentTodoReminder, tier: TierCore, content: &Content{Kind: ContentText, Text: "todos"}})

	blocks := m.Generate(context.Background(), loop.ReminderRequest{})
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	// attachmentOrder places changed_files before todo_reminder before
	// output_style, regardless of registration order or goroutine finish
	// order.
	want := []string{"files", "todos", "style"}
	for i, w := range want {
		got := blockText(t, blocks[i])
		if got != formatReminderText(w) {
			t.Fatalf("block %d: got %q, want %q", i, got, formatReminderText(w))
		}
	}
}

func TestManagerSkipsMainAgentOnlyForSubagent(t *testing.T) {
	m := NewManager()
	m.Register(&BackgroundTaskGenerator{Running: func() []string { return []string{"task-1"} }})

	blocks := m.Generate(context.Background(), loop.ReminderRequest{IsSubagent: true})
	if len(blocks) != 0 {
		t.Fatalf("main_agent_only generator must not run for a subagent turn, got %d blocks", len(blocks))
	}

	blocks = m.Generate(context.Background(), loop.ReminderRequest{IsSubagent: false})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block for main agent turn, got %d", len(blocks))
	}
}

func TestManagerSkipsUserPromptTierWithoutUserInput(t *testing.T) {
	m := NewManager()
	m.Register(SecurityGuidelinesGenerator{})

	blocks := m.Generate(context.Background(), loop.ReminderRequest{HasUserInput: false})
	if len(blocks) != 0 {
		t.Fatalf("user_prompt generator must not run without fresh user input, got %d blocks", len(blocks))
	}

	blocks = m.Generate(context.Background(), loop.ReminderRequest{HasUserInput: true})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block once user input is present, got %d", len(blocks))
	}
}

func TestAlreadyReadFileProducesMessagePairs(t *testing.T) {
	m := NewManager()
	m.Register(&AlreadyReadFileGenerator{
		Pending: func() []AlreadyRead {
			return []AlreadyRead{{Path: "main.go", ReadCount: 2}}
		},
	})

	msgs := m.Messages(context.Background(), loop.ReminderRequest{})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (assistant tool_use + tool tool_result)", len(msgs))
	}
	if msgs[0].Role != core.RoleAssistant {
		t.Fatalf("first message role = %v, want assistant", msgs[0].Role)
	}
	if msgs[1].Role != core.RoleTool {
		t.Fatalf("second message role = %v, want tool", msgs[1].Role)
	}
	if _, ok := msgs[0].Content[0].(core.ToolUseBlock); !ok {
		t.Fatalf("first message content is not a ToolUseBlock: %#v", msgs[0].Content[0])
	}
	if _, ok := msgs[1].Content[0].(core.ToolResultBlock); !ok {
		t.Fatalf("second message content is not a ToolResultBlock: %#v", msgs[1].Content[0])
	}
}
