package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/loop"
)

// state is the per-attachment-type throttle bookkeeping the Manager keeps
// for the life of a session. Grounded on goa-ai's reminder.reminderState
// (emitted/lastTurn), generalized with trigger/session tracking for
// spec.md's MinTurnsAfterTrigger and MaxPerSession fields.
type state struct {
	lastEmittedTurn int // -1 until first emission
	triggerTurn     int // -1 until NoteTrigger is called
	sessionCount    int
	emitCount       int // total emissions, for FullContentEveryN
}

// GeneratorTimeout bounds how long the Manager waits for a single
// Generator.Generate call before dropping it for that turn. A slow or
// hung generator must never stall the whole turn.
const GeneratorTimeout = 2 * time.Second

// Manager fans a turn boundary out to every registered Generator in
// parallel, applies each one's ThrottleConfig, and assembles the surviving
// attachments back into the fixed spec.md §4.5/§5 ordering. It implements
// loop.ReminderSource and the additive multiMessageSource interface
// loop.go type-asserts for AlreadyReadFile-style multi-message reminders.
type Manager struct {
	mu         sync.Mutex
	generators map[AttachmentType]Generator
	state      map[AttachmentType]*state
	turnSeq    int

	// loop.go calls both Generate and Messages for the same turn (one for
	// text blocks, one for multi-message reminders); cached by request so a
	// single turn only ever consumes one turnSeq / one throttle update
	// instead of running every generator twice.
	cachedReq     loop.ReminderRequest
	cachedResults []genResult
	cachedValid   bool
}

// NewManager builds an empty Manager. Register generators with Register.
func NewManager() *Manager {
	return &Manager{
		generators: map[AttachmentType]Generator{},
		state:      map[AttachmentType]*state{},
	}
}

// Register adds g to the set consulted on every turn. Re-registering the
// same AttachmentType replaces the previous generator but preserves its
// throttle state.
func (m *Manager) Register(g Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generators[g.AttachmentType()] = g
	if _, ok := m.state[g.AttachmentType()]; !ok {
		m.state[g.AttachmentType()] = &state{lastEmittedTurn: -1, triggerTurn: -1}
	}
}

// NoteTrigger records that an external event (e.g. a plan approval) just
// happened for the given attachment type, resetting its
// MinTurnsAfterTrigger clock.
func (m *Manager) NoteTrigger(at AttachmentType, turn int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[at]
	if !ok {
		st = &state{lastEmittedTurn: -1}
		m.state[at] = st
	}
	st.triggerTurn = turn
}

// shouldEmit applies the ThrottleConfig gates in spec.md §4.5: session cap,
// spacing since the last emission, and spacing since the last trigger.
func shouldEmit(cfg ThrottleConfig, st *state, turn int) bool {
	if cfg.MaxPerSession > 0 && st.sessionCount >= cfg.MaxPerSession {
		return false
	}
	if cfg.MinTurnsBetween > 0 && st.lastEmittedTurn >= 0 && turn-st.lastEmittedTurn < cfg.MinTurnsBetween {
		return false
	}
	if cfg.MinTurnsAfterTrigger > 0 && st.triggerTurn >= 0 && turn-st.triggerTurn < cfg.MinTurnsAfterTrigger {
		return false
	}
	return true
}

// shouldUseFullContent implements FullContentEveryN: the (emitCount+1)'th
// emission (1-indexed, so the very first emission is always full) uses the
// full-content variant.
func shouldUseFullContent(cfg ThrottleConfig, st *state) bool {
	if cfg.FullContentEveryN <= 1 {
		return true
	}
	return st.emitCount%cfg.FullContentEveryN == 0
}

type genResult struct {
	at      AttachmentType
	content *Content
}

// generate runs every eligible generator in parallel under a shared
// deadline and returns the survivors ordered per attachmentOrder,
// regardless of goroutine completion order. Grounded on
// dispatch.Dispatcher.Dispatch's WaitGroup fan-out pattern (agent/dispatch/
// dispatcher.go) rather than golang.org/x/sync/errgroup, which is not a
// dependency of this module's corpus; see DESIGN.md.
func (m *Manager) generate(ctx context.Context, req loop.ReminderRequest) []genResult {
	m.mu.Lock()
	if m.cachedValid && m.cachedReq == req {
		cached := m.cachedResults
		m.mu.Unlock()
		return cached
	}
	m.turnSeq++
	turn := m.turnSeq
	type job struct {
		g  Generator
		st *state
		gc GenContext
	}
	var jobs []job
	for at, g := range m.generators {
		if g.Tier() == TierMainAgentOnly && req.IsSubagent {
			continue
		}
		if g.Tier() == TierUserPrompt && !req.HasUserInput {
			continue
		}
		st := m.state[at]
		cfg := g.Throttle()
		if !shouldEmit(cfg, st, turn) {
			continue
		}
		jobs = append(jobs, job{g: g, st: st, gc: GenContext{
			TurnID:       req.TurnID,
			TurnSeq:      turn,
			HasUserInput: req.HasUserInput,
			IsSubagent:   req.IsSubagent,
			Full:         shouldUseFullContent(cfg, st),
		}})
	}
	m.mu.Unlock()

	done := make(chan genResult, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			gctx, cancel := context.WithTimeout(ctx, GeneratorTimeout)
			defer cancel()
			content, err := j.g.Generate(gctx, j.gc)
			if err != nil {
				content = nil
			}
			done <- genResult{at: j.g.AttachmentType(), content: content}
		}(j)
	}
	var results []genResult
	deadline := time.After(GeneratorTimeout)
	for n := 0; n < len(jobs); n++ {
		select {
		case r := <-done:
			results = append(results, r)
		case <-deadline:
			n = len(jobs)
		}
	}

	m.mu.Lock()
	for _, r := range results {
		if r.content == nil {
			continue
		}
		st := m.state[r.at]
		st.lastEmittedTurn = turn
		st.sessionCount++
		st.emitCount++
	}
	m.mu.Unlock()

	byType := map[AttachmentType]*Content{}
	for _, r := range results {
		if r.content != nil {
			byType[r.at] = r.content
		}
	}

	ordered := make([]genResult, 0, len(byType))
	for _, at := range attachmentOrder {
		if c, ok := byType[at]; ok {
			ordered = append(ordered, genResult{at: at, content: c})
		}
	}

	m.mu.Lock()
	m.cachedReq = req
	m.cachedResults = ordered
	m.cachedValid = true
	m.mu.Unlock()

	return ordered
}

// Generate implements loop.ReminderSource: text-kind reminders are wrapped
// in <system-reminder> tags and concatenated; multi-message reminders
// contribute nothing here (their message pairs are delivered only via
// Messages, consulted separately through the multiMessageSource interface).
func (m *Manager) Generate(ctx context.Context, req loop.ReminderRequest) []core.ContentBlock {
	ordered := m.generate(ctx, req)
	var blocks []core.ContentBlock
	for _, r := range ordered {
		if r.content.Kind != ContentText || r.content.Text == "" {
			continue
		}
		blocks = append(blocks, core.TextBlock{Text: formatReminderText(r.content.Text)})
	}
	return blocks
}

// Messages implements the additive multi-message extension loop.go
// type-asserts for (loop.multiMessageSource). It returns the synthetic
// message pairs every MultiMessage-kind generator produced this turn, in
// attachmentOrder.
func (m *Manager) Messages(ctx context.Context, req loop.ReminderRequest) []loop.ReminderMessage {
	ordered := m.generate(ctx, req)
	var msgs []loop.ReminderMessage
	for _, r := range ordered {
		if r.content.Kind != ContentMultiMessage {
			continue
		}
		for _, rm := range r.content.Messages {
			msgs = append(msgs, loop.ReminderMessage{Role: rm.Role, Content: rm.Content})
		}
	}
	return msgs
}

func formatReminderText(text string) string {
	if hasReminderTag(text) {
		return text
	}
	return "<system-reminder>\n" + text + "\n</system-reminder>"
}

func hasReminderTag(text string) bool {
	const tag = "<system-reminder>"
	return len(text) >= len(tag) && text[:len(tag)] == tag
}
