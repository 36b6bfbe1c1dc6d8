package dispatch

import "sync"

// AlreadyRead is one redundant re-read observed by ReadTracker: path had
// already been read ReadCount-1 times before this read. Its shape mirrors
// agent/reminder.AlreadyRead so a caller can map one to the other without
// agent/dispatch importing agent/reminder.
type AlreadyRead struct {
	Path      string
	ReadCount int
}

// ReadTracker records, for the life of a session, which file paths have
// been read — the precondition agent/smartedit's Engine and the
// AlreadyReadFile reminder generator (agent/reminder) both consult. It is
// fed by every ModifierFileRead ContextModifier a tool returns, independent
// of Dispatcher.DrainModifiers (which is per-turn and gets cleared), since
// "has this file ever been read this session" must outlive a single turn.
type ReadTracker struct {
	mu      sync.RWMutex
	seen    map[string]int // path -> times read, for AlreadyReadFile's "previously read" count
	pending []AlreadyRead  // redundant re-reads not yet surfaced to a reminder
}

// NewReadTracker builds an empty tracker.
func NewReadTracker() *ReadTracker {
	return &ReadTracker{seen: map[string]int{}}
}

// RecordRead marks path as read, incrementing its read count. A second or
// later read of the same path queues an AlreadyRead for DrainPending.
func (t *ReadTracker) RecordRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[path]++
	if t.seen[path] > 1 {
		t.pending = append(t.pending, AlreadyRead{Path: path, ReadCount: t.seen[path]})
	}
}

// DrainPending returns and clears the redundant re-reads queued since the
// last call, for the AlreadyReadFile reminder generator's Pending callback.
func (t *ReadTracker) DrainPending() []AlreadyRead {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = nil
	return out
}

// WasRead implements smartedit.ReadTracker.
func (t *ReadTracker) WasRead(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seen[path] > 0
}

// Count returns how many times path has been read this session.
func (t *ReadTracker) Count(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.seen[path]
}

// Track wires a Dispatcher's ModifierFileRead modifiers into t, intended to
// be called once after each Dispatch to keep the tracker current without
// the dispatcher needing to know about agent/smartedit.
func (t *ReadTracker) Track(mods []ContextModifier) {
	for _, m := range mods {
		if m.Kind == ModifierFileRead && m.FilePath != "" {
			t.RecordRead(m.FilePath)
		}
	}
}
