package indexer

import "sync"

// maxRecentFailures bounds the Failure history LagTracker retains, per
// spec.md §4.7's "bounded by a cleanup keeping the most recent K failures."
const maxRecentFailures = 50

// Failure records one event that resolved with fail_event rather than
// complete_event, per spec.md §4.7.
type Failure struct {
	Seq    uint64
	Reason string
}

// LagTracker computes the indexing watermark: the highest Seq below which
// every event has completed or permanently failed, even when resolutions
// arrive out of order (spec.md §4.7 invariant 6: watermark is monotonically
// non-decreasing; scenario S8: seqs 1..5 completing in order 3,1,5,2,4
// produce the watermark sequence 0,1,1,3,5). Failed events advance the
// watermark exactly like completed ones — they just "do NOT block" it
// (spec.md §4.7) — and are additionally counted so CurrentLag can subtract
// them per the literal total_assigned − watermark − failed formula.
type LagTracker struct {
	mu        sync.Mutex
	assigned  uint64          // highest Seq ever assigned
	completed map[uint64]bool // Seq -> resolved (complete or failed), for seqs > watermark not yet contiguous
	watermark uint64
	failed    uint64

	recentFailures []Failure

	waiters []chan struct{}
}

// NewLagTracker builds an empty tracker.
func NewLagTracker() *LagTracker {
	return &LagTracker{completed: map[uint64]bool{}}
}

// Assign records that seq has been handed out (e.g. via Queue.Push),
// advancing the "assigned" edge the tracker's CurrentLag is measured
// against.
func (t *LagTracker) Assign(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq > t.assigned {
		t.assigned = seq
	}
}

// Complete marks seq as finished and advances the watermark as far as a
// contiguous run of resolved seqs allows.
func (t *LagTracker) Complete(seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolve(seq)
}

// Fail marks seq as permanently failed rather than completed: it advances
// the watermark the same way Complete does (spec.md §4.7: failed events "do
// NOT block" the watermark) but records err against seq, bounded to the
// most recent maxRecentFailures entries, and counts toward the failed term
// CurrentLag subtracts.
func (t *LagTracker) Fail(seq uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed++
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	t.recentFailures = append(t.recentFailures, Failure{Seq: seq, Reason: reason})
	if len(t.recentFailures) > maxRecentFailures {
		t.recentFailures = t.recentFailures[len(t.recentFailures)-maxRecentFailures:]
	}

	t.resolve(seq)
}

// resolve folds seq into the contiguity map and advances the watermark,
// waking any WaitForZeroLag callers if that closes the gap to assigned. The
// caller must hold t.mu.
func (t *LagTracker) resolve(seq uint64) {
	t.completed[seq] = true
	for t.completed[t.watermark+1] {
		t.watermark++
		delete(t.completed, t.watermark)
	}

	if t.watermark >= t.assigned {
		for _, w := range t.waiters {
			close(w)
		}
		t.waiters = nil
	}
}

// Watermark returns the highest seq N such that every seq <= N has
// completed or permanently failed.
func (t *LagTracker) Watermark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

// RecentFailures returns the most recent (up to maxRecentFailures) events
// that resolved via Fail rather than Complete.
func (t *LagTracker) RecentFailures() []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Failure, len(t.recentFailures))
	copy(out, t.recentFailures)
	return out
}

// CurrentLag implements spec.md §4.7's literal
// current_lag = total_assigned − watermark − failed. Failed events already
// advance the watermark like completions, so assigned−watermark alone nets
// out resolved-and-contiguous failures; subtracting failed again per the
// stated formula can otherwise drive the result negative under a high
// failure rate, which would violate the explicit "current_lag >= 0 at all
// times" invariant (spec.md), so the result is floored at zero.
func (t *LagTracker) CurrentLag() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	lag := int64(t.assigned) - int64(t.watermark) - int64(t.failed)
	if lag < 0 {
		return 0
	}
	return uint64(lag)
}

// WaitForZeroLag blocks until the watermark has reached the highest
// assigned seq (every assigned event has completed) or ctx-equivalent
// cancellation closes done. CurrentLag can already read zero before that,
// since failed events are subtracted from it.
func (t *LagTracker) WaitForZeroLag(done <-chan struct{}) {
	t.mu.Lock()
	if t.watermark >= t.assigned {
		t.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case <-ch:
	case <-done:
	}
}
