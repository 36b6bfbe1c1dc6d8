package indexer

import (
	"errors"
	"testing"
	"time"
)

// TestMergeCommutativity is invariant 7: Deleted overrides Modified
// overrides Created; Created-after-Delete is Created.
func TestMergeCommutativity(t *testing.T) {
	cases := []struct {
		existing, incoming, want EventKind
	}{
		{EventCreated, EventModified, EventModified},
		{EventModified, EventCreated, EventModified},
		{EventModified, EventDeleted, EventDeleted},
		{EventDeleted, EventModified, EventDeleted},
		{EventCreated, EventDeleted, EventDeleted},
		{EventDeleted, EventCreated, EventCreated},
		{EventCreated, EventCreated, EventCreated},
	}
	for _, c := range cases {
		if got := merge(c.existing, c.incoming); got != c.want {
			t.Fatalf("merge(%v, %v) = %v, want %v", c.existing, c.incoming, got, c.want)
		}
	}
}

func TestQueuePushMergesPendingEvent(t *testing.T) {
	q := NewQueue()
	ev1 := q.Push("f.go", EventCreated, "", "", time.Now())
	ev2 := q.Push("f.go", EventModified, "", "", time.Now())
	if ev1 != ev2 {
		t.Fatal("expected the same queued event to be merged, not duplicated")
	}
	if ev2.Kind != EventModified {
		t.Fatalf("merged kind = %v, want Modified", ev2.Kind)
	}
	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
}

func TestQueuePopFIFO(t *testing.T) {
	q := NewQueue()
	q.Push("a", EventCreated, "", "", time.Now())
	q.Push("b", EventCreated, "", "", time.Now())
	if got := q.Pop(); got.Path != "a" {
		t.Fatalf("first pop = %s, want a", got.Path)
	}
	if got := q.Pop(); got.Path != "b" {
		t.Fatalf("second pop = %s, want b", got.Path)
	}
	if q.Pop() != nil {
		t.Fatal("expected nil on empty queue")
	}
}

// TestLagTrackerOutOfOrderWatermark is scenario S8: seqs 1..5 completing
// in order 3,1,5,2,4 produce the watermark sequence 0,1,1,3,5.
func TestLagTrackerOutOfOrderWatermark(t *testing.T) {
	lt := NewLagTracker()
	for seq := uint64(1); seq <= 5; seq++ {
		lt.Assign(seq)
	}

	order := []uint64{3, 1, 5, 2, 4}
	want := []uint64{0, 1, 1, 3, 5}

	for i, seq := range order {
		lt.Complete(seq)
		if got := lt.Watermark(); got != want[i] {
			t.Fatalf("after completing seq %d: watermark = %d, want %d", seq, got, want[i])
		}
	}
}

// TestLagTrackerMonotonic is invariant 6: the watermark never decreases.
func TestLagTrackerMonotonic(t *testing.T) {
	lt := NewLagTracker()
	for seq := uint64(1); seq <= 10; seq++ {
		lt.Assign(seq)
	}
	prev := uint64(0)
	for _, seq := range []uint64{2, 1, 4, 3, 10, 5, 9, 6, 8, 7} {
		lt.Complete(seq)
		got := lt.Watermark()
		if got < prev {
			t.Fatalf("watermark decreased: %d -> %d", prev, got)
		}
		prev = got
	}
	if prev != 10 {
		t.Fatalf("final watermark = %d, want 10", prev)
	}
}

// TestLagTrackerFailAdvancesWatermarkAndLag is spec.md §4.7: failed events
// do not block the watermark but do count against current_lag.
func TestLagTrackerFailAdvancesWatermarkAndLag(t *testing.T) {
	lt := NewLagTracker()
	for seq := uint64(1); seq <= 3; seq++ {
		lt.Assign(seq)
	}

	lt.Complete(1)
	lt.Fail(2, errors.New("boom"))
	if got := lt.Watermark(); got != 2 {
		t.Fatalf("watermark after fail = %d, want 2 (failed events must not block it)", got)
	}
	if got := lt.CurrentLag(); got != 0 {
		t.Fatalf("current lag = %d, want 0 (assigned=3, watermark=2, failed=1)", got)
	}

	lt.Complete(3)
	if got := lt.Watermark(); got != 3 {
		t.Fatalf("watermark after final complete = %d, want 3", got)
	}

	failures := lt.RecentFailures()
	if len(failures) != 1 || failures[0].Seq != 2 || failures[0].Reason != "boom" {
		t.Fatalf("RecentFailures = %+v, want a single {Seq: 2, Reason: \"boom\"}", failures)
	}
}

// TestLagTrackerRecentFailuresBounded is spec.md §4.7: failures are
// "bounded by a cleanup keeping the most recent K failures."
func TestLagTrackerRecentFailuresBounded(t *testing.T) {
	lt := NewLagTracker()
	total := maxRecentFailures + 10
	for seq := uint64(1); seq <= uint64(total); seq++ {
		lt.Assign(seq)
		lt.Fail(seq, errors.New("x"))
	}
	failures := lt.RecentFailures()
	if len(failures) != maxRecentFailures {
		t.Fatalf("RecentFailures length = %d, want %d", len(failures), maxRecentFailures)
	}
	if failures[len(failures)-1].Seq != uint64(total) {
		t.Fatalf("last retained failure seq = %d, want %d", failures[len(failures)-1].Seq, total)
	}
}

// TestLagTrackerCurrentLagFloorsAtZero guards the explicit "current_lag >= 0
// at all times" invariant against the literal assigned-watermark-failed
// formula going negative under a high failure rate.
func TestLagTrackerCurrentLagFloorsAtZero(t *testing.T) {
	lt := NewLagTracker()
	lt.Assign(1)
	lt.Fail(1, errors.New("x"))
	if got := lt.CurrentLag(); got != 0 {
		t.Fatalf("current lag = %d, want floored at 0", got)
	}
}

func TestBatchTrackerCompletion(t *testing.T) {
	bt := NewBatchTracker()
	bt.Add("b1", 3)
	if bt.Complete("b1") {
		t.Fatal("batch with outstanding events reported complete")
	}
	bt.MarkDone("b1")
	bt.MarkDone("b1")
	if bt.Complete("b1") {
		t.Fatal("batch with one outstanding event reported complete")
	}
	bt.MarkDone("b1")
	if !bt.Complete("b1") {
		t.Fatal("batch with all events done should report complete")
	}
}

func TestChunkerSplitsAtLineBoundaries(t *testing.T) {
	c := &Chunker{Model: "gpt-4", MaxTokens: 5}
	content := "one\ntwo\nthree\nfour\nfive\nsix\nseven\n"
	chunks, err := c.Split(content)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, ch := range chunks {
		if ch.TokenCount > c.MaxTokens && ch.StartLine != ch.EndLine {
			t.Fatalf("chunk exceeds MaxTokens without being a single line: %+v", ch)
		}
	}
}

func TestPolicyThresholds(t *testing.T) {
	p := DefaultPolicy()
	if p.UseVector(10000) {
		t.Fatal("10000 chunks should not cross the >10000 threshold")
	}
	if !p.UseVector(10001) {
		t.Fatal("10001 chunks should cross the vector threshold")
	}
	if p.UseFTS(1000) {
		t.Fatal("1000 chunks should not cross the >1000 FTS threshold")
	}
	if !p.UseFTS(1001) {
		t.Fatal("1001 chunks should cross the FTS threshold")
	}
}
