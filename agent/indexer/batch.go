package indexer

import "sync"

// BatchTracker counts outstanding events within a named batch (e.g. the
// initial bulk scan of a workspace, or one fsnotify debounce window), so
// callers can tell when an entire batch has finished indexing rather than
// only individual files.
type BatchTracker struct {
	mu    sync.Mutex
	total map[string]int
	done  map[string]int
}

// NewBatchTracker builds an empty tracker.
func NewBatchTracker() *BatchTracker {
	return &BatchTracker{total: map[string]int{}, done: map[string]int{}}
}

// Add registers n additional events under batchID.
func (b *BatchTracker) Add(batchID string, n int) {
	if batchID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total[batchID] += n
}

// MarkDone records one event of batchID as finished.
func (b *BatchTracker) MarkDone(batchID string) {
	if batchID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done[batchID]++
}

// Complete reports whether every event registered under batchID has
// finished. An unknown batchID is considered complete (nothing was ever
// registered).
func (b *BatchTracker) Complete(batchID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done[batchID] >= b.total[batchID]
}

// Remaining reports how many events of batchID are still outstanding.
func (b *BatchTracker) Remaining(batchID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total[batchID] - b.done[batchID]
}
