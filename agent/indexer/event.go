// Package indexer implements the Retrieval Indexer from spec.md §4.7: a
// filesystem watcher feeding a dedup/merge event queue, a monotonic
// lag/watermark tracker, a worker pool that chunks and stores changed
// files, and a policy deciding when a path's index entries need a full
// rebuild versus an incremental update.
//
// Grounded on _examples/kadirpekel-hector's v2/rag.FileWatcher
// (fsnotify-based watch+debounce) and pkg/utils.TokenCounter
// (tiktoken-go), and on _examples/sacenox-symb/internal/store.Cache for
// the modernc.org/sqlite wiring style.
package indexer

import "time"

// EventKind is the dedup/merge-relevant classification of a filesystem
// change (spec.md §4.7 invariant 7: "Deleted overrides Modified overrides
// Created; Created-after-Delete is Created").
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventDeleted
)

// rank orders EventKind for merge precedence: higher rank wins, except
// the explicit Created-after-Delete special case merge() handles directly.
func (k EventKind) rank() int {
	switch k {
	case EventDeleted:
		return 2
	case EventModified:
		return 1
	default:
		return 0
	}
}

// merge combines an existing queued event with a newly observed one for
// the same path, implementing spec.md §4.7 invariant 7's commutative
// merge table.
func merge(existing, incoming EventKind) EventKind {
	if existing == EventDeleted && incoming == EventCreated {
		return EventCreated
	}
	if incoming.rank() >= existing.rank() {
		return incoming
	}
	return existing
}

// TrackedEvent is one watch event after sequencing, carrying the metadata
// the worker pool and lag tracker need to process it and account for it.
type TrackedEvent struct {
	Path      string
	Kind      EventKind
	Seq       uint64
	BatchID   string // empty when not part of a batch (e.g. a live fsnotify event)
	TraceID   string
	Timestamp time.Time
}
