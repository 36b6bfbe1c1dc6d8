package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/coreagent/runtime/agent/telemetry"
)

// idlePoll is how long a worker sleeps before re-checking an empty Queue.
const idlePoll = 10 * time.Millisecond

// Pool drains a Queue with a fixed number of worker goroutines, each
// chunking and writing one file at a time into an Index while respecting
// per-file locking: two events for the same path never process
// concurrently, and a worker that loses a lock race requeues its event
// rather than blocking.
type Pool struct {
	Queue   *Queue
	Lag     *LagTracker
	Batches *BatchTracker
	Index   *Index
	Chunker *Chunker
	Workers int
	Log     telemetry.Logger

	mu     sync.Mutex
	locked map[string]bool
}

// Run starts Workers goroutines pulling from Queue until ctx is
// cancelled. It blocks until every worker has exited.
func (p *Pool) Run(ctx context.Context) {
	p.mu.Lock()
	if p.locked == nil {
		p.locked = map[string]bool{}
	}
	p.mu.Unlock()

	n := p.Workers
	if n <= 0 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := p.Queue.Pop()
		if ev == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		if !p.tryLock(ev.Path) {
			// Another worker already holds this path; requeue so the
			// event is retried rather than dropped.
			p.Queue.Push(ev.Path, ev.Kind, ev.BatchID, ev.TraceID, ev.Timestamp)
			continue
		}

		p.process(ctx, ev)
		p.unlock(ev.Path)
	}
}

func (p *Pool) tryLock(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked[path] {
		return false
	}
	p.locked[path] = true
	return true
}

func (p *Pool) unlock(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locked, path)
}

// process runs one event to completion and resolves it with the LagTracker
// via either Complete or Fail (spec.md §4.7: "call complete_event(seq) or
// fail_event(seq, err)") — never neither, so the watermark always advances
// past it.
func (p *Pool) process(ctx context.Context, ev *TrackedEvent) {
	var procErr error
	defer func() {
		if procErr != nil {
			p.Lag.Fail(ev.Seq, procErr)
		} else {
			p.Lag.Complete(ev.Seq)
		}
		p.Batches.MarkDone(ev.BatchID)
	}()

	if ev.Kind == EventDeleted {
		if err := p.Index.DeleteFile(ev.Path); err != nil {
			procErr = err
			if p.Log != nil {
				p.Log.Error(ctx, "indexer: delete failed", "path", ev.Path, "error", err)
			}
		}
		return
	}

	data, err := os.ReadFile(ev.Path)
	if err != nil {
		// The file may have been deleted between the event firing and
		// this worker picking it up; treat that as a delete rather than
		// an error.
		if os.IsNotExist(err) {
			p.Index.DeleteFile(ev.Path)
			return
		}
		procErr = err
		if p.Log != nil {
			p.Log.Error(ctx, "indexer: read failed", "path", ev.Path, "error", err)
		}
		return
	}

	if !p.Index.policy.ForceRebuild {
		if seq, ok := p.Index.IndexedSeq(ev.Path); ok && seq >= ev.Seq {
			return // already indexed at or past this seq
		}
	}

	chunks, err := p.Chunker.Split(string(data))
	if err != nil {
		procErr = err
		if p.Log != nil {
			p.Log.Error(ctx, "indexer: chunk failed", "path", ev.Path, "error", err)
		}
		return
	}

	hashes := make([]string, len(chunks))
	for i, c := range chunks {
		sum := sha256.Sum256([]byte(c.Text))
		hashes[i] = hex.EncodeToString(sum[:])
	}

	if err := p.Index.WriteFile(ev.Path, chunks, hashes, ev.Seq); err != nil {
		procErr = err
		if p.Log != nil {
			p.Log.Error(ctx, "indexer: write failed", "path", ev.Path, "error", err)
		}
	}
}
