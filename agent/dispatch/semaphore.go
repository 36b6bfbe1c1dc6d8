package dispatch

import (
	"context"
	"sync"

	"github.com/coreagent/runtime/agent/core"
)

// Semaphore implements the admission rule from spec.md §4.2: a call is
// admitted iff either it is Safe and no Unsafe call is running, or it is
// Unsafe and no call at all is running. Read-only tools are always Safe
// (enforced by callers consulting ToolDefinition.ReadOnly before Acquire).
type Semaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	running  int
	unsafeRunning bool
}

// NewSemaphore builds an empty Semaphore.
func NewSemaphore() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until safety can be admitted under the current running set,
// or ctx is cancelled. Release must be called exactly once per successful
// Acquire.
func (s *Semaphore) Acquire(ctx context.Context, safety core.ConcurrencySafety) error {
	done := make(chan struct{})
	var cancelErr error
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			cancelErr = ctx.Err()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if cancelErr != nil {
			return cancelErr
		}
		if s.admit(safety) {
			s.running++
			if safety == core.Unsafe {
				s.unsafeRunning = true
			}
			return nil
		}
		s.cond.Wait()
	}
}

func (s *Semaphore) admit(safety core.ConcurrencySafety) bool {
	if safety == core.Unsafe {
		return s.running == 0
	}
	return !s.unsafeRunning
}

// Release returns a previously-acquired slot, waking any blocked Acquire.
func (s *Semaphore) Release(safety core.ConcurrencySafety) {
	s.mu.Lock()
	s.running--
	if safety == core.Unsafe {
		s.unsafeRunning = false
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}
