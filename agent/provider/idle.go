package provider

import (
	"context"
	"time"

	"github.com/coreagent/runtime/agent/core"
)

// IdleTimeoutStreamer wraps a Streamer so that Recv fails with
// ErrStreamIdleTimeout if no event arrives within Timeout (spec.md §4.4).
// Cancellation is cooperative: when ctx is done or the timeout fires, Recv
// returns at once, but the goroutine blocked in the wrapped stream's Recv
// keeps running until that call returns; the caller's Close closes the
// wrapped stream to release the network connection.
type IdleTimeoutStreamer struct {
	inner   Streamer
	timeout time.Duration
	ctx     context.Context
}

// WithIdleTimeout wraps inner with an idle-timeout guard bound to ctx.
func WithIdleTimeout(ctx context.Context, inner Streamer, timeout time.Duration) *IdleTimeoutStreamer {
	return &IdleTimeoutStreamer{inner: inner, timeout: timeout, ctx: ctx}
}

func (s *IdleTimeoutStreamer) Recv() (Event, error) {
	type result struct {
		ev  Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.inner.Recv()
		ch <- result{ev, err}
	}()
	select {
	case r := <-ch:
		return r.ev, r.err
	case <-time.After(s.timeout):
		return Event{}, core.NewError(core.ErrStreamIdleTimeout, "stream idle timeout exceeded")
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	}
}

func (s *IdleTimeoutStreamer) Close() error {
	return s.inner.Close()
}
