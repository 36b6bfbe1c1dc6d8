// Package ratelimit implements the optional proactive admission control
// mentioned as an Open Question in spec.md §9 and decided in SPEC_FULL.md
// §9: off by default, opt-in via NewController's enabled argument. It wraps
// golang.org/x/time/rate token buckets seeded from provider rate-limit
// snapshots (grounded on goa-ai's golang.org/x/time dependency).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coreagent/runtime/agent/provider"
)

// Controller tracks one token bucket per provider and optionally delays
// requests when the last observed snapshot reports an approaching limit.
type Controller struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	enabled bool
}

// NewController builds a Controller. enabled is the admission-control
// switch from SPEC_FULL.md §9; when false, Admit never blocks.
func NewController(enabled bool) *Controller {
	return &Controller{buckets: map[string]*rate.Limiter{}, enabled: enabled}
}

// Observe folds a freshly parsed RateLimitSnapshot into the controller's
// state for providerKey, tightening the bucket when the provider reports it
// is approaching its limit.
func (c *Controller) Observe(providerKey string, snap provider.RateLimitSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.buckets[providerKey]
	if !ok {
		lim = rate.NewLimiter(rate.Inf, 1)
		c.buckets[providerKey] = lim
	}
	if !snap.IsApproachingLimit() {
		lim.SetLimit(rate.Inf)
		return
	}
	// Approaching the limit: throttle to roughly one request per second
	// until a later snapshot no longer reports an approaching limit (see
	// the rate.Inf reset above), which is a conservative, provider
	// agnostic fallback given spec.md leaves the exact policy undefined.
	lim.SetLimit(rate.Every(time.Second))
}

// Admit blocks (when enabled) until providerKey's bucket allows one more
// request, or returns immediately when admission control is disabled.
func (c *Controller) Admit(ctx context.Context, providerKey string) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.buckets[providerKey]
	if !ok {
		lim = rate.NewLimiter(rate.Inf, 1)
		c.buckets[providerKey] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}
