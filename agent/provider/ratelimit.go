package provider

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitSnapshot captures remaining-quota headers parsed from a provider
// HTTP response, per spec.md §4.4.
type RateLimitSnapshot struct {
	RemainingRequests int
	RemainingTokens   int
	ResetRequests     time.Time
	ResetTokens       time.Time
	RetryAfter        time.Duration
	HasRetryAfter     bool
}

// ParseRateLimitHeaders reads both OpenAI-style (x-ratelimit-*) and
// Anthropic-style (anthropic-ratelimit-*) headers, plus a standard
// Retry-After, into one snapshot.
func ParseRateLimitHeaders(h http.Header) RateLimitSnapshot {
	var s RateLimitSnapshot
	s.RemainingRequests = firstInt(h, -1,
		"X-Ratelimit-Remaining-Requests", "Anthropic-Ratelimit-Requests-Remaining")
	s.RemainingTokens = firstInt(h, -1,
		"X-Ratelimit-Remaining-Tokens", "Anthropic-Ratelimit-Tokens-Remaining")
	if t, ok := firstTime(h, "X-Ratelimit-Reset-Requests", "Anthropic-Ratelimit-Requests-Reset"); ok {
		s.ResetRequests = t
	}
	if t, ok := firstTime(h, "X-Ratelimit-Reset-Tokens", "Anthropic-Ratelimit-Tokens-Reset"); ok {
		s.ResetTokens = t
	}
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			s.RetryAfter = time.Duration(secs) * time.Second
			s.HasRetryAfter = true
		}
	}
	return s
}

func firstInt(h http.Header, def int, keys ...string) int {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return def
}

func firstTime(h http.Header, keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v := h.Get(k)
		if v == "" {
			continue
		}
		// Headers may be a duration-in-seconds (OpenAI) or RFC3339 (Anthropic).
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Now().Add(time.Duration(secs * float64(time.Second))), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsApproachingLimit implements spec.md §4.4's threshold: remaining < 10
// requests OR remaining < 10,000 tokens. Negative values (unset) never
// trigger.
func (s RateLimitSnapshot) IsApproachingLimit() bool {
	if s.RemainingRequests >= 0 && s.RemainingRequests < 10 {
		return true
	}
	if s.RemainingTokens >= 0 && s.RemainingTokens < 10000 {
		return true
	}
	return false
}
