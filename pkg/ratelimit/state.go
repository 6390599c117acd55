// Package ratelimit implements Confluence rate limit tracking and request gating.
// It paces outgoing requests with a token bucket and honours the Retry-After,
// X-RateLimit-Remaining and X-RateLimit-NearLimit response headers.
package ratelimit

import (
	"time"
)

// Redis key suffixes for rate limit state storage. Keys are prefixed with
// the Confluence host so separate sites never share state.
const (
	RedisKeyPrefix    = "confluence:rate_limit:"
	RedisKeyRemaining = "remaining"
	RedisKeyRetryAt   = "retry_at"
	RedisKeyNearLimit = "near_limit"
	RedisKeyUpdatedAt = "last_update"
)

// RemainingUnknown marks a state for which the server never reported a budget.
const RemainingUnknown = -1

// RateLimitState represents the last rate limit signal received from Confluence.
// With a Redis backend the state is shared across all client instances.
type RateLimitState struct {
	// Remaining is the request budget left in the current window, or
	// RemainingUnknown. Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// NearLimit is set when the server flags the budget as almost used up
	// (X-RateLimit-NearLimit: true).
	NearLimit bool `json:"near_limit"`

	// RetryAt is the earliest time requests may resume after a 429/503 with
	// a Retry-After header.
	RetryAt time.Time `json:"retry_at"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true while a Retry-After window is open.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return time.Now().Before(s.RetryAt)
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	if s.NeedsCriticalBlock() {
		return false
	}
	return s.NearLimit || s.Remaining == 0
}

// TimeUntilReset returns the duration until requests may resume.
// Returns 0 if the retry time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.RetryAt)
	if duration < 0 {
		return 0
	}
	return duration
}
