package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsCriticalBlock(t *testing.T) {
	tests := []struct {
		name     string
		retryAt  time.Time
		expected bool
	}{
		{
			name:     "no retry window",
			retryAt:  time.Time{},
			expected: false,
		},
		{
			name:     "retry window in the past",
			retryAt:  time.Now().Add(-time.Second),
			expected: false,
		},
		{
			name:     "retry window open",
			retryAt:  time.Now().Add(30 * time.Second),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Remaining: RemainingUnknown, RetryAt: tt.retryAt}
			if got := state.NeedsCriticalBlock(); got != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_NeedsThrottling(t *testing.T) {
	tests := []struct {
		name     string
		state    RateLimitState
		expected bool
	}{
		{
			name:     "unknown budget",
			state:    RateLimitState{Remaining: RemainingUnknown},
			expected: false,
		},
		{
			name:     "healthy budget",
			state:    RateLimitState{Remaining: 80},
			expected: false,
		},
		{
			name:     "near limit flag",
			state:    RateLimitState{Remaining: 80, NearLimit: true},
			expected: true,
		},
		{
			name:     "budget exhausted",
			state:    RateLimitState{Remaining: 0},
			expected: true,
		},
		{
			name: "critical block takes precedence",
			state: RateLimitState{
				Remaining: 0,
				NearLimit: true,
				RetryAt:   time.Now().Add(time.Minute),
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.NeedsThrottling(); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	past := &RateLimitState{RetryAt: time.Now().Add(-time.Minute)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() for past reset = %v, want 0", got)
	}

	future := &RateLimitState{RetryAt: time.Now().Add(30 * time.Second)}
	got := future.TimeUntilReset()
	if got <= 25*time.Second || got > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want ~30s", got)
	}
}
