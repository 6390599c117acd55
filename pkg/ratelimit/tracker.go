package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confluence_rate_limit_remaining",
		Help: "Request budget remaining as last reported by Confluence",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confluence_rate_limit_blocks_total",
		Help: "Total number of requests rejected because the Retry-After window exceeded the max wait",
	})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_rate_limit_waits_total",
		Help: "Total number of requests delayed by the rate limiter by reason",
	}, []string{"reason"}) // "retry_after", "near_limit"
)

// ErrRateLimited is returned when a Retry-After window is longer than the
// configured maximum wait.
var ErrRateLimited = errors.New("rate limited by server")

// Config controls request pacing.
type Config struct {
	// RequestsPerSecond is the client-side token bucket rate. 0 disables pacing.
	RequestsPerSecond float64

	// Burst is the token bucket size (default 5).
	Burst int

	// MaxWait bounds how long a request may wait for a Retry-After window.
	// 0 means wait as long as the server asks (bounded by the context).
	MaxWait time.Duration

	// ThrottleDelay is the pause applied when the server reports NearLimit.
	ThrottleDelay time.Duration

	// StateTTL is how long shared state is kept in Redis.
	StateTTL time.Duration
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             5,
		MaxWait:           2 * time.Minute,
		ThrottleDelay:     1 * time.Second,
		StateTTL:          10 * time.Minute,
	}
}

// Tracker monitors Confluence rate limit headers and gates requests.
type Tracker struct {
	redis   *redis.Client
	key     string
	limiter *rate.Limiter
	config  Config
	logger  zerolog.Logger

	mu    sync.Mutex
	local RateLimitState
}

// NewTracker creates a new rate limit tracker for the given Confluence host.
// redisClient may be nil, in which case state is kept in process.
func NewTracker(redisClient *redis.Client, host string, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.ThrottleDelay <= 0 {
		cfg.ThrottleDelay = 1 * time.Second
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Tracker{
		redis:   redisClient,
		key:     RedisKeyPrefix + host,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
		local:   RateLimitState{Remaining: RemainingUnknown},
	}
}

// GetState returns the current rate limit state.
// Returns a default healthy state if nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return &RateLimitState{Remaining: RemainingUnknown}, nil
	}

	state := &RateLimitState{Remaining: RemainingUnknown}
	if v, ok := fields[RedisKeyRemaining]; ok {
		if state.Remaining, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse remaining: %w", err)
		}
	}
	if v, ok := fields[RedisKeyRetryAt]; ok && v != "0" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse retry_at: %w", err)
		}
		state.RetryAt = time.UnixMilli(ms)
	}
	state.NearLimit = fields[RedisKeyNearLimit] == "1"
	if v, ok := fields[RedisKeyUpdatedAt]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse last_update: %w", err)
		}
		state.LastUpdate = time.UnixMilli(ms)
	}

	return state, nil
}

// UpdateFromHeaders parses Confluence rate limit headers and stores the state.
// Responses without any rate limit header leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	nearStr := headers.Get("X-RateLimit-NearLimit")
	retryStr := headers.Get("Retry-After")
	if remainStr == "" && nearStr == "" && retryStr == "" {
		return nil
	}

	now := time.Now()
	state := RateLimitState{
		Remaining:  RemainingUnknown,
		NearLimit:  strings.EqualFold(nearStr, "true"),
		LastUpdate: now,
	}

	if remainStr != "" {
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
		}
		state.Remaining = remain
		rateLimitRemaining.Set(float64(remain))
	}

	if retryStr != "" {
		retryAt, err := parseRetryAfter(retryStr, now)
		if err != nil {
			return fmt.Errorf("parse Retry-After header: %w", err)
		}
		state.RetryAt = retryAt
	}

	if err := t.store(ctx, state); err != nil {
		return err
	}

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Warn().
			Time("retry_at", state.RetryAt).
			Msg("Confluence rate limit hit - requests paused until Retry-After")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Confluence rate limit near - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Confluence rate limit state updated")
	}

	return nil
}

func (t *Tracker) store(ctx context.Context, state RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	near := "0"
	if state.NearLimit {
		near = "1"
	}
	var retryAt int64
	if !state.RetryAt.IsZero() {
		retryAt = state.RetryAt.UnixMilli()
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key,
		RedisKeyRemaining, state.Remaining,
		RedisKeyRetryAt, retryAt,
		RedisKeyNearLimit, near,
		RedisKeyUpdatedAt, state.LastUpdate.UnixMilli(),
	)
	pipe.Expire(ctx, t.key, t.config.StateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// Wait blocks until a request may be sent. It paces with the token bucket,
// waits out an open Retry-After window and throttles when the server reports
// the budget as nearly exhausted.
func (t *Tracker) Wait(ctx context.Context) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	state, err := t.GetState(ctx)
	if err != nil {
		// Shared state unavailable: fall back to pacing only.
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable")
		return nil
	}

	if state.NeedsCriticalBlock() {
		wait := state.TimeUntilReset()
		if t.config.MaxWait > 0 && wait > t.config.MaxWait {
			rateLimitBlocksTotal.Inc()
			t.logger.Error().
				Dur("wait_duration", wait).
				Msg("Retry-After window exceeds max wait - rejecting request")
			return fmt.Errorf("%w: retry after %s", ErrRateLimited, wait.Round(time.Second))
		}
		rateLimitWaitsTotal.WithLabelValues("retry_after").Inc()
		return sleep(ctx, wait)
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("Confluence rate limit near - throttling request")
		rateLimitWaitsTotal.WithLabelValues("near_limit").Inc()
		return sleep(ctx, t.config.ThrottleDelay)
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) (time.Time, error) {
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if secs < 0 {
			secs = 0
		}
		return now.Add(time.Duration(secs) * time.Second), nil
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}
