package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigFrom(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantAttempts int
		wantInitial  time.Duration
		wantMax      time.Duration
	}{
		{
			name:         "retries disabled",
			cfg:          Config{MaxRetries: 0},
			wantAttempts: 1,
			wantInitial:  500 * time.Millisecond,
			wantMax:      10 * time.Second,
		},
		{
			name:         "custom backoff",
			cfg:          Config{MaxRetries: 4, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second},
			wantAttempts: 5,
			wantInitial:  time.Second,
			wantMax:      5 * time.Second,
		},
		{
			name:         "max below initial is raised",
			cfg:          Config{MaxRetries: 1, InitialBackoff: 20 * time.Second},
			wantAttempts: 2,
			wantInitial:  20 * time.Second,
			wantMax:      20 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := retryConfigFrom(tt.cfg)
			if rc.MaxAttempts != tt.wantAttempts {
				t.Errorf("MaxAttempts = %d, want %d", rc.MaxAttempts, tt.wantAttempts)
			}
			if rc.InitialBackoff != tt.wantInitial {
				t.Errorf("InitialBackoff = %v, want %v", rc.InitialBackoff, tt.wantInitial)
			}
			if rc.MaxBackoff != tt.wantMax {
				t.Errorf("MaxBackoff = %v, want %v", rc.MaxBackoff, tt.wantMax)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(3), zerolog.Nop(), func() (ErrorClass, error) {
		attempts++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), testRetryConfig(3), zerolog.Nop(), func() (ErrorClass, error) {
		attempts++
		if attempts < 3 {
			return ErrorClassServer, errors.New("server error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	attempts := 0
	cause := errors.New("server error")
	err := retryWithBackoff(context.Background(), testRetryConfig(3), zerolog.Nop(), func() (ErrorClass, error) {
		attempts++
		return ErrorClassServer, cause
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected the last error to be wrapped, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoff_SingleAttemptReturnsCause(t *testing.T) {
	cause := &APIError{StatusCode: 503, ErrorClass: ErrorClassServer}
	err := retryWithBackoff(context.Background(), testRetryConfig(1), zerolog.Nop(), func() (ErrorClass, error) {
		return ErrorClassServer, cause
	})

	if errors.Is(err, ErrRetryExhausted) {
		t.Error("A single attempt should not report exhaustion")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr != cause {
		t.Errorf("Expected the original error, got %v", err)
	}
}

func TestRetryWithBackoff_NoRetryClasses(t *testing.T) {
	for _, class := range []ErrorClass{ErrorClassClient, ErrorClassAuth} {
		t.Run(string(class), func(t *testing.T) {
			attempts := 0
			cause := errors.New("not retried")
			err := retryWithBackoff(context.Background(), testRetryConfig(3), zerolog.Nop(), func() (ErrorClass, error) {
				attempts++
				return class, cause
			})

			if err != cause {
				t.Errorf("Expected the original error, got %v", err)
			}
			if attempts != 1 {
				t.Errorf("Expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, config, zerolog.Nop(), func() (ErrorClass, error) {
		attempts++
		return ErrorClassNetwork, errors.New("network error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the context error to be wrapped, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        30 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}

	var times []time.Time
	_ = retryWithBackoff(context.Background(), config, zerolog.Nop(), func() (ErrorClass, error) {
		times = append(times, time.Now())
		return ErrorClassServer, errors.New("server error")
	})

	if len(times) != 4 {
		t.Fatalf("Expected 4 attempts, got %d", len(times))
	}
	for i := 1; i < len(times); i++ {
		// 30ms cap plus 20% jitter and scheduling slack.
		if gap := times[i].Sub(times[i-1]); gap > 150*time.Millisecond {
			t.Errorf("Gap %d = %v, expected the max backoff cap to apply", i, gap)
		}
	}
}
