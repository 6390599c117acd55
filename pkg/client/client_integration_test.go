//go:build integration

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/cache"
	"github.com/Sternrassler/confluence-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	var requestsMade, conditionalRequests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsMade.Add(1)
		w.Header().Set("X-RateLimit-Remaining", "100")

		if r.Header.Get("If-None-Match") != "" {
			conditionalRequests.Add(1)
			w.Header().Set("Cache-Control", "max-age=600")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Cache-Control", "max-age=1")
		w.Header().Set("ETag", `"test-etag-123"`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [], "size": 0}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})

	ctx := context.Background()
	u, _ := client.ResolvePath("search")
	u.RawQuery = "cql=type%3Dpage"

	var out map[string]any

	t.Log("Request 1: initial request")
	if err := client.GetJSON(ctx, u, &out); err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}

	t.Log("Request 2: fresh cache hit")
	if err := client.GetJSON(ctx, u, &out); err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	if requestsMade.Load() != 1 {
		t.Errorf("After request 2: requestsMade = %d, want 1", requestsMade.Load())
	}

	time.Sleep(1100 * time.Millisecond)

	t.Log("Request 3: conditional request")
	if err := client.GetJSON(ctx, u, &out); err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	if requestsMade.Load() != 2 {
		t.Errorf("After request 3: requestsMade = %d, want 2", requestsMade.Load())
	}
	if conditionalRequests.Load() != 1 {
		t.Errorf("conditionalRequests = %d, want 1", conditionalRequests.Load())
	}

	entry, freshness, err := client.Cache().Lookup(ctx, cache.KeyFor(u, "jdoe"))
	if err != nil || freshness != cache.Fresh {
		t.Fatalf("Cache lookup = %v, %v; want fresh entry", freshness, err)
	}
	if entry.ETag != `"test-etag-123"` {
		t.Errorf("Cached ETag = %q, want %q", entry.ETag, `"test-etag-123"`)
	}
	if entry.TTL() < 9*time.Minute {
		t.Errorf("Entry TTL = %v, want refreshed to ~10m", entry.TTL())
	}
}

func TestIntegration_SharedRateLimitState(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"message": "rate limited"}`)
	}))
	defer server.Close()

	newClient := func() *Client {
		return newTestClient(t, server.URL, func(cfg *Config) {
			cfg.Redis = redisClient
			cfg.MaxRetries = 0
			cfg.RateLimit = ratelimit.Config{MaxWait: time.Second}
		})
	}
	first := newClient()
	second := newClient()

	ctx := context.Background()
	u, _ := first.ResolvePath("search")

	var out map[string]any
	err := first.GetJSON(ctx, u, &out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassRateLimit {
		t.Fatalf("Expected rate_limit APIError, got %v", err)
	}

	// The Retry-After window recorded by the first client blocks the second.
	err = second.GetJSON(ctx, u, &out)
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited from shared state, got %v", err)
	}
}

func TestIntegration_NoCacheRevalidatesEveryTime(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	var requestsMade, conditionalRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsMade.Add(1)
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		w.Header().Set("ETag", `"space-v1"`)
		if r.Header.Get("If-None-Match") == `"space-v1"` {
			conditionalRequests.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"key": "DEV"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})

	ctx := context.Background()
	u, _ := client.ResolvePath("space", "DEV")

	for i := 0; i < 3; i++ {
		var out struct {
			Key string `json:"key"`
		}
		if err := client.GetJSON(ctx, u, &out); err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if out.Key != "DEV" {
			t.Errorf("Request %d: key = %q, want DEV", i+1, out.Key)
		}
	}

	if requestsMade.Load() != 3 {
		t.Errorf("requestsMade = %d, want 3", requestsMade.Load())
	}
	if conditionalRequests.Load() != 2 {
		t.Errorf("conditionalRequests = %d, want 2", conditionalRequests.Load())
	}
}

func TestIntegration_PurgeUser(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	var requestsMade atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsMade.Add(1)
		w.Header().Set("Cache-Control", "max-age=600")
		io.WriteString(w, `{"results": []}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})

	ctx := context.Background()
	u, _ := client.ResolvePath("search")
	u.RawQuery = "cql=type%3Dpage"
	var out map[string]any
	for i := 0; i < 2; i++ {
		if err := client.GetJSON(ctx, u, &out); err != nil {
			t.Fatalf("Request failed: %v", err)
		}
	}
	if requestsMade.Load() != 1 {
		t.Fatalf("requestsMade = %d, want 1", requestsMade.Load())
	}

	n, err := client.Cache().Purge(ctx, "jdoe")
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}

	if err := client.GetJSON(ctx, u, &out); err != nil {
		t.Fatalf("Request after purge failed: %v", err)
	}
	if requestsMade.Load() != 2 {
		t.Errorf("requestsMade after purge = %d, want 2", requestsMade.Load())
	}
}
