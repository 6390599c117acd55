//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/confluence-client/internal/testutil"
	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/confluence"
	"github.com/Sternrassler/confluence-client/pkg/ratelimit"
	"github.com/Sternrassler/confluence-client/pkg/search"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func connect(t *testing.T, mock *testutil.MockConfluence, username, password string, rdb *redis.Client, mutate func(*client.Config)) *confluence.Confluence {
	t.Helper()
	cfg := client.DefaultConfig(mock.URL(), username, password)
	cfg.Redis = rdb
	cfg.CacheTTL = time.Minute
	cfg.RateLimit = ratelimit.Config{}
	cfg.InitialBackoff = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	conf, err := confluence.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("confluence.New() error: %v", err)
	}
	t.Cleanup(func() { conf.Close() })
	return conf
}

// TestSearchAllThroughCache runs the same full retrieval twice; the second
// run is answered from Redis page by page.
func TestSearchAllThroughCache(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockConfluence("/confluence")
	defer mock.Close()
	mock.SetSearchResults(testutil.SearchItems(7), true)

	conf := connect(t, mock, "jdoe", "secret", rdb, nil)
	ctx := context.Background()
	req, _ := search.NewRequest("type=page", search.WithLimit(3), search.WithRetrieveAll(true))

	first, err := conf.Search().SearchContent(ctx, req).Wait(ctx)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if first.Size != 7 || len(first.Results) != 7 {
		t.Fatalf("first search size = %d/%d, want 7", first.Size, len(first.Results))
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Fatalf("upstream requests after first search = %d, want 3", n)
	}

	second, err := conf.Search().Search(ctx, req)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if n := mock.GetRequestCount(); n != 3 {
		t.Errorf("upstream requests after second search = %d, want 3 (served from cache)", n)
	}
	for i := range first.Results {
		if first.Results[i].Title != second.Results[i].Title {
			t.Errorf("result %d differs: %q vs %q", i, first.Results[i].Title, second.Results[i].Title)
		}
	}
}

// TestConditionalRevalidation serves content with max-age=1 and checks the
// stale entry is revalidated with If-None-Match instead of refetched.
func TestConditionalRevalidation(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockConfluence("")
	defer mock.Close()
	mock.SetHandler("content/42", testutil.NewConditionalHandler(`"v1"`, `{"id":"42","type":"page","title":"Architecture"}`))

	conf := connect(t, mock, "jdoe", "secret", rdb, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		content, err := conf.Content().Content(ctx, "42")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if content.Title != "Architecture" {
			t.Errorf("request %d title = %q", i+1, content.Title)
		}
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}

	time.Sleep(1100 * time.Millisecond)

	content, err := conf.Content().Content(ctx, "42")
	if err != nil {
		t.Fatalf("revalidation: %v", err)
	}
	if content.Title != "Architecture" {
		t.Errorf("revalidated title = %q", content.Title)
	}
	if n := mock.GetConditionalCount(); n != 1 {
		t.Errorf("conditional requests = %d, want 1", n)
	}
	if etag := mock.LastRequestHeader().Get("If-None-Match"); etag != `"v1"` {
		t.Errorf("If-None-Match = %q, want \"v1\"", etag)
	}
}

// TestCacheIsolatedPerUser checks one account never sees another account's
// cached results.
func TestCacheIsolatedPerUser(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockConfluence("")
	defer mock.Close()
	mock.SetSearchResults(testutil.SearchItems(2), false)
	ctx := context.Background()
	req, _ := search.NewRequest("type=page")

	jdoe := connect(t, mock, "jdoe", "secret", rdb, nil)
	if _, err := jdoe.Search().Search(ctx, req); err != nil {
		t.Fatalf("jdoe search: %v", err)
	}

	mock.SetCredentials("asmith", "hunter2")
	asmith := connect(t, mock, "asmith", "hunter2", rdb, nil)
	if _, err := asmith.Search().Search(ctx, req); err != nil {
		t.Fatalf("asmith search: %v", err)
	}

	if n := mock.GetRequestCount(); n != 2 {
		t.Errorf("upstream requests = %d, want 2", n)
	}
}

// TestSharedRetryAfter checks a Retry-After window recorded by one
// connection holds back another connection to the same host.
func TestSharedRetryAfter(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockConfluence("")
	defer mock.Close()
	mock.SetResponse("search", testutil.NewRateLimitResponse(2*time.Minute))

	limit := func(cfg *client.Config) {
		cfg.MaxRetries = 0
		cfg.RateLimit = ratelimit.Config{MaxWait: time.Second}
	}
	first := connect(t, mock, "jdoe", "secret", rdb, limit)
	second := connect(t, mock, "jdoe", "secret", rdb, limit)
	ctx := context.Background()
	req, _ := search.NewRequest("type=page", search.WithRetrieveAll(true))

	_, err := first.Search().Search(ctx, req)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
		t.Fatalf("first search error = %v, want 429 APIError", err)
	}

	_, err = second.Search().Search(ctx, req)
	if !errors.Is(err, ratelimit.ErrRateLimited) {
		t.Errorf("second search error = %v, want ErrRateLimited", err)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}
}

// TestCredentialCheckAgainstServer connects with the explicit identity
// round-trip enabled.
func TestCredentialCheckAgainstServer(t *testing.T) {
	mock := testutil.NewMockConfluence("/wiki")
	defer mock.Close()

	withCheck := func(cfg *client.Config) { cfg.ExplicitCredentialCheck = true }
	connect(t, mock, "jdoe", "secret", nil, withCheck)

	cfg := client.DefaultConfig(mock.URL(), "jdoe", "wrong")
	cfg.ExplicitCredentialCheck = true
	_, err := confluence.New(context.Background(), cfg)
	var authErr *client.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Errorf("New() with a wrong password error = %v, want AuthenticationError", err)
	}
}
