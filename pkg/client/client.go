// Package client provides the Confluence HTTP request executor with basic
// authentication, rate limiting, caching, retries and typed errors.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/cache"
	"github.com/Sternrassler/confluence-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Confluence client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_requests_total",
		Help: "Total Confluence requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "confluence_request_duration_seconds",
		Help:    "Confluence request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_errors_total",
		Help: "Total Confluence errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 and 403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// restPath is appended to the Confluence base path to reach the REST API.
const restPath = "rest/api"

// Client is the Confluence request executor. It is safe for concurrent use;
// all requests share one pooled transport.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	restBaseURL *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Store
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the Confluence root including any context path,
	// e.g. "https://wiki.example.com/confluence". Required.
	BaseURL string

	// Basic authentication credentials. Required.
	Username string
	Password string

	// Proxy routes all traffic through the given proxy URL.
	Proxy string

	// TrustSelfSigned skips TLS certificate verification.
	TrustSelfSigned bool

	// ExplicitCredentialCheck performs an extra identity round-trip at
	// connect time (see confluence.New).
	ExplicitCredentialCheck bool

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP request (default 30s).
	Timeout time.Duration

	// MaxConcurrency bounds the number of searches in flight (default 5).
	MaxConcurrency int

	// RateLimit controls client-side pacing and Retry-After handling.
	RateLimit ratelimit.Config

	// Retry. MaxRetries 0 disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Redis client for the response cache and shared rate limit state.
	// Optional.
	Redis *redis.Client

	// CacheTTL is the default lifetime of cached GET responses. The cache is
	// only enabled when Redis is set and CacheTTL > 0.
	CacheTTL time.Duration

	// Transport overrides the HTTP transport (for testing).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, username, password string) Config {
	return Config{
		BaseURL:        baseURL,
		Username:       username,
		Password:       password,
		UserAgent:      "confluence-client/1.0",
		Timeout:        30 * time.Second,
		MaxConcurrency: 5,
		RateLimit:      ratelimit.DefaultConfig(),
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// New creates a new Confluence client. No request is sent.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ValidationError{Field: "base_url", Message: "is required"}
	}
	if cfg.Username == "" {
		return nil, &ValidationError{Field: "username", Message: "is required"}
	}
	if cfg.MaxRetries < 0 {
		return nil, &ValidationError{Field: "max_retries", Message: fmt.Sprintf("must be >= 0 (got %d)", cfg.MaxRetries)}
	}

	baseURL, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	restBaseURL := baseURL.JoinPath(restPath)
	if !strings.HasPrefix(restBaseURL.Path, "/") {
		restBaseURL.Path = "/" + restBaseURL.Path
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "confluence-client/1.0"
	}

	transport := cfg.Transport
	if transport == nil {
		transport, err = newTransport(cfg)
		if err != nil {
			return nil, err
		}
	}

	logger := log.With().
		Str("component", "confluence-client").
		Str("host", baseURL.Host).
		Logger()

	var cacheStore *cache.Store
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		cacheStore = cache.NewStore(cfg.Redis, cfg.CacheTTL)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:     baseURL,
		restBaseURL: restBaseURL,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, baseURL.Host, cfg.RateLimit, logger),
		cache:       cacheStore,
		retry:       retryConfigFrom(cfg),
		config:      cfg,
		logger:      logger,
	}

	logger.Debug().
		Str("rest_base", restBaseURL.String()).
		Bool("cache", cacheStore != nil).
		Bool("proxy", cfg.Proxy != "").
		Bool("trust_self_signed", cfg.TrustSelfSigned).
		Msg("Confluence client created")

	return c, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &URIError{URI: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &URIError{URI: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &URIError{URI: raw, Err: errors.New("missing host")}
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newTransport(cfg Config) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxConcurrency * 2

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, &URIError{URI: cfg.Proxy, Err: err}
		}
		if proxyURL.Host == "" {
			return nil, &URIError{URI: cfg.Proxy, Err: errors.New("missing proxy host")}
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if cfg.TrustSelfSigned {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed servers
	}

	return transport, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// BaseURL returns a copy of the Confluence base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// RestBaseURL returns a copy of the REST API root (<base>/rest/api).
func (c *Client) RestBaseURL() *url.URL {
	u := *c.restBaseURL
	return &u
}

// Username returns the configured account name.
func (c *Client) Username() string {
	return c.config.Username
}

// ResolvePath joins path segments onto the REST API root, e.g.
// ResolvePath("content", "123") -> <base>/rest/api/content/123.
func (c *Client) ResolvePath(segments ...string) (*url.URL, error) {
	for _, s := range segments {
		if strings.ContainsAny(s, "?#") {
			return nil, &URIError{URI: s, Err: errors.New("path segment contains query or fragment")}
		}
	}
	return c.restBaseURL.JoinPath(segments...), nil
}

// ResolveReference turns a continuation reference returned by the server
// into a request URL. Absolute references are used verbatim. Relative ones
// are resolved against the base URL; Confluence reports them relative to
// the context path, so a leading context path is not doubled.
func (c *Client) ResolveReference(ref string) (*url.URL, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, &URIError{URI: ref, Err: errors.New("empty reference")}
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, &URIError{URI: ref, Err: err}
	}
	if u.IsAbs() {
		if u.Host == "" {
			return nil, &URIError{URI: ref, Err: errors.New("missing host")}
		}
		return u, nil
	}
	if u.Host != "" {
		// Scheme-relative reference.
		u.Scheme = c.baseURL.Scheme
		return u, nil
	}

	resolved := *c.baseURL
	resolved.RawQuery = u.RawQuery
	resolved.Fragment = ""
	contextPath := c.baseURL.Path
	switch {
	case strings.HasPrefix(u.Path, "/") && contextPath != "" &&
		(u.Path == contextPath || strings.HasPrefix(u.Path, contextPath+"/")):
		resolved.Path = u.Path
	case strings.HasPrefix(u.Path, "/"):
		resolved.Path = contextPath + u.Path
	default:
		resolved.Path = path.Join(contextPath, u.Path)
		if !strings.HasPrefix(resolved.Path, "/") {
			resolved.Path = "/" + resolved.Path
		}
	}
	resolved.RawPath = ""
	return &resolved, nil
}

// Do performs an HTTP request with rate limiting, caching, and retries.
// Non-2xx responses are returned to the caller; only transport failures and
// exhausted retries surface as errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Rate limit
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
		requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	// Step 2: Cache
	var cacheKey cache.Key
	var staleEntry *cache.Entry
	useCache := c.cache != nil && req.Method == http.MethodGet
	if useCache {
		cacheKey = cache.KeyFor(req.URL, c.config.Username)

		entry, freshness, err := c.cache.Lookup(ctx, cacheKey)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache lookup error")
		}
		switch {
		case freshness == cache.Fresh:
			c.logger.Debug().Str("endpoint", endpoint).Dur("age", entry.Age()).Msg("Serving response from cache")
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return entry.Response(req, "HIT"), nil

		// Step 3: Conditional request for a stale entry
		case freshness == cache.Stale && entry.CanRevalidate():
			staleEntry = entry
			entry.Condition(req)
			cache.RevalidationSent()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", entry.ETag).
				Msg("Making conditional request")
		}
	}

	// Step 4: Headers
	if c.sameOrigin(req.URL) {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	} else {
		c.logger.Warn().
			Str("host", req.URL.Host).
			Msg("Request leaves the Confluence origin, sending it without credentials")
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing Confluence request")

	// Step 5: Execute with retry
	var resp *http.Response
	attempt := 0
	retryErr := retryWithBackoff(ctx, c.retry, c.logger, func() (ErrorClass, error) {
		attempt++
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return ErrorClassNetwork, &TransportError{URL: req.URL.Redacted(), Err: reqErr}
		}

		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return "", nil
		}

		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Confluence request error")

		if !shouldRetry(errClass) {
			// Let the caller inspect the body.
			return "", nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet+1))
		resp.Body.Close()
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    reasonPhrase(resp),
			Body:       snippet(body),
		}
		if errClass == ErrorClassRateLimit && attempt < c.retry.MaxAttempts {
			// The tracker holds the Retry-After window; wait it out before
			// the next attempt.
			if err := c.rateLimiter.Wait(ctx); err != nil {
				apiErr.Err = err
			}
		}
		resp = nil
		return errClass, apiErr
	})
	if retryErr != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, retryErr
	}

	// Step 6: 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && staleEntry != nil {
		resp.Body.Close()
		newExpires, err := c.cache.Revalidated(ctx, cacheKey, staleEntry, resp.Header)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		c.logger.Debug().
			Str("endpoint", endpoint).
			Time("expires", newExpires).
			Msg("304 Not Modified - using cache")
		return staleEntry.Response(req, "REVALIDATED"), nil
	}

	// Step 7: Store successful responses
	if useCache {
		entry, err := cache.NewEntry(resp, c.cache.DefaultTTL())
		switch {
		case errors.Is(err, cache.ErrNotCacheable):
		case err != nil:
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		default:
			if err := c.cache.Put(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// sameOrigin reports whether u has the scheme, host and port of the base URL.
// Credentials are only ever sent to that origin.
func (c *Client) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.baseURL.Scheme) &&
		strings.EqualFold(u.Hostname(), c.baseURL.Hostname()) &&
		effectivePort(u) == effectivePort(c.baseURL)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

// GetJSON issues a GET request and decodes the JSON body into out.
//
// Errors:
//   - *AuthenticationError for 401 and 403
//   - *APIError for any other status >= 400
//   - *TransportError for network failures
//   - *DecodeError for a body that is not the expected JSON
func (c *Client) GetJSON(ctx context.Context, u *url.URL, out any) error {
	if u == nil {
		return &URIError{URI: "", Err: errors.New("nil URL")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &URIError{URI: u.String(), Err: err}
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet+1))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthenticationError{
				StatusCode: resp.StatusCode,
				Reason:     reasonPhrase(resp),
				Body:       snippet(body),
			}
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    reasonPhrase(resp),
			Body:       snippet(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &TransportError{URL: u.Redacted(), Err: ctxErr}
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return &TransportError{URL: u.Redacted(), Err: err}
		}
		return &DecodeError{URL: u.Redacted(), Err: err}
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	c.logger.Debug().Msg("Confluence client closed")
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the response cache, or nil when caching is disabled.
func (c *Client) Cache() *cache.Store {
	return c.cache
}

// classifyStatus categorizes an HTTP status for observability and retry.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// reasonPhrase extracts the reason from resp.Status ("404 Not Found").
func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// endpointLabel reduces a request path to a low-cardinality metric label:
// the first segment after rest/api ("search", "content", "space", "user").
func endpointLabel(p string) string {
	_, rest, ok := strings.Cut(p, "/"+restPath+"/")
	if !ok {
		return "other"
	}
	if seg, _, _ := strings.Cut(rest, "/"); seg != "" {
		return seg
	}
	return "other"
}
