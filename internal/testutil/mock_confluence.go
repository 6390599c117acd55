// Package testutil provides an httptest-backed Confluence server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockConfluence is a configurable mock Confluence server. Handlers are
// registered by path below rest/api, e.g. "search" or "user/current".
type MockConfluence struct {
	server      *httptest.Server
	contextPath string

	mu               sync.RWMutex
	username         string
	password         string
	handlers         map[string]http.HandlerFunc
	requestCount     int
	conditionalCount int
	requests         []string
	lastHeader       http.Header
}

// NewMockConfluence starts a mock server that serves the REST API below
// contextPath + "/rest/api". contextPath may be empty. It accepts the
// credentials jdoe / secret until SetCredentials changes them.
func NewMockConfluence(contextPath string) *MockConfluence {
	m := &MockConfluence{
		contextPath: strings.TrimSuffix(contextPath, "/"),
		username:    "jdoe",
		password:    "secret",
		handlers:    make(map[string]http.HandlerFunc),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	return m
}

func (m *MockConfluence) serveHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.requests = append(m.requests, r.URL.RequestURI())
	m.lastHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	username, password := m.username, m.password
	m.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != username || pass != password {
		w.Header().Set("WWW-Authenticate", `Basic realm="Confluence"`)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Basic authentication failed"})
		return
	}

	prefix := m.contextPath + "/rest/api/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	endpoint := strings.TrimPrefix(r.URL.Path, prefix)

	m.mu.RLock()
	handler, ok := m.handlers[endpoint]
	m.mu.RUnlock()
	if ok {
		handler(w, r)
		return
	}
	m.defaultHandler(w, r, endpoint)
}

// URL returns the Confluence base URL including the context path.
func (m *MockConfluence) URL() string {
	return m.server.URL + m.contextPath
}

// ContextPath returns the configured context path.
func (m *MockConfluence) ContextPath() string {
	return m.contextPath
}

// Close shuts down the mock server.
func (m *MockConfluence) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockConfluence) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.requests = nil
	m.lastHeader = nil
}

// SetCredentials changes the account accepted by the basic auth check.
func (m *MockConfluence) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

// SetHandler sets a custom handler for an endpoint below rest/api.
func (m *MockConfluence) SetHandler(endpoint string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[strings.Trim(endpoint, "/")] = handler
}

// SetResponse configures a fixed response for an endpoint.
func (m *MockConfluence) SetResponse(endpoint string, resp MockResponse) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 response with v encoded as the body.
func (m *MockConfluence) SetJSON(endpoint string, v any) {
	m.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v)
	})
}

// SetSearchResults serves items from the search endpoint, honoring the
// start and limit parameters (default limit 25). With explicitLinks each
// page carries a context-relative _links.next; otherwise only totalSize is
// reported and clients must compute the next start themselves.
func (m *MockConfluence) SetSearchResults(items []domain.SearchResultItem, explicitLinks bool) {
	m.SetHandler("search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if strings.TrimSpace(q.Get("cql")) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": "CQL query parameter is required"})
			return
		}
		start, _ := strconv.Atoi(q.Get("start"))
		limit, err := strconv.Atoi(q.Get("limit"))
		if err != nil || limit <= 0 {
			limit = 25
		}

		end := min(start+limit, len(items))
		page := domain.SearchResult{
			Results:        []domain.SearchResultItem{},
			Start:          start,
			Limit:          limit,
			CQLQuery:       q.Get("cql"),
			SearchDuration: 12,
			Links: &pagination.Links{
				Base:    m.URL(),
				Context: m.contextPath,
			},
		}
		if start < end {
			page.Results = items[start:end]
		}
		page.Size = len(page.Results)

		if explicitLinks {
			if end < len(items) {
				next := url.Values{}
				next.Set("cql", q.Get("cql"))
				next.Set("limit", strconv.Itoa(limit))
				next.Set("start", strconv.Itoa(end))
				page.Links.Next = "/rest/api/search?" + next.Encode()
			}
		} else {
			page.TotalSize = len(items)
		}

		writeJSON(w, http.StatusOK, page)
	})
}

// Requests returns the request URIs received so far, in order.
func (m *MockConfluence) Requests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.requests...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockConfluence) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockConfluence) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockConfluence) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// defaultHandler answers user/current with the authenticated account and
// everything else with a Confluence-style 404.
func (m *MockConfluence) defaultHandler(w http.ResponseWriter, r *http.Request, endpoint string) {
	if endpoint == "user/current" {
		user, _, _ := r.BasicAuth()
		writeJSON(w, http.StatusOK, domain.User{
			Type:        "known",
			Username:    user,
			UserKey:     "key-" + user,
			DisplayName: user,
		})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{
		"statusCode": 404,
		"message":    "No resource found for " + endpoint,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewJSONResponse creates a 200 OK response carrying a cache validator.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"ETag":          `"test-etag-123"`,
			"Cache-Control": "max-age=300",
			"Content-Type":  "application/json; charset=utf-8",
		},
	}
}

// NewNotModifiedResponse creates a 304 Not Modified response.
func NewNotModifiedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotModified,
		Headers: map[string]string{
			"Cache-Control": "max-age=300",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"statusCode": 429, "message": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":           strconv.Itoa(int(retryAfter.Seconds())),
			"X-RateLimit-Remaining": "0",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"statusCode": 500, "message": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler creates a handler that answers 304 when the request
// carries etag in If-None-Match, and data with that ETag otherwise.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "max-age=1")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// SearchItems builds n page hits titled "Page 1" .. "Page n".
func SearchItems(n int) []domain.SearchResultItem {
	items := make([]domain.SearchResultItem, n)
	for i := range items {
		id := strconv.Itoa(1000 + i)
		title := "Page " + strconv.Itoa(i+1)
		items[i] = domain.SearchResultItem{
			Title:      title,
			EntityType: "content",
			URL:        "/pages/viewpage.action?pageId=" + id,
			Content:    &domain.Content{ID: id, Type: "page", Status: "current", Title: title},
		}
	}
	return items
}
