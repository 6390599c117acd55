package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotCacheable is returned by NewEntry for responses that must not be
// stored: non-200 statuses and Cache-Control: no-store.
var ErrNotCacheable = errors.New("response not cacheable")

// NewEntry reads resp into an Entry and restores resp.Body for the caller.
// defaultTTL applies when the response carries no freshness information.
//
// Confluence marks most REST responses no-cache; such entries are stored
// already stale and revalidated on every use.
func NewEntry(resp *http.Response, defaultTTL time.Duration) (*Entry, error) {
	if resp.StatusCode != http.StatusOK || hasDirective(resp.Header, "no-store") {
		return nil, ErrNotCacheable
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		Body:       body,
		Header:     resp.Header.Clone(),
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		Expires:    Expiry(resp.Header, defaultTTL),
		StoredAt:   now,
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		entry.LastModified = lm
	}
	return entry, nil
}

// Expiry computes when a response goes stale: no-cache means immediately,
// then Cache-Control max-age, then Expires, then now+defaultTTL.
func Expiry(header http.Header, defaultTTL time.Duration) time.Time {
	now := time.Now()

	if hasDirective(header, "no-cache") {
		return now
	}
	if v, ok := directiveValue(header, "max-age"); ok {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if expires, err := http.ParseTime(header.Get("Expires")); err == nil {
		return expires
	}

	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return now.Add(defaultTTL)
}

func hasDirective(header http.Header, name string) bool {
	_, ok := directiveValue(header, name)
	return ok
}

func directiveValue(header http.Header, name string) (string, bool) {
	for _, cc := range header.Values("Cache-Control") {
		for _, directive := range strings.Split(cc, ",") {
			key, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
			if strings.EqualFold(key, name) {
				return strings.Trim(value, `"`), true
			}
		}
	}
	return "", false
}
