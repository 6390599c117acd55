package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Entry is a stored Confluence response together with its validators.
type Entry struct {
	Body         []byte      `json:"body"`
	Header       http.Header `json:"header"`
	StatusCode   int         `json:"status_code"`
	ETag         string      `json:"etag,omitempty"`
	LastModified time.Time   `json:"last_modified,omitzero"`
	Expires      time.Time   `json:"expires"`
	StoredAt     time.Time   `json:"stored_at"`
}

// Fresh reports whether the entry may be served without asking Confluence.
func (e *Entry) Fresh() bool {
	return time.Now().Before(e.Expires)
}

// TTL returns the remaining freshness, or 0 once stale.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age is how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	if e.StoredAt.IsZero() {
		return 0
	}
	return time.Since(e.StoredAt)
}

// CanRevalidate reports whether a conditional request can be built.
func (e *Entry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// Condition adds If-None-Match, or If-Modified-Since when no ETag is known.
func (e *Entry) Condition(req *http.Request) {
	switch {
	case e.ETag != "":
		req.Header.Set("If-None-Match", e.ETag)
	case !e.LastModified.IsZero():
		req.Header.Set("If-Modified-Since", e.LastModified.UTC().Format(http.TimeFormat))
	}
}

// Refresh applies the freshness headers of a 304 response and returns the
// new expiry. A new ETag replaces the stored one.
func (e *Entry) Refresh(header http.Header, defaultTTL time.Duration) time.Time {
	e.Expires = Expiry(header, defaultTTL)
	if etag := header.Get("ETag"); etag != "" {
		e.ETag = etag
	}
	return e.Expires
}

// Response rebuilds an HTTP response for req. source is reported in the
// X-Cache header ("HIT" or "REVALIDATED").
func (e *Entry) Response(req *http.Request, source string) *http.Response {
	status := e.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Cache", source)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
