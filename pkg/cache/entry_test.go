package cache

import (
	"io"
	"net/http"
	"testing"
	"time"
)

func TestEntry_Fresh(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{name: "expired", expires: time.Now().Add(-time.Hour), want: false},
		{name: "valid", expires: time.Now().Add(time.Hour), want: true},
		{name: "zero expiry", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.Fresh(); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTLAndAge(t *testing.T) {
	if got := (&Entry{Expires: time.Now().Add(-time.Hour)}).TTL(); got != 0 {
		t.Errorf("TTL() of stale entry = %v, want 0", got)
	}
	if got := (&Entry{Expires: time.Now().Add(5 * time.Minute)}).TTL(); got < 4*time.Minute+59*time.Second {
		t.Errorf("TTL() = %v, want ~5m", got)
	}
	if got := (&Entry{}).Age(); got != 0 {
		t.Errorf("Age() without StoredAt = %v, want 0", got)
	}
	if got := (&Entry{StoredAt: time.Now().Add(-time.Minute)}).Age(); got < time.Minute {
		t.Errorf("Age() = %v, want >= 1m", got)
	}
}

func TestEntry_Condition(t *testing.T) {
	lastMod := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		entry         Entry
		wantRevalid   bool
		wantNoneMatch string
		wantModSince  string
	}{
		{
			name:          "etag wins",
			entry:         Entry{ETag: `"v3"`, LastModified: lastMod},
			wantRevalid:   true,
			wantNoneMatch: `"v3"`,
		},
		{
			name:         "last modified only",
			entry:        Entry{LastModified: lastMod},
			wantRevalid:  true,
			wantModSince: "Fri, 01 Mar 2024 10:00:00 GMT",
		},
		{
			name: "no validators",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.CanRevalidate(); got != tt.wantRevalid {
				t.Errorf("CanRevalidate() = %v, want %v", got, tt.wantRevalid)
			}
			req, _ := http.NewRequest(http.MethodGet, "https://wiki.example.com/rest/api/content/1", nil)
			tt.entry.Condition(req)
			if got := req.Header.Get("If-None-Match"); got != tt.wantNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantModSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantModSince)
			}
		})
	}
}

func TestEntry_Refresh(t *testing.T) {
	entry := &Entry{ETag: `"v1"`, Expires: time.Now().Add(-time.Second)}

	header := http.Header{}
	header.Set("Cache-Control", "max-age=120")
	header.Set("ETag", `"v2"`)

	expires := entry.Refresh(header, time.Minute)
	if !entry.Expires.Equal(expires) {
		t.Error("Refresh() should update Expires")
	}
	if !entry.Fresh() || entry.TTL() < 110*time.Second {
		t.Errorf("TTL() after refresh = %v, want ~120s", entry.TTL())
	}
	if entry.ETag != `"v2"` {
		t.Errorf("ETag = %q, want \"v2\"", entry.ETag)
	}
}

func TestEntry_Response(t *testing.T) {
	entry := &Entry{
		Body:       []byte(`{"id":"42"}`),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		StatusCode: http.StatusOK,
	}
	req, _ := http.NewRequest(http.MethodGet, "https://wiki.example.com/rest/api/content/42", nil)

	resp := entry.Response(req, "REVALIDATED")
	if resp.StatusCode != http.StatusOK || resp.Status != "200 OK" {
		t.Errorf("status = %d %q", resp.StatusCode, resp.Status)
	}
	if resp.Header.Get("X-Cache") != "REVALIDATED" {
		t.Errorf("X-Cache = %q", resp.Header.Get("X-Cache"))
	}
	if entry.Header.Get("X-Cache") != "" {
		t.Error("Response() must not modify the stored header")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"id":"42"}` {
		t.Errorf("body = %q", body)
	}
	if resp.Request != req {
		t.Error("Request not attached")
	}
}
