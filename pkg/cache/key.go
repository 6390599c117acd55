package cache

import (
	"net/url"
	"strings"
)

// KeyPrefix is prepended to every cache key.
const KeyPrefix = "confluence"

// anonymousUser replaces an empty username in keys.
const anonymousUser = "-"

// Key identifies one cached response: the account it was produced for and
// the request URI. Confluence filters search hits and space listings by
// permission, so the username is part of the identity.
type Key struct {
	Username string
	Path     string
	Query    url.Values
}

// KeyFor returns the key of a GET request for u issued as username.
func KeyFor(u *url.URL, username string) Key {
	return Key{
		Username: username,
		Path:     u.Path,
		Query:    u.Query(),
	}
}

// String renders the Redis key.
// Format: confluence:<escaped user>:<path>?<sorted, escaped query>
//
// Example:
//
//	confluence:jdoe:/wiki/rest/api/search?cql=type%3Dpage&limit=25
//
// The user segment is query-escaped, so it never contains ':' or a glob
// metacharacter, and the query is encoded by url.Values.Encode, so values
// holding ':' cannot collide with another key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(userPrefix(k.Username))

	path := k.Path
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if q := k.Query.Encode(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// UserPattern is the Redis SCAN pattern matching every entry of username.
func UserPattern(username string) string {
	return userPrefix(username) + "*"
}

func userPrefix(username string) string {
	if username == "" {
		username = anonymousUser
	}
	return KeyPrefix + ":" + url.QueryEscape(username) + ":"
}
