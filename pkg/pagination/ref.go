package pagination

import (
	"fmt"
	"strings"
)

// Ref identifies the request for a page. It is one of First, ExplicitURI or
// SyntheticOffset; a nil Ref means there is no further page.
type Ref interface {
	fmt.Stringer
	isRef()
}

// First is the initial request built from the caller's parameters.
type First struct{}

// ExplicitURI is a continuation reference supplied by the server. It already
// carries every parameter and is requested verbatim.
type ExplicitURI struct {
	URI string
}

// SyntheticOffset re-issues the original request with start set to Start.
type SyntheticOffset struct {
	Start int
}

func (First) isRef()           {}
func (ExplicitURI) isRef()     {}
func (SyntheticOffset) isRef() {}

func (First) String() string             { return "first" }
func (r ExplicitURI) String() string     { return "uri:" + r.URI }
func (r SyntheticOffset) String() string { return fmt.Sprintf("start:%d", r.Start) }

// Next determines the continuation of page. An explicit next link wins over
// offset arithmetic; a synthesized offset is only produced while the
// server-reported total exceeds start+size. Returns nil when the walk is done.
func Next[T any](page *Page[T]) Ref {
	if page == nil {
		return nil
	}
	if next := page.NextLink(); strings.TrimSpace(next) != "" {
		return ExplicitURI{URI: next}
	}
	if page.HasMore() {
		return SyntheticOffset{Start: page.Start + page.Size}
	}
	return nil
}

func refMode(ref Ref) string {
	switch ref.(type) {
	case ExplicitURI:
		return "explicit"
	case SyntheticOffset:
		return "synthetic"
	default:
		return "first"
	}
}
