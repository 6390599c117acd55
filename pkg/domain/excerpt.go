package domain

import (
	"fmt"
	"strings"
)

// Excerpt selects how the server renders result excerpts.
type Excerpt string

const (
	// ExcerptNone disables excerpts.
	ExcerptNone Excerpt = "none"

	// ExcerptHighlight returns excerpts with matched terms highlighted.
	ExcerptHighlight Excerpt = "highlight"

	// ExcerptIndexed returns the plain indexed excerpt.
	ExcerptIndexed Excerpt = "indexed"

	// ExcerptHighlightUnescaped is ExcerptHighlight without HTML escaping.
	ExcerptHighlightUnescaped Excerpt = "highlight_unescaped"

	// ExcerptIndexedUnescaped is ExcerptIndexed without HTML escaping.
	ExcerptIndexedUnescaped Excerpt = "indexed_unescaped"
)

// Name returns the query parameter value for the excerpt strategy.
func (e Excerpt) Name() string {
	return string(e)
}

// ParseExcerpt converts a name into an Excerpt. "plain" is accepted as an
// alias of ExcerptIndexed.
func ParseExcerpt(name string) (Excerpt, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return ExcerptNone, nil
	case "highlight":
		return ExcerptHighlight, nil
	case "indexed", "plain":
		return ExcerptIndexed, nil
	case "highlight_unescaped":
		return ExcerptHighlightUnescaped, nil
	case "indexed_unescaped":
		return ExcerptIndexedUnescaped, nil
	default:
		return "", fmt.Errorf("unknown excerpt strategy %q", name)
	}
}
