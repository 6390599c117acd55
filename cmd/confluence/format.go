package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/charmbracelet/lipgloss"
)

// Confluence marks matched terms in highlighted excerpts with these tokens.
const (
	highlightStart = "@@@hl@@@"
	highlightEnd   = "@@@endhl@@@"
)

var (
	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	excerptStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	highlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

func renderResults(w io.Writer, result *domain.SearchResult) {
	summary := fmt.Sprintf("%d results", result.Size)
	if result.TotalSize > 0 {
		summary = fmt.Sprintf("%d of %d results", result.Size, result.TotalSize)
	}
	if result.CQLQuery != "" {
		summary += " for " + result.CQLQuery
	}
	fmt.Fprintln(w, summaryStyle.Render(summary))

	if len(result.Results) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No results found"))
		return
	}

	base := ""
	if result.Links != nil {
		base = strings.TrimSuffix(result.Links.Base, "/")
	}
	for i, item := range result.Results {
		fmt.Fprintf(w, "%3d. %s %s\n", result.Start+i+1, titleStyle.Render(item.Title), metaStyle.Render(describe(item)))
		if item.URL != "" {
			fmt.Fprintln(w, "     "+urlStyle.Render(base+item.URL))
		}
		if excerpt := strings.TrimSpace(item.Excerpt); excerpt != "" {
			fmt.Fprintln(w, excerptStyle.Render(highlight(excerpt)))
		}
	}
}

// describe returns "(page in Development, 2 days ago)" style metadata.
func describe(item domain.SearchResultItem) string {
	kind := item.EntityType
	if item.Content != nil && item.Content.Type != "" {
		kind = item.Content.Type
	}
	parts := []string{kind}
	if item.ResultGlobalContainer != nil && item.ResultGlobalContainer.Title != "" {
		parts[0] += " in " + item.ResultGlobalContainer.Title
	}
	if item.FriendlyLastModified != "" {
		parts = append(parts, item.FriendlyLastModified)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// highlight renders the matched terms of a highlighted excerpt. Unbalanced
// markers are dropped.
func highlight(excerpt string) string {
	var b strings.Builder
	rest := excerpt
	for {
		before, after, found := strings.Cut(rest, highlightStart)
		b.WriteString(before)
		if !found {
			break
		}
		term, tail, closed := strings.Cut(after, highlightEnd)
		b.WriteString(highlightStyle.Render(term))
		if !closed {
			break
		}
		rest = tail
	}
	return strings.ReplaceAll(b.String(), highlightEnd, "")
}
