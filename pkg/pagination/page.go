package pagination

// Links holds the hypermedia links of a result page.
type Links struct {
	Base    string `json:"base,omitempty"`
	Context string `json:"context,omitempty"`
	Next    string `json:"next,omitempty"`
	Prev    string `json:"prev,omitempty"`
	Self    string `json:"self,omitempty"`
}

// Page is one server response of a paginated collection. Fields other than
// the paging fields are passed through untouched.
type Page[T any] struct {
	Results        []T    `json:"results"`
	Start          int    `json:"start"`
	Limit          int    `json:"limit"`
	Size           int    `json:"size"`
	TotalSize      int    `json:"totalSize,omitempty"`
	CQLQuery       string `json:"cqlQuery,omitempty"`
	SearchDuration int    `json:"searchDuration,omitempty"`
	Links          *Links `json:"_links,omitempty"`
}

// NextLink returns the explicit continuation reference, or "".
func (p *Page[T]) NextLink() string {
	if p == nil || p.Links == nil {
		return ""
	}
	return p.Links.Next
}

// HasMore reports whether the server-reported total exceeds the results
// covered up to and including this page.
func (p *Page[T]) HasMore() bool {
	if p == nil {
		return false
	}
	return p.TotalSize > p.Start+p.Size
}
