// Package search implements CQL search against the Confluence REST API,
// including transparent retrieval of every result page.
package search

import (
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
)

// Request is an immutable CQL search request. Build it with NewRequest.
type Request struct {
	cql         string
	cqlContext  string
	excerpt     domain.Excerpt
	expand      []string
	limit       int
	start       int
	retrieveAll bool
}

// Option configures a Request.
type Option func(*Request)

// WithCQLContext sets the cqlcontext parameter, a JSON object describing the
// space and content the query runs in.
func WithCQLContext(cqlContext string) Option {
	return func(r *Request) { r.cqlContext = cqlContext }
}

// WithExcerpt sets the excerpt strategy.
func WithExcerpt(excerpt domain.Excerpt) Option {
	return func(r *Request) { r.excerpt = excerpt }
}

// WithExpand appends properties to expand. Order is kept; blanks are dropped.
func WithExpand(names ...string) Option {
	return func(r *Request) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				r.expand = append(r.expand, name)
			}
		}
	}
}

// WithLimit sets the requested page size. Values <= 0 leave it to the server.
func WithLimit(limit int) Option {
	return func(r *Request) { r.limit = limit }
}

// WithStart sets the offset of the first requested result.
func WithStart(start int) Option {
	return func(r *Request) { r.start = start }
}

// WithRetrieveAll requests every remaining page instead of only the first.
func WithRetrieveAll(all bool) Option {
	return func(r *Request) { r.retrieveAll = all }
}

// NewRequest builds a search request. It fails with *client.ValidationError
// when cql is blank. A limit or start <= 0 is not sent.
func NewRequest(cql string, opts ...Option) (Request, error) {
	r := Request{cql: cql}
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks the request. The zero Request is invalid.
func (r Request) Validate() error {
	if strings.TrimSpace(r.cql) == "" {
		return &client.ValidationError{Field: "cql", Message: "must not be blank"}
	}
	return nil
}

// CQL returns the query expression.
func (r Request) CQL() string { return r.cql }

// CQLContext returns the cqlcontext parameter.
func (r Request) CQLContext() string { return r.cqlContext }

// Excerpt returns the excerpt strategy, or "" when unset.
func (r Request) Excerpt() domain.Excerpt { return r.excerpt }

// Expand returns a copy of the expansion names.
func (r Request) Expand() []string { return append([]string(nil), r.expand...) }

// Limit returns the requested page size.
func (r Request) Limit() int { return r.limit }

// Start returns the requested offset.
func (r Request) Start() int { return r.start }

// RetrieveAll reports whether every page is requested.
func (r Request) RetrieveAll() bool { return r.retrieveAll }
