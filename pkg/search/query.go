package search

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/client"
)

// Query parameter names.
const (
	ParamCQL        = "cql"
	ParamCQLContext = "cqlcontext"
	ParamExcerpt    = "excerpt"
	ParamExpand     = "expand"
	ParamLimit      = "limit"
	ParamStart      = "start"
)

// Param is a single query parameter.
type Param struct {
	Name  string
	Value string
}

// Query is a request descriptor: an endpoint and an ordered parameter list.
// The zero value is not usable; create one with BuildQuery.
type Query struct {
	base   *url.URL
	params []Param
}

// BuildQuery composes the initial request for req against the search
// endpoint base. Parameters are ordered cql, cqlcontext, excerpt, expand,
// limit, start; optional ones are omitted when unset and start only appears
// when positive. base must be absolute and carry no query.
func BuildQuery(base *url.URL, req Request) (Query, error) {
	if base == nil {
		return Query{}, &client.URIError{URI: "", Err: errors.New("nil base URL")}
	}
	if !base.IsAbs() || base.Host == "" {
		return Query{}, &client.URIError{URI: base.String(), Err: errors.New("base URL must be absolute")}
	}
	if base.RawQuery != "" || base.Fragment != "" {
		return Query{}, &client.URIError{URI: base.String(), Err: errors.New("base URL must not carry a query")}
	}

	params := []Param{{Name: ParamCQL, Value: req.CQL()}}
	if ctx := req.CQLContext(); strings.TrimSpace(ctx) != "" {
		params = append(params, Param{Name: ParamCQLContext, Value: ctx})
	}
	if excerpt := req.Excerpt(); excerpt != "" {
		params = append(params, Param{Name: ParamExcerpt, Value: excerpt.Name()})
	}
	if expand := req.Expand(); len(expand) > 0 {
		params = append(params, Param{Name: ParamExpand, Value: strings.Join(expand, ",")})
	}
	if req.Limit() > 0 {
		params = append(params, Param{Name: ParamLimit, Value: strconv.Itoa(req.Limit())})
	}

	u := *base
	q := Query{base: &u, params: params}
	if req.Start() > 0 {
		q = q.WithStart(req.Start())
	}
	return q, nil
}

// WithStart returns a copy of q with start set to the given offset. An
// existing start parameter is replaced in place; otherwise it is appended.
func (q Query) WithStart(start int) Query {
	params := make([]Param, 0, len(q.params)+1)
	replaced := false
	for _, p := range q.params {
		if p.Name == ParamStart {
			p.Value = strconv.Itoa(start)
			replaced = true
		}
		params = append(params, p)
	}
	if !replaced {
		params = append(params, Param{Name: ParamStart, Value: strconv.Itoa(start)})
	}
	return Query{base: q.base, params: params}
}

// Params returns a copy of the ordered parameter list.
func (q Query) Params() []Param {
	return append([]Param(nil), q.params...)
}

// Get returns the value of the named parameter.
func (q Query) Get(name string) (string, bool) {
	for _, p := range q.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Encode renders the parameters in list order. url.Values.Encode is not
// used since it sorts by key.
func (q Query) Encode() string {
	var b strings.Builder
	for i, p := range q.params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// URL returns the full request URL.
func (q Query) URL() *url.URL {
	if q.base == nil {
		return nil
	}
	u := *q.base
	u.RawQuery = q.Encode()
	return &u
}

// String returns the full request URL as a string.
func (q Query) String() string {
	if u := q.URL(); u != nil {
		return u.String()
	}
	return ""
}
