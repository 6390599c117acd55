package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
	"github.com/Sternrassler/confluence-client/pkg/search"
	"github.com/rs/zerolog"
)

// SpaceQuery filters a space listing. The zero value lists every space.
type SpaceQuery struct {
	// Keys restricts the listing to the given space keys.
	Keys []string
	// Type is "global" or "personal"; empty means both.
	Type string
	// Status is "current" or "archived"; empty means the server default.
	Status string
	// Expand names the properties to expand on each space.
	Expand []string
	// Limit is the page size requested from the server; 0 uses its default.
	Limit int
}

func (q SpaceQuery) values() url.Values {
	v := url.Values{}
	for _, key := range q.Keys {
		if key = strings.TrimSpace(key); key != "" {
			v.Add("spaceKey", key)
		}
	}
	if q.Type != "" {
		v.Set("type", q.Type)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if e := expandValue(q.Expand); e != "" {
		v.Set(search.ParamExpand, e)
	}
	if q.Limit > 0 {
		v.Set(search.ParamLimit, strconv.Itoa(q.Limit))
	}
	return v
}

// SpaceClient reads Confluence spaces.
type SpaceClient struct {
	executor   search.Executor
	pagination pagination.Config
	logger     zerolog.Logger
}

// Space returns the space with the given key.
func (s *SpaceClient) Space(ctx context.Context, key string, expand ...string) (*domain.Space, error) {
	if strings.TrimSpace(key) == "" {
		return nil, &client.ValidationError{Field: "key", Message: "must not be blank"}
	}
	endpoint, err := s.executor.ResolvePath("space", key)
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = expandQuery(expand)

	var space domain.Space
	if err := s.executor.GetJSON(ctx, endpoint, &space); err != nil {
		return nil, err
	}
	return &space, nil
}

// Spaces lists every space matching q, following continuation links until
// the listing is exhausted.
func (s *SpaceClient) Spaces(ctx context.Context, q SpaceQuery) (*domain.SpacePage, error) {
	endpoint, err := s.executor.ResolvePath("space")
	if err != nil {
		return nil, err
	}
	params := q.values()

	fetch := func(ctx context.Context, ref pagination.Ref) (*domain.SpacePage, error) {
		u := *endpoint
		switch r := ref.(type) {
		case pagination.First:
			u.RawQuery = params.Encode()
		case pagination.SyntheticOffset:
			next := url.Values{}
			for k, v := range params {
				next[k] = v
			}
			next.Set(search.ParamStart, strconv.Itoa(r.Start))
			u.RawQuery = next.Encode()
		case pagination.ExplicitURI:
			resolved, err := s.executor.ResolveReference(r.URI)
			if err != nil {
				return nil, err
			}
			u = *resolved
		default:
			return nil, fmt.Errorf("unsupported page reference %T", ref)
		}

		var page domain.SpacePage
		if err := s.executor.GetJSON(ctx, &u, &page); err != nil {
			return nil, err
		}
		return &page, nil
	}

	collector := pagination.NewCollector[domain.Space](pagination.FetchFunc[domain.Space](fetch), s.pagination, s.logger)
	spaces, err := collector.FetchAll(ctx, q.Limit)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("spaces", spaces.Size).Msg("Listed spaces")
	return spaces, nil
}
