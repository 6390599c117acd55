package search

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/async"
	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/domain"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "confluence_searches_total",
		Help: "Total CQL searches by status",
	}, []string{"status"}) // "ok", "error", "invalid"

	searchResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confluence_search_results_total",
		Help: "Total search hits returned to callers",
	})
)

// searchPath is the CQL search endpoint below rest/api.
const searchPath = "search"

// Executor sends requests on behalf of the search client. *client.Client
// implements it.
type Executor interface {
	GetJSON(ctx context.Context, u *url.URL, out any) error
	ResolvePath(segments ...string) (*url.URL, error)
	ResolveReference(ref string) (*url.URL, error)
}

var _ Executor = (*client.Client)(nil)

// Client runs CQL searches.
type Client struct {
	executor   Executor
	runner     *async.Executor
	ownsRunner bool
	pagination pagination.Config
	logger     zerolog.Logger
}

// NewClient creates a search client. runner carries SearchContent tasks and
// stays owned by the caller; a nil runner gets a private executor running one
// search at a time, released by Close.
func NewClient(executor Executor, runner *async.Executor, cfg pagination.Config) *Client {
	logger := log.With().Str("component", "search-client").Logger()
	owns := runner == nil
	if owns {
		runner = async.NewExecutor(1, logger)
	}
	return &Client{
		executor:   executor,
		runner:     runner,
		ownsRunner: owns,
		pagination: cfg,
		logger:     logger,
	}
}

// Close waits for running searches and releases the private executor. It is
// a no-op for a client sharing a caller's executor.
func (c *Client) Close() error {
	if !c.ownsRunner {
		return nil
	}
	return c.runner.Close()
}

// SearchContent runs Search on the client's executor and returns a future
// for the result. An invalid request fails the future without any network
// activity.
func (c *Client) SearchContent(ctx context.Context, req Request) *async.Future[*domain.SearchResult] {
	if err := req.Validate(); err != nil {
		searchesTotal.WithLabelValues("invalid").Inc()
		return async.Failed[*domain.SearchResult](err)
	}
	return async.Submit(ctx, c.runner, func(ctx context.Context) (*domain.SearchResult, error) {
		return c.Search(ctx, req)
	})
}

// Search executes req. Without RetrieveAll the first page is returned
// as received. With RetrieveAll every remaining page is fetched in order and
// the concatenated result is returned, with Size set to the number of
// results and Limit to the requested limit. Any failure aborts the search
// and is returned unchanged; no partial result is produced.
func (c *Client) Search(ctx context.Context, req Request) (*domain.SearchResult, error) {
	if err := req.Validate(); err != nil {
		searchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	logger := c.logger.With().Str("search_id", uuid.NewString()).Logger()
	logger.Debug().
		Str("cql", req.CQL()).
		Str("cql_context", req.CQLContext()).
		Strs("expand", req.Expand()).
		Int("start", req.Start()).
		Int("limit", req.Limit()).
		Bool("retrieve_all", req.RetrieveAll()).
		Msg("Starting content search")

	startTime := time.Now()

	base, err := c.executor.ResolvePath(searchPath)
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	query, err := BuildQuery(base, req)
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	collector := pagination.NewCollector[domain.SearchResultItem](c.fetcher(query), c.pagination, logger)

	var result *domain.SearchResult
	if req.RetrieveAll() {
		logger.Debug().Msg("Retrieving all (remaining) results")
		result, err = collector.FetchAll(ctx, req.Limit())
	} else {
		result, err = collector.First(ctx)
	}
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Str("cql", req.CQL()).Msg("Content search failed")
		return nil, err
	}

	searchesTotal.WithLabelValues("ok").Inc()
	searchResultsTotal.Add(float64(len(result.Results)))
	logger.Info().
		Int("total", result.TotalSize).
		Int("size", result.Size).
		Int("start", result.Start).
		Int("limit", result.Limit).
		Dur("duration", time.Since(startTime)).
		Msg("Content search results")

	return result, nil
}

// fetcher turns page references into requests. Synthesized continuations
// reuse the initial parameters with start replaced.
func (c *Client) fetcher(query Query) pagination.FetchFunc[domain.SearchResultItem] {
	return func(ctx context.Context, ref pagination.Ref) (*domain.SearchResult, error) {
		var u *url.URL
		switch r := ref.(type) {
		case pagination.First:
			u = query.URL()
		case pagination.SyntheticOffset:
			u = query.WithStart(r.Start).URL()
		case pagination.ExplicitURI:
			var err error
			if u, err = c.executor.ResolveReference(r.URI); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported page reference %T", ref)
		}

		var page domain.SearchResult
		if err := c.executor.GetJSON(ctx, u, &page); err != nil {
			return nil, err
		}
		return &page, nil
	}
}
