package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "confluence_pages_fetched_total",
	Help: "Total result pages fetched by continuation mode",
}, []string{"mode"}) // "first", "explicit", "synthetic"

var (
	// ErrPageLimit is returned when a walk would exceed Config.MaxPages.
	ErrPageLimit = errors.New("page limit reached")

	// ErrNoProgress is returned when a continuation would refetch a page
	// already seen, e.g. a zero-item page that still reports more results.
	ErrNoProgress = errors.New("pagination made no progress")
)

// Config holds collector configuration.
type Config struct {
	// MaxPages bounds the number of pages one walk may fetch, including the
	// first. 0 means unbounded.
	MaxPages int

	// Timeout per page fetch. 0 leaves the deadline to the caller's context.
	Timeout time.Duration

	// ProgressEvery logs an info line every N pages (default 50).
	ProgressEvery int
}

// DefaultConfig returns the default configuration: no page bound.
func DefaultConfig() Config {
	return Config{
		ProgressEvery: 50,
	}
}

// PageFetcher executes the request identified by ref and decodes one page.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, ref Ref) (*Page[T], error)
}

// FetchFunc adapts a function to PageFetcher.
type FetchFunc[T any] func(ctx context.Context, ref Ref) (*Page[T], error)

// FetchPage calls f(ctx, ref).
func (f FetchFunc[T]) FetchPage(ctx context.Context, ref Ref) (*Page[T], error) {
	return f(ctx, ref)
}

// Collector walks the pages of one collection request. A Collector holds no
// per-walk state and may be reused.
type Collector[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// NewCollector creates a new collector.
func NewCollector[T any](fetcher PageFetcher[T], config Config, logger zerolog.Logger) *Collector[T] {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 50
	}
	return &Collector[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// First fetches the first page and returns it unchanged.
func (c *Collector[T]) First(ctx context.Context) (*Page[T], error) {
	return c.fetch(ctx, First{}, 1)
}

// Walk fetches pages in sequence, starting with the first, and hands each
// one to fn. Returning false from fn stops the walk without error.
func (c *Collector[T]) Walk(ctx context.Context, fn func(page *Page[T]) bool) error {
	var ref Ref = First{}
	seen := make(map[string]struct{})

	for pageNum := 1; ref != nil; pageNum++ {
		if c.config.MaxPages > 0 && pageNum > c.config.MaxPages {
			return fmt.Errorf("%w: %d pages", ErrPageLimit, c.config.MaxPages)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("page %d: %w", pageNum, err)
		}

		page, err := c.fetch(ctx, ref, pageNum)
		if err != nil {
			return err
		}
		seen[ref.String()] = struct{}{}

		if !fn(page) {
			c.logger.Debug().Int("page", pageNum).Msg("Walk stopped by caller")
			return nil
		}

		next := Next(page)
		if next != nil {
			if _, dup := seen[next.String()]; dup {
				return fmt.Errorf("%w: continuation %s repeats", ErrNoProgress, next)
			}
		}
		if _, ok := next.(SyntheticOffset); ok && page.Size <= 0 {
			return fmt.Errorf("%w: empty page at start %d with total %d", ErrNoProgress, page.Start, page.TotalSize)
		}

		if pageNum%c.config.ProgressEvery == 0 {
			c.logger.Info().
				Int("pages", pageNum).
				Int("total_size", page.TotalSize).
				Msg("Pagination progress")
		}
		ref = next
	}
	return nil
}

// FetchAll walks every page and concatenates the results. The aggregate
// carries the first page's fields, Size set to the number of concatenated
// results and Limit set to limit. On error nothing is returned.
func (c *Collector[T]) FetchAll(ctx context.Context, limit int) (*Page[T], error) {
	start := time.Now()

	var first *Page[T]
	var results []T
	pages := 0

	err := c.Walk(ctx, func(page *Page[T]) bool {
		if first == nil {
			first = page
		}
		results = append(results, page.Results...)
		pages++
		return true
	})
	if err != nil {
		c.logger.Debug().Err(err).Int("pages", pages).Msg("Pagination aborted, discarding partial results")
		return nil, err
	}

	aggregate := *first
	if results == nil {
		results = []T{}
	}
	aggregate.Results = results
	aggregate.Size = len(results)
	aggregate.Limit = limit

	c.logger.Debug().
		Int("pages", pages).
		Int("size", aggregate.Size).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return &aggregate, nil
}

func (c *Collector[T]) fetch(ctx context.Context, ref Ref, pageNum int) (*Page[T], error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	c.logger.Debug().
		Int("page", pageNum).
		Stringer("ref", ref).
		Msg("Fetching page")

	page, err := c.fetcher.FetchPage(ctx, ref)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Int("page", pageNum).
			Stringer("ref", ref).
			Msg("Page fetch failed")
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page %d (%s): empty response", pageNum, ref)
	}
	pagesFetchedTotal.WithLabelValues(refMode(ref)).Inc()

	c.logger.Debug().
		Int("page", pageNum).
		Int("start", page.Start).
		Int("size", page.Size).
		Int("total_size", page.TotalSize).
		Msg("Page fetched")

	return page, nil
}
