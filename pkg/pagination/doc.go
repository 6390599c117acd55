// Package pagination follows Confluence continuation links across result
// pages.
//
// Confluence collection endpoints (search, space, content children) return a
// page of results together with paging fields and an optional
// "_links.next" reference. A Collector either returns the first page as-is
// or walks every remaining page strictly in sequence and concatenates the
// results.
//
// Example usage:
//
//	fetch := pagination.FetchFunc[domain.SearchResultItem](func(ctx context.Context, ref pagination.Ref) (*domain.SearchResult, error) {
//		// build the request for ref and execute it
//	})
//	collector := pagination.NewCollector[domain.SearchResultItem](fetch, pagination.DefaultConfig(), logger)
//	all, err := collector.FetchAll(ctx, 25)
//
// The next page is chosen as follows:
//   - an explicit "_links.next" reference is used verbatim
//   - otherwise, while totalSize > start+size, a request with
//     start = start+size is synthesized from the original parameters
//   - otherwise the walk ends
//
// Any fetch error aborts the walk and no partial aggregate is returned.
// Pages are never retried here; the request executor owns retries.
//
// Loop guards: Config.MaxPages (0 = unbounded) stops a walk with
// ErrPageLimit, and a continuation that would refetch a page already seen
// stops it with ErrNoProgress.
package pagination
