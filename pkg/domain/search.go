package domain

import "github.com/Sternrassler/confluence-client/pkg/pagination"

// SearchResult is one page of CQL search hits, or the aggregate of every page
// when all results were requested.
type SearchResult = pagination.Page[SearchResultItem]

// SpacePage is one page of the space listing.
type SpacePage = pagination.Page[Space]
