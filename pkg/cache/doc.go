// Package cache is the Redis-backed response cache for Confluence GET
// requests.
//
// The client only creates a Store when a Redis client and a positive TTL are
// configured. Keys start with the username, so permission-filtered results
// never leak between accounts and Purge can drop one account's entries with a
// single SCAN pattern.
//
//	store := cache.NewStore(redisClient, 5*time.Minute)
//	key := cache.KeyFor(req.URL, "jdoe")
//
//	entry, freshness, err := store.Lookup(ctx, key)
//	switch freshness {
//	case cache.Fresh:
//		return entry.Response(req, "HIT"), nil
//	case cache.Stale:
//		if entry.CanRevalidate() {
//			entry.Condition(req)
//		}
//	}
//
// # Freshness
//
// Cache-Control: no-cache makes an entry stale on arrival; otherwise the
// lifetime comes from max-age, then Expires, then the store's default TTL.
// no-store responses and non-200 statuses are never stored. Stale entries stay
// in Redis for one default TTL so they can be revalidated; a 304 answer goes
// through Store.Revalidated.
//
// # Metrics
//
//   - confluence_cache_lookups_total{result}
//   - confluence_cache_revalidations_total{outcome}
//   - confluence_cache_written_bytes_total
//   - confluence_cache_purged_entries_total
//   - confluence_cache_errors_total{operation}
package cache
