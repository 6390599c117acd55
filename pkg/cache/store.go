package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidEntry indicates a stored value that does not decode as an Entry.
var ErrInvalidEntry = errors.New("invalid cache entry")

// DefaultTTL is the fallback lifetime when neither the response nor the
// caller supplies one.
const DefaultTTL = 5 * time.Minute

// purgeBatch is the SCAN COUNT hint used by Purge.
const purgeBatch = 200

// Freshness classifies a lookup.
type Freshness int

const (
	// Miss means nothing is stored under the key.
	Miss Freshness = iota
	// Stale means the entry must be revalidated before use.
	Stale
	// Fresh means the entry may be served as is.
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Store is the Redis-backed response cache. Redis keeps each entry for its
// freshness lifetime plus one default TTL, the window in which a stale entry
// can still be revalidated with a conditional request.
type Store struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewStore creates a store. A non-positive defaultTTL falls back to
// DefaultTTL.
func NewStore(redisClient *redis.Client, defaultTTL time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Store{redis: redisClient, defaultTTL: defaultTTL}
}

// DefaultTTL returns the lifetime used for responses without freshness headers.
func (s *Store) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Lookup fetches the entry for key in one round trip. A Miss carries a nil
// entry and a nil error.
func (s *Store) Lookup(ctx context.Context, key Key) (*Entry, Freshness, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		lookups.WithLabelValues(Miss.String()).Inc()
		return nil, Miss, nil
	}
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, Miss, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, Miss, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	freshness := Stale
	if entry.Fresh() {
		freshness = Fresh
	}
	lookups.WithLabelValues(freshness.String()).Inc()
	return &entry, freshness, nil
}

// Put stores entry under key. A stale entry without validators is useless
// and is skipped.
func (s *Store) Put(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if !entry.Fresh() && !entry.CanRevalidate() {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, entry.TTL()+s.defaultTTL).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	writtenBytes.Add(float64(len(data)))
	return nil
}

// Revalidated records a 304 answer for entry: its freshness is renewed from
// header and it is stored again. It returns the new expiry.
func (s *Store) Revalidated(ctx context.Context, key Key, entry *Entry, header http.Header) (time.Time, error) {
	revalidations.WithLabelValues("not_modified").Inc()
	expires := entry.Refresh(header, s.defaultTTL)
	return expires, s.Put(ctx, key, entry)
}

// Delete removes the entry for key.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every entry stored for username and returns how many were
// deleted. Used after a permission change or credential rotation.
func (s *Store) Purge(ctx context.Context, username string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, UserPattern(username), purgeBatch).Result()
		if err != nil {
			cacheErrors.WithLabelValues("purge").Inc()
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				cacheErrors.WithLabelValues("purge").Inc()
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	purged.Add(float64(deleted))
	return deleted, nil
}
