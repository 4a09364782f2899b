// Package cache implements the response/data cache over Redis with
// tag-indexed smart invalidation. Every operation is best-effort: Redis
// errors are logged and reported as misses so a cache outage never fails a
// request. A nil client disables the store entirely.
package cache

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/worker"
)

// DefaultTTL applies when a TTL string cannot be parsed.
const DefaultTTL = 300 * time.Second

// tagPrefix namespaces the Redis sets that index cache keys by entity tag
// (product:<id>, user:<id>).
const tagPrefix = "cachetag:"

// Fetcher loads a value on a cache miss or ahead of expiry.
type Fetcher func(ctx context.Context) ([]byte, error)

// warmer is the subset of the worker pool the store needs; kept as an
// interface so tests can run warms inline.
type warmer interface {
	Submit(name string, fn worker.Task) bool
}

// Store is the cache service handle shared across the app.
type Store struct {
	rdb      *redis.Client
	log      zerolog.Logger
	pool     warmer
	disabled bool
}

// NewStore builds a Store. A nil client or disabled=true yields a store
// whose operations are all no-ops (every Get is a miss).
func NewStore(rdb *redis.Client, log zerolog.Logger, disabled bool) *Store {
	return &Store{
		rdb:      rdb,
		log:      log.With().Str("component", "cache").Logger(),
		disabled: disabled || rdb == nil,
	}
}

// SetWarmer attaches the background pool used by WarmCache.
func (s *Store) SetWarmer(p warmer) { s.pool = p }

// Enabled reports whether the store can serve hits.
func (s *Store) Enabled() bool { return !s.disabled }

// Get returns the cached value and true on a hit. Errors count as misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if s.disabled {
		return nil, false
	}
	bs, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("cache get failed")
		return nil, false
	}
	return bs, true
}

// Set stores val under key for ttl and indexes it under each tag. Empty
// values — zero-length payloads and empty JSON collections — are never
// cached, so a hit can always be distinguished from "no data".
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration, tags ...string) {
	if s.disabled || emptyValue(val) {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.rdb.SetEx(ctx, key, val, ttl).Err(); err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("cache set failed")
		return
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		set := tagPrefix + tag
		if err := s.rdb.SAdd(ctx, set, key).Err(); err != nil {
			s.log.Warn().Str("tag", tag).Err(err).Msg("cache tag index failed")
			continue
		}
		// Tag sets outlive their members slightly; stale members DEL to
		// nothing on invalidation.
		_ = s.rdb.Expire(ctx, set, 24*time.Hour).Err()
	}
}

// emptyValue reports whether a payload represents an empty collection.
func emptyValue(val []byte) bool {
	t := strings.TrimSpace(string(val))
	return t == "" || t == "[]" || t == "{}" || t == "null"
}

// GenerateKey produces a stable deterministic cache key. The variant parts
// are sorted before hashing so parameter order never changes the key.
func (s *Store) GenerateKey(namespace, scope string, variant ...string) string {
	parts := append([]string(nil), variant...)
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "&")))
	return fmt.Sprintf("%s:%s:%x", namespace, scope, sum[:])
}

// SmartInvalidate removes every key matching any glob pattern and every
// key indexed under any of the tags. Fire-and-forget: errors are logged.
func (s *Store) SmartInvalidate(ctx context.Context, patterns []string, tags []string) {
	if s.disabled {
		return
	}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		s.deleteByPattern(ctx, p)
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		set := tagPrefix + tag
		keys, err := s.rdb.SMembers(ctx, set).Result()
		if err != nil {
			s.log.Warn().Str("tag", tag).Err(err).Msg("cache tag members failed")
			continue
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				s.log.Warn().Str("tag", tag).Err(err).Msg("cache tag delete failed")
			}
		}
		_ = s.rdb.Del(ctx, set).Err()
	}
}

// deleteByPattern walks the keyspace with SCAN and deletes matches in
// batches. KEYS is avoided on purpose.
func (s *Store) deleteByPattern(ctx context.Context, pattern string) {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			s.log.Warn().Str("pattern", pattern).Err(err).Msg("cache scan failed")
			return
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				s.log.Warn().Str("pattern", pattern).Err(err).Msg("cache pattern delete failed")
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// InvalidateProduct clears every namespace a product write can affect:
// product listings, recommendation outputs and the product's own keys.
func (s *Store) InvalidateProduct(ctx context.Context, productID uint64, slug string) {
	patterns := []string{"products:*", "recommendations:*"}
	if slug != "" {
		patterns = append(patterns, "product:"+slug+":*")
	}
	s.SmartInvalidate(ctx, patterns, []string{ProductTag(productID)})
}

// InvalidateViewCaches clears the view-analytics namespaces for a product
// and, when known, the viewer's history keys.
func (s *Store) InvalidateViewCaches(ctx context.Context, productID uint64, userID *uint64) {
	patterns := []string{fmt.Sprintf("views:product:%d:*", productID)}
	tags := []string{ProductTag(productID)}
	if userID != nil {
		patterns = append(patterns, fmt.Sprintf("views:user:%d:*", *userID))
		tags = append(tags, UserTag(*userID))
	}
	s.SmartInvalidate(ctx, patterns, tags)
}

// WarmCache refreshes key ahead of expiry. When the key is missing or has
// less than 20% of ttl left, the fetcher runs on the background pool and
// repopulates. Fire-and-forget; without a pool the warm is skipped.
func (s *Store) WarmCache(key string, ttl time.Duration, fetch Fetcher) {
	if s.disabled || s.pool == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.pool.Submit("cache-warm:"+key, func(ctx context.Context) error {
		remain, err := s.rdb.TTL(ctx, key).Result()
		if err == nil && remain > ttl/5 {
			return nil // still fresh
		}
		val, err := fetch(ctx)
		if err != nil {
			return fmt.Errorf("warm fetch %s: %w", key, err)
		}
		s.Set(ctx, key, val, ttl)
		return nil
	})
}

// ProductTag is the invalidation tag for a product's cache entries.
func ProductTag(id uint64) string { return fmt.Sprintf("product:%d", id) }

// UserTag is the invalidation tag for a user's cache entries.
func UserTag(id uint64) string { return fmt.Sprintf("user:%d", id) }

// ParseTTL accepts either a bare number of seconds ("120") or "N unit"
// with unit in {s, m, h, d} ("2 h"). Unknown forms fall back to DefaultTTL
// and are logged by the caller via the returned ok flag.
func ParseTTL(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTTL, false
	}
	fields := strings.Fields(s)
	var numStr, unit string
	switch len(fields) {
	case 1:
		// allow "30s" as well as "30"
		numStr = fields[0]
		for i, r := range fields[0] {
			if r < '0' || r > '9' {
				numStr, unit = fields[0][:i], fields[0][i:]
				break
			}
		}
	case 2:
		numStr, unit = fields[0], fields[1]
	default:
		return DefaultTTL, false
	}
	var n int64
	for _, r := range numStr {
		if r < '0' || r > '9' {
			return DefaultTTL, false
		}
		n = n*10 + int64(r-'0')
	}
	if numStr == "" {
		return DefaultTTL, false
	}
	switch strings.ToLower(unit) {
	case "", "s":
		return time.Duration(n) * time.Second, true
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	default:
		return DefaultTTL, false
	}
}
