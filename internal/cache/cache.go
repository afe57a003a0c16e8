// Package cache holds the Redis cache-aside layer, session revocation and
// the Redis connection shared by rate limits and notifications.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pixelgram/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	UserKeyPrefix    = "user:%d"
	RevokedTokenKey  = "blacklist:%s"
	UserProfileTTL   = 5 * time.Minute
	maxRevocationTTL = 48 * time.Hour
	minRevocationTTL = time.Second

	// fillGuardTTL outlives any fetch, so a guard cannot lapse mid-fill.
	fillGuardTTL = 2 * UserProfileTTL
)

// Each cached key has a guard counter bumped on invalidation. A fill only
// lands if the counter still holds the value read before fetching, so a
// read racing a mutation cannot write back what the mutation replaced.
var setUnlessInvalidated = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func guardKey(key string) string {
	return key + ":gen"
}

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

// Cache is a nil-safe cache-aside layer over Redis. A Cache without a
// client behaves as an always-miss cache.
type Cache struct {
	rdb *redis.Client
}

// New wraps rdb; rdb may be nil.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Client exposes the underlying client (nil when disabled).
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil
}

// GetJSON loads key into dest. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Aside serves key from Redis when present; otherwise fetch fills dest and
// the result is stored best-effort, unless key was invalidated while
// fetch ran. Redis failures degrade to fetch.
func (c *Cache) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := c.GetJSON(ctx, key, dest)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if found {
		return nil
	}

	gen, genErr := c.generation(ctx, key)
	if err := fetch(); err != nil {
		return err
	}
	if genErr != nil {
		return nil
	}

	stored, err := c.fill(ctx, key, gen, dest, ttl)
	switch {
	case err != nil:
		middleware.Logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	case !stored:
		middleware.Logger.DebugContext(ctx, "cache fill skipped after invalidation", slog.String("key", key))
	}
	return nil
}

// generation reads key's guard counter; "0" when it was never invalidated.
func (c *Cache) generation(ctx context.Context, key string) (string, error) {
	if !c.enabled() {
		return "0", nil
	}
	gen, err := c.rdb.Get(ctx, guardKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *Cache) fill(ctx context.Context, key, gen string, v any, ttl time.Duration) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	n, err := setUnlessInvalidated.Run(ctx, c.rdb, []string{key, guardKey(key)}, gen, b, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate removes keys and bumps their guards so in-flight fills are
// discarded. Failures are logged; a stale entry expires with its TTL.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.enabled() || len(keys) == 0 {
		return
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, key := range keys {
			p.Incr(ctx, guardKey(key))
			p.Expire(ctx, guardKey(key), fillGuardTTL)
		}
		p.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// InvalidateUsers drops the cached profiles of the given users.
func (c *Cache) InvalidateUsers(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, UserKey(id))
	}
	c.Invalidate(ctx, keys...)
}

// Revoke blacklists a token id until it would have expired anyway.
func (c *Cache) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if !c.enabled() {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	if ttl > maxRevocationTTL {
		ttl = maxRevocationTTL
	}
	return c.rdb.Set(ctx, fmt.Sprintf(RevokedTokenKey, tokenID), "1", ttl).Err()
}

// IsRevoked reports whether tokenID was revoked by Revoke.
func (c *Cache) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, fmt.Sprintf(RevokedTokenKey, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
