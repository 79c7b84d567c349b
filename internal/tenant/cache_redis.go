package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "tenant:profile:"

// CachedResolver is a Redis read-through cache in front of another Resolver.
// Cache faults never fail a call; they fall through to the backing store.
type CachedResolver struct {
	next Resolver
	rdb  redis.Cmdable
	ttl  time.Duration
	log  *slog.Logger
}

func NewCachedResolver(next Resolver, rdb redis.Cmdable, ttl time.Duration, log *slog.Logger) *CachedResolver {
	if log == nil {
		log = slog.Default()
	}
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl, log: log}
}

func CacheKey(tenantID string) string { return cacheKeyPrefix + tenantID }

func (r *CachedResolver) Resolve(ctx context.Context, tenantID string) (Profile, error) {
	key := CacheKey(tenantID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Profile
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
		r.log.Warn("tenant cache entry corrupt", "tenant_id", tenantID)
	case errors.Is(err, redis.Nil):
	default:
		r.log.Warn("tenant cache read failed", "tenant_id", tenantID, "err", err)
	}

	p, err := r.next.Resolve(ctx, tenantID)
	if err != nil {
		return Profile{}, err
	}

	if buf, jerr := json.Marshal(p); jerr == nil {
		if serr := r.rdb.Set(ctx, key, buf, r.ttl).Err(); serr != nil {
			r.log.Warn("tenant cache write failed", "tenant_id", tenantID, "err", serr)
		}
	}
	return p, nil
}
