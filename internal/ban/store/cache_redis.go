package store

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "passage/pkg/domain"
)

var denyCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "passage_ban_deny_cache_lookups_total",
	Help: "Ban deny-cache lookups by result",
}, []string{"result"})

const denyKeyPrefix = "ban:deny:"

// DefaultDenyTTL bounds how long a permanent ban's cache mark lives; the
// authoritative store is re-consulted after that.
const DefaultDenyTTL = 5 * time.Minute

// RedisDenyCache caches positive building-wide ban matches so hot gates skip
// the database on repeat offenders. Only system-scope denials are cached
// (personal bans are host-scoped and always hit the store), and only
// denials: a miss falls through to the store, so a ban created a moment ago
// is enforced immediately.
type RedisDenyCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDenyCache constructs the cache. ttl defaults to DefaultDenyTTL.
func NewRedisDenyCache(client *redis.Client, ttl time.Duration) *RedisDenyCache {
	if ttl <= 0 {
		ttl = DefaultDenyTTL
	}
	return &RedisDenyCache{client: client, ttl: ttl}
}

func denyKey(buildingID id.BuildingID, phone string) string {
	return denyKeyPrefix + buildingID.String() + ":" + phone
}

// IsDenied reports a cached positive match. Errors are returned so the
// caller can fall back to the store; the cache is never authoritative.
func (c *RedisDenyCache) IsDenied(ctx context.Context, buildingID id.BuildingID, phone string) (bool, error) {
	_, err := c.client.Get(ctx, denyKey(buildingID, phone)).Result()
	if errors.Is(err, redis.Nil) {
		denyCacheHits.WithLabelValues("miss").Inc()
		return false, nil
	}
	if err != nil {
		denyCacheHits.WithLabelValues("error").Inc()
		return false, err
	}
	denyCacheHits.WithLabelValues("hit").Inc()
	return true, nil
}

// MarkDenied records a positive match. A ban with a known expiry never
// outlives it in the cache.
func (c *RedisDenyCache) MarkDenied(ctx context.Context, buildingID id.BuildingID, phone string, banExpiry *time.Time, now time.Time) error {
	ttl := c.ttl
	if banExpiry != nil {
		if remaining := banExpiry.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, denyKey(buildingID, phone), "1", ttl).Err()
}

// Invalidate drops the mark after a ban is lifted.
func (c *RedisDenyCache) Invalidate(ctx context.Context, buildingID id.BuildingID, phone string) error {
	return c.client.Del(ctx, denyKey(buildingID, phone)).Err()
}
