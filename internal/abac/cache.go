package abac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DecisionCache persists prior evaluation outcomes behind a TTL. Get returns
// (nil, nil) when the key is absent or expired; both are equivalent to
// "must evaluate".
type DecisionCache interface {
	Get(ctx context.Context, key string) (*Decision, error)
	Put(ctx context.Context, key string, d Decision, ttl time.Duration) error
}

// CacheKey builds the compound decision key. The tuple is unique per
// evaluation, so overwriting a key is an idempotent upsert.
func CacheKey(principalID int64, resourceType, resourceID, permission string) string {
	return strings.Join([]string{
		"authz", "decision",
		strconv.FormatInt(principalID, 10),
		resourceType, resourceID, permission,
	}, ":")
}

// RedisCache stores decisions as JSON values with a server-side TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get loads a cached decision if the key is still live.
func (c *RedisCache) Get(ctx context.Context, key string) (*Decision, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("abac: cache get: %w", err)
	}
	var d Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("abac: cache decode: %w", err)
	}
	return &d, nil
}

// Put upserts the decision with a forward expiry.
func (c *RedisCache) Put(ctx context.Context, key string, d Decision, ttl time.Duration) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("abac: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("abac: cache put: %w", err)
	}
	return nil
}

var _ DecisionCache = (*RedisCache)(nil)
