package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/leafscan/internal/logging"
	"github.com/example/leafscan/internal/retry"
)

// Scans are cached briefly for the JSON API; disease details are shared by
// every scan of the same class.
const (
	scanTTL    = 10 * time.Minute
	detailsTTL = 24 * time.Hour
)

func scanKey(scanID string) string   { return "scan:" + scanID }
func detailsKey(class string) string { return "details:" + class }

// Cache is the slice of Redis the scan flow needs. Get reports a miss as
// redis.Nil.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// jsonCache keeps JSON documents in a Cache and retries transient Redis
// errors. The database stays authoritative, so nothing here fails a request.
type jsonCache struct {
	cache  Cache
	policy retry.Policy
	logger *zap.Logger
}

// load decodes key into dst and reports whether it did. A miss is silent;
// unreachable Redis and undecodable entries are logged.
func (j jsonCache) load(ctx context.Context, operation, scanID, key string, dst interface{}) bool {
	var (
		raw  string
		miss bool
	)
	err := j.policy.Do(ctx, j.logger, operation, scanID, func() error {
		v, err := j.cache.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err != nil {
		logging.WithOperation(j.logger, operation, scanID).Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if miss {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logging.WithOperation(j.logger, operation, scanID).Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// save stores v under key for ttl.
func (j jsonCache) save(ctx context.Context, operation, scanID, key string, v interface{}, ttl time.Duration) {
	serialized, err := json.Marshal(v)
	if err != nil {
		logging.WithOperation(j.logger, operation, scanID).Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := j.policy.Do(ctx, j.logger, operation, scanID, func() error {
		return j.cache.Set(ctx, key, string(serialized), ttl)
	}); err != nil {
		logging.WithOperation(j.logger, operation, scanID).Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
