package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// RedisCache keeps recently read stations in Redis as JSON.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("station: redis client required")
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) key(id string) string {
	return fmt.Sprintf("station:%s", id)
}

// Get returns the cached station, or ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, id string) (*Station, bool, error) {
	data, err := c.redis.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("station: cache get: %w", err)
	}

	var st Station
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("station: cache unmarshal: %w", err)
	}
	return &st, true, nil
}

func (c *RedisCache) Set(ctx context.Context, st *Station) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("station: cache marshal: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(st.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("station: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("station: cache invalidate: %w", err)
	}
	return nil
}

// CachedRepository reads through the cache and invalidates it on writes.
// Cache failures are logged and never fail the call.
type CachedRepository struct {
	repo   Repository
	cache  *RedisCache
	logger *logging.Logger
}

func NewCachedRepository(repo Repository, cache *RedisCache, logger *logging.Logger) *CachedRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{repo: repo, cache: cache, logger: logger}
}

func (r *CachedRepository) Get(ctx context.Context, id string) (*Station, error) {
	if r.cache != nil {
		st, ok, err := r.cache.Get(ctx, id)
		if err != nil {
			r.logger.Warn("station cache read failed", "station_id", id, "error", err)
		} else if ok {
			return st, nil
		}
	}

	st, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, st); err != nil {
			r.logger.Warn("station cache write failed", "station_id", id, "error", err)
		}
	}
	return st, nil
}

func (r *CachedRepository) Put(ctx context.Context, st *Station) error {
	if err := r.repo.Put(ctx, st); err != nil {
		return err
	}
	r.invalidate(ctx, st.ID)
	return nil
}

func (r *CachedRepository) List(ctx context.Context) ([]*Station, error) {
	return r.repo.List(ctx)
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedRepository) invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, id); err != nil {
		r.logger.Warn("station cache invalidate failed", "station_id", id, "error", err)
	}
}
