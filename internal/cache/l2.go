package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2Cache is a Redis-backed distributed cache tier, ported from
// pkg/history/cache/l2_cache.go's L2Cache (gzip compression dropped: cache
// payloads here are already-serialized JSON query result rows, typically
// small, and the teacher's own comment marks compression as an optional
// knob rather than a correctness requirement).
type L2Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewL2Cache(addr, password string, db, poolSize, minIdle int, ttl time.Duration, logger *slog.Logger) (*L2Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &L2Cache{client: client, ttl: ttl, logger: logger}, nil
}

func (c *L2Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		c.logger.Error("l2 cache get error", "error", err, "key", key)
		return nil, ErrConnectionFailed
	}
	return data, nil
}

func (c *L2Cache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Error("l2 cache set error", "error", err, "key", key)
		return ErrConnectionFailed
	}
	return nil
}

func (c *L2Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		c.logger.Error("l2 cache delete error", "error", err, "key", key)
		return ErrConnectionFailed
	}
	return nil
}

// DeletePattern scans and deletes every key matching a glob pattern,
// ported unchanged in structure from l2_cache.go's DeletePattern.
func (c *L2Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deleted int

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Error("l2 cache scan error", "error", err, "pattern", pattern)
			return ErrConnectionFailed
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Error("l2 cache pattern delete error", "error", err, "pattern", pattern)
				return ErrConnectionFailed
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Info("invalidated cache pattern", "pattern", pattern, "deleted", deleted)
	return nil
}

func (c *L2Cache) Close() error {
	return c.client.Close()
}
