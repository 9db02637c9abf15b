package cache

import "time"

// RedisConfig configures the optional shared L2 tier, ported from
// pkg/history/cache/config.go's Redis connection settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
	MinIdle  int
	TTL      time.Duration
}

func (c RedisConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return errInvalidConfig("redis.addr must be set when redis is enabled")
	}
	if c.TTL <= 0 {
		return errInvalidConfig("redis.ttl must be > 0 when redis is enabled")
	}
	return nil
}
