package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls the shared Redis client (tenant cache and call slots).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration

	PingTimeout time.Duration
}

// Redis sits on the call-setup path; timeouts are tight so an outage
// degrades to cache misses quickly instead of stalling the webhook.
func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = time.Second
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// acquireSlotScript returns {acquired, in_use}. The counter's TTL is
// refreshed on every attempt so a busy tenant's slots never expire mid-call.
var acquireSlotScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
if current > tonumber(ARGV[1]) then
  current = redis.call('DECR', KEYS[1])
  return {0, current}
end
return {1, current}
`)

// releaseSlotScript never lets the counter go negative; a key at zero is removed.
var releaseSlotScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 1 then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// AcquireSlot atomically takes one of limit slots under key. It reports
// whether a slot was taken and how many are in use afterwards.
// The TTL bounds how long slots leak if a process dies holding them.
func AcquireSlot(ctx context.Context, rdb redis.Scripter, key string, limit int, ttl time.Duration) (bool, int64, error) {
	switch {
	case rdb == nil:
		return false, 0, errors.New("redis client is nil")
	case key == "":
		return false, 0, errors.New("key is required")
	case limit <= 0:
		return false, 0, errors.New("limit must be > 0")
	case ttl <= 0:
		return false, 0, errors.New("ttl must be > 0")
	}

	res, err := acquireSlotScript.Run(ctx, rdb, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("acquire slot: unexpected reply %v", res)
	}
	return res[0] == 1, res[1], nil
}

// ReleaseSlot returns a slot taken by AcquireSlot and reports how many remain in use.
func ReleaseSlot(ctx context.Context, rdb redis.Scripter, key string) (int64, error) {
	if rdb == nil {
		return 0, errors.New("redis client is nil")
	}
	if key == "" {
		return 0, errors.New("key is required")
	}
	return releaseSlotScript.Run(ctx, rdb, []string{key}).Int64()
}
