// Package redis wraps the Redis operations used to share throttle
// state between console replicas.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the shared rate-limit gate.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// blockScript stores the resume timestamp only when it is later than
// the one already recorded, so a shorter server-provided window can
// never cut an existing block short across replicas.
var blockScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local v = tonumber(ARGV[1])
if v > cur then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
end
return 0
`)

// GateBlockUntil records that the backend throttled us until resumeAt.
// Monotonic: an earlier timestamp never shortens an existing block.
func (c *Client) GateBlockUntil(ctx context.Context, key string, resumeAt time.Time) error {
	ttl := time.Until(resumeAt) + time.Minute
	if ttl <= 0 {
		return nil
	}
	err := blockScript.Run(ctx, c.rdb, []string{key},
		resumeAt.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("gate block: %w", err)
	}
	return nil
}

// GateResume returns the recorded resume timestamp, or the zero time
// when no block is recorded.
func (c *Client) GateResume(ctx context.Context, key string) (time.Time, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("gate resume: %w", err)
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("gate resume: bad value %q: %w", val, err)
	}
	return time.UnixMilli(millis), nil
}

// GateClear removes the recorded block.
func (c *Client) GateClear(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("gate clear: %w", err)
	}
	return nil
}
