package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/roman-kulish/environmental-monitor/internal/sample"
)

const (
	latestKey = "latest"
	recentKey = "recent"

	defaultKeyPrefix  = "envmon:"
	defaultRecentSize = 300
)

// RedisConfig describes the Redis connection and key layout
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"keyPrefix"`
	RecentSize int    `yaml:"recentSize"` // Length of the capped recent list
}

func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.RecentSize < 0 {
		return fmt.Errorf("invalid redis recent list size: %d", c.RecentSize)
	}
	return nil
}

// RedisPublisher keeps the latest sample under <prefix>latest and the most recent
// samples, newest first, in the capped list <prefix>recent.
type RedisPublisher struct {
	client     *redis.Client
	latestKey  string
	recentKey  string
	recentSize int64
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, config *RedisConfig) (*RedisPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	size := config.RecentSize
	if size == 0 {
		size = defaultRecentSize
	}

	return &RedisPublisher{
		client:     client,
		latestKey:  prefix + latestKey,
		recentKey:  prefix + recentKey,
		recentSize: int64(size),
	}, nil
}

func (r *RedisPublisher) Name() string {
	return "redis"
}

func (r *RedisPublisher) Publish(ctx context.Context, s sample.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshalling sample: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.latestKey, data, 0)
	pipe.LPush(ctx, r.recentKey, data)
	pipe.LTrim(ctx, r.recentKey, 0, r.recentSize-1)

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing sample to redis: %w", err)
	}
	return nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
