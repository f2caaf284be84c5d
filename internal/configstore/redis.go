package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the Redis key holding the routing configuration.
const DefaultRedisKey = "bedrockproxy:config"

// RedisLoader reads configuration from Redis. Suitable for multi-instance
// deployments where an external process maintains the mapping set.
type RedisLoader struct {
	client *redis.Client
	key    string
}

// NewRedisLoader connects to Redis and returns a configuration loader.
func NewRedisLoader(url, key string) (*RedisLoader, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if key == "" {
		key = DefaultRedisKey
	}
	slog.Info("redis config backend connected", "key", key)

	return &RedisLoader{client: client, key: key}, nil
}

// Load implements Loader. A missing key is not an error: the caller falls
// back to defaults.
func (l *RedisLoader) Load(ctx context.Context) (*ModelConfig, error) {
	data, err := l.client.Get(ctx, l.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("failed to get config from redis: %w", err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from redis: %w", err)
	}
	return &cfg, nil
}

// Close closes the Redis connection.
func (l *RedisLoader) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
