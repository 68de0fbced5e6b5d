package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSource treats the query as a key name. A missing key yields empty content.
type RedisSource struct {
	client redis.UniversalClient
}

// NewRedisSource connects and pings the server.
func NewRedisSource(addr, password string, db int) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis source connection failed: %w", err)
	}
	return &RedisSource{client: client}, nil
}

func NewRedisSourceWithClient(client redis.UniversalClient) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Fetch(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return val, nil
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
