package cache

import (
	"context"
	"time"

	"llm-router/internal/router"
)

// NoOpCache is used when no cache is configured or Redis is unavailable.
// Every lookup is a miss.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetResponse(ctx context.Context, key string) (*router.Response, error) {
	return nil, nil
}

func (c *NoOpCache) SetResponse(ctx context.Context, key string, resp *router.Response, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) InvalidateRule(ctx context.Context, rule string) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
