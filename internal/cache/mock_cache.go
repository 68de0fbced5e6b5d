package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"llm-router/internal/router"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetResponse(ctx context.Context, key string) (*router.Response, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*router.Response), args.Error(1)
}

func (m *MockCache) SetResponse(ctx context.Context, key string, resp *router.Response, ttl time.Duration) error {
	args := m.Called(ctx, key, resp, ttl)
	return args.Error(0)
}

func (m *MockCache) InvalidateRule(ctx context.Context, rule string) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
