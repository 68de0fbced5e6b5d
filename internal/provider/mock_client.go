package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"llm-router/internal/rules"
)

// MockClient is a mock implementation of Client using testify/mock.
type MockClient struct {
	mock.Mock
	Name rules.Provider
}

func (m *MockClient) Provider() rules.Provider {
	return m.Name
}

func (m *MockClient) Invoke(ctx context.Context, cfg rules.ModelConfig, prompt string) (Response, error) {
	args := m.Called(ctx, cfg, prompt)
	return args.Get(0).(Response), args.Error(1)
}
