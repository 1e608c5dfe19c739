package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于testify的大模型客户端模拟
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	args := m.Called(ctx, messages, options)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func (m *MockClient) Name() string {
	return "mock-model"
}
