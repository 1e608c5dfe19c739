package api

import (
	"context"
	"time"

	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/fyerfyer/policy-QA-system/internal/services"
	"github.com/stretchr/testify/mock"
)

// MockRunService 基于testify的问答服务模拟
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Run(ctx context.Context, req services.RunRequest) (*services.RunResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*services.RunResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunService) Submit(ctx context.Context, documentURL string, questions []string) (*models.Run, error) {
	args := m.Called(ctx, documentURL, questions)
	if v := args.Get(0); v != nil {
		return v.(*models.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunService) GetRun(id string) (*models.Run, error) {
	args := m.Called(id)
	if v := args.Get(0); v != nil {
		return v.(*models.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunService) WaitRun(ctx context.Context, id string, timeout time.Duration) (*models.Run, error) {
	args := m.Called(ctx, id, timeout)
	if v := args.Get(0); v != nil {
		return v.(*models.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunService) ListRuns(page, pageSize int, status models.RunStatus) ([]*models.Run, int64, error) {
	args := m.Called(page, pageSize, status)
	if v := args.Get(0); v != nil {
		return v.([]*models.Run), args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *MockRunService) MaxQuestions() int {
	return services.DefaultMaxQuestions
}
