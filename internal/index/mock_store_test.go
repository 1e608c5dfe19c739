package index

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore 基于testify的索引模拟
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Name() string {
	return "mock"
}

func (m *MockStore) HasIndex(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	args := m.Called(ctx, spec)
	return args.Error(0)
}

func (m *MockStore) UpsertRecords(ctx context.Context, namespace string, records []Record) error {
	args := m.Called(ctx, namespace, records)
	return args.Error(0)
}

func (m *MockStore) Search(ctx context.Context, namespace, query string, topK int, fields []string) ([]Hit, error) {
	args := m.Called(ctx, namespace, query, topK, fields)
	hits, _ := args.Get(0).([]Hit)
	return hits, args.Error(1)
}

func (m *MockStore) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	args := m.Called(ctx, namespace, documentID)
	return args.Error(0)
}
