package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fyerfyer/policy-QA-system/internal/document"
)

// fakeFetcher 返回固定文档
type fakeFetcher struct {
	doc *document.Document
	err error

	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*document.Document, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.URL = rawURL
	return &doc, nil
}

func pdfFetcher() *fakeFetcher {
	return &fakeFetcher{doc: &document.Document{
		FileName:    "policy.pdf",
		ContentType: document.PDF,
		Data:        []byte("%PDF-1.4 test"),
	}}
}

// fakeExtractor 返回固定页面
type fakeExtractor struct {
	pages []string
	err   error
}

func (e *fakeExtractor) ExtractPages(_ []byte) ([]string, error) {
	return e.pages, e.err
}

func (e *fakeExtractor) Name() string { return "fake" }

// MockIndex 基于testify的索引模拟
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Namespace() string {
	return "policy-pdf"
}

func (m *MockIndex) UpsertChunks(ctx context.Context, chunks []string, namespace, category string) (int, error) {
	args := m.Called(ctx, chunks, namespace, category)
	return args.Int(0), args.Error(1)
}

func (m *MockIndex) ReplaceDocument(ctx context.Context, namespace, documentID string, chunks []string, category string) (int, error) {
	args := m.Called(ctx, namespace, documentID, chunks, category)
	return args.Int(0), args.Error(1)
}

func (m *MockIndex) Query(ctx context.Context, question string, topK int, namespace string) ([]string, error) {
	args := m.Called(ctx, question, topK, namespace)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockExplainer 基于testify的回答生成模拟
type MockExplainer struct {
	mock.Mock
}

func (m *MockExplainer) Explain(ctx context.Context, question string, clauses []string) (string, error) {
	args := m.Called(ctx, question, clauses)
	return args.String(0), args.Error(1)
}
