package index

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// letterEmbedding 基于字母频率的确定性向量，仅用于测试
func letterEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v, nil
}

func newTestChromem() *ChromemStore {
	return NewChromemStoreWithEmbedding(chromem.NewDB(), letterEmbedding, "")
}

func TestChromemStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem()
	assert.Equal(t, "chromem", store.Name())

	exists, err := store.HasIndex(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, store.CreateIndex(ctx, DefaultConfig().Spec()))

	// 空集合检索返回空结果
	hits, err := store.Search(ctx, DefaultNamespace, "grace period", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	records := []Record{
		{ID: "1", Text: "A grace period of thirty days is allowed for premium payment", Category: DefaultCategory},
		{ID: "2", Text: "Maternity expenses are covered after twenty four months", Category: DefaultCategory},
		{ID: "3", Text: "Cataract surgery has a waiting period of two years", Category: DefaultCategory},
	}
	require.NoError(t, store.UpsertRecords(ctx, DefaultNamespace, records))

	// topK大于文档数时按文档数截断
	hits, err = store.Search(ctx, DefaultNamespace, records[1].Text, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "2", hits[0].ID)
	assert.Equal(t, records[1].Text, hits[0].Fields[DefaultTextField])
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)

	// 只返回请求的字段
	assert.NotContains(t, hits[0].Fields, "category")
}

func TestChromemStoreDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem()

	require.NoError(t, store.UpsertRecords(ctx, DefaultNamespace, []Record{
		{ID: "doc-a#chunk0", Text: "alpha policy clause", Category: DefaultCategory, DocumentID: "doc-a", ChunkNumber: 0},
		{ID: "doc-a#chunk1", Text: "alpha exclusions", Category: DefaultCategory, DocumentID: "doc-a", ChunkNumber: 1},
		{ID: "doc-b#chunk0", Text: "beta policy clause", Category: DefaultCategory, DocumentID: "doc-b", ChunkNumber: 0},
	}))

	require.NoError(t, store.DeleteByDocument(ctx, DefaultNamespace, "doc-a"))

	hits, err := store.Search(ctx, DefaultNamespace, "policy clause", 3, []string{DefaultTextField, "document_id"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b#chunk0", hits[0].ID)
	assert.Equal(t, "doc-b", hits[0].Fields["document_id"])
}

func TestChromemStoreNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestChromem()

	require.NoError(t, store.UpsertRecords(ctx, "first", []Record{{ID: "1", Text: "one", Category: DefaultCategory}}))
	require.NoError(t, store.UpsertRecords(ctx, "second", []Record{{ID: "2", Text: "two", Category: DefaultCategory}}))

	hits, err := store.Search(ctx, "first", "one", 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
}

func TestChromemWithRetriever(t *testing.T) {
	ctx := context.Background()
	retriever := NewRetriever(newTestChromem())
	require.NoError(t, retriever.EnsureIndex(ctx))

	chunks := []string{
		"The policy covers hospitalisation expenses",
		"No claim discount of five percent is offered",
	}
	n, err := retriever.ReplaceDocument(ctx, "", "doc", chunks, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// 重复替换不会产生重复记录
	_, err = retriever.ReplaceDocument(ctx, "", "doc", chunks, "")
	require.NoError(t, err)

	texts, err := retriever.Query(ctx, chunks[1], 5, "")
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, chunks[1], texts[0])
}

func TestChromemConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "chromem"
	_, err := NewStore(cfg)
	assert.Error(t, err, "openai-compatible backend needs an endpoint")

	cfg.EmbedBackend = "unknown"
	_, err = NewStore(cfg)
	assert.Error(t, err)

	cfg.EmbedBackend = "ollama"
	store, err := NewStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, "chromem", store.Name())
}
