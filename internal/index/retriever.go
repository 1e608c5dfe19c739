package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Retriever 面向问答流程的索引适配层
// 负责记录构造、分批写入和检索结果的文本提取
type Retriever struct {
	store     Store
	spec      IndexSpec
	namespace string
	textField string
	batchSize int
	logger    *logrus.Logger
}

// RetrieverOption 适配层选项
type RetrieverOption func(*Retriever)

// WithNamespace 设置默认命名空间
func WithNamespace(ns string) RetrieverOption {
	return func(r *Retriever) {
		if ns != "" {
			r.namespace = ns
		}
	}
}

// WithIndexSpec 设置索引创建参数
func WithIndexSpec(spec IndexSpec) RetrieverOption {
	return func(r *Retriever) {
		r.spec = spec
		if spec.TextField != "" {
			r.textField = spec.TextField
		}
	}
}

// WithBatchSize 设置单次upsert的记录数，不能超过服务上限
func WithBatchSize(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 && n <= MaxRecordsPerUpsert {
			r.batchSize = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) RetrieverOption {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever 创建索引适配层
func NewRetriever(store Store, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:     store,
		spec:      DefaultConfig().Spec(),
		namespace: DefaultNamespace,
		textField: DefaultTextField,
		batchSize: MaxRecordsPerUpsert,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namespace 返回默认命名空间
func (r *Retriever) Namespace() string {
	return r.namespace
}

// EnsureIndex 索引不存在时创建
func (r *Retriever) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.HasIndex(ctx)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	if exists {
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"index":       r.spec.Name,
		"embed_model": r.spec.EmbedModel,
	}).Info("Creating index")

	if err := r.store.CreateIndex(ctx, r.spec); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// UpsertChunks 为每个分块生成新的UUID并分批写入
// 同一文档重复写入会产生重复记录
func (r *Retriever) UpsertChunks(ctx context.Context, chunks []string, namespace, category string) (int, error) {
	namespace = r.resolveNamespace(namespace)
	if category == "" {
		category = DefaultCategory
	}

	records := make([]Record, 0, len(chunks))
	for _, chunk := range chunks {
		records = append(records, Record{
			ID:       uuid.New().String(),
			Text:     chunk,
			Category: category,
		})
	}

	if err := r.upsertBatches(ctx, namespace, records); err != nil {
		return 0, err
	}

	r.logger.WithFields(logrus.Fields{
		"records":   len(records),
		"namespace": namespace,
		"index":     r.spec.Name,
	}).Info("Upserted records")
	return len(records), nil
}

// ReplaceDocument 删除文档旧的分块后写入新分块
// 记录ID为 documentID#chunkN，可重复执行
func (r *Retriever) ReplaceDocument(ctx context.Context, namespace, documentID string, chunks []string, category string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("document id cannot be empty")
	}
	namespace = r.resolveNamespace(namespace)
	if category == "" {
		category = DefaultCategory
	}

	if err := r.store.DeleteByDocument(ctx, namespace, documentID); err != nil {
		return 0, fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	records := make([]Record, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, Record{
			ID:          fmt.Sprintf("%s#chunk%d", documentID, i),
			Text:        chunk,
			Category:    category,
			DocumentID:  documentID,
			ChunkNumber: i,
		})
	}

	if err := r.upsertBatches(ctx, namespace, records); err != nil {
		return 0, err
	}

	r.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"records":     len(records),
		"namespace":   namespace,
	}).Info("Replaced document chunks")
	return len(records), nil
}

// Query 检索与问题最相关的分块文本，按相关度降序
// 没有文本字段的命中会被跳过
func (r *Retriever) Query(ctx context.Context, question string, topK int, namespace string) ([]string, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	namespace = r.resolveNamespace(namespace)

	hits, err := r.store.Search(ctx, namespace, question, topK, []string{r.textField})
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	texts := make([]string, 0, len(hits))
	for _, hit := range hits {
		text, ok := hit.Fields[r.textField].(string)
		if !ok {
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// upsertBatches 按批次顺序写入
func (r *Retriever) upsertBatches(ctx context.Context, namespace string, records []Record) error {
	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := r.store.UpsertRecords(ctx, namespace, records[start:end]); err != nil {
			return fmt.Errorf("failed to upsert records %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (r *Retriever) resolveNamespace(ns string) string {
	if strings.TrimSpace(ns) == "" {
		return r.namespace
	}
	return ns
}
