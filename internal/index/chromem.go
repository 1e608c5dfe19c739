package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore 基于chromem-go的嵌入式索引
// 每个命名空间对应一个集合，适合本地开发和离线测试
type ChromemStore struct {
	db        *chromem.DB
	embed     chromem.EmbeddingFunc
	textField string

	mu sync.Mutex
}

// NewChromemStore 根据配置创建嵌入式索引
func NewChromemStore(cfg Config) (Store, error) {
	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	embed, err := embeddingFuncFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return NewChromemStoreWithEmbedding(db, embed, cfg.TextField), nil
}

// NewChromemStoreWithEmbedding 使用指定的向量化函数创建索引
func NewChromemStoreWithEmbedding(db *chromem.DB, embed chromem.EmbeddingFunc, textField string) *ChromemStore {
	if textField == "" {
		textField = DefaultTextField
	}
	return &ChromemStore{
		db:        db,
		embed:     embed,
		textField: textField,
	}
}

// embeddingFuncFromConfig 选择向量化后端
func embeddingFuncFromConfig(cfg Config) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(cfg.EmbedBackend) {
	case "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.EmbedModel, cfg.EmbedURL), nil
	case "", "openai":
		if cfg.EmbedURL == "" {
			return nil, fmt.Errorf("chromem index requires an embedding endpoint")
		}
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.EmbedURL, cfg.EmbedAPIKey, cfg.EmbedModel, nil), nil
	default:
		return nil, fmt.Errorf("unsupported embedding backend: %s", cfg.EmbedBackend)
	}
}

// Name 返回实现名称
func (s *ChromemStore) Name() string {
	return "chromem"
}

// HasIndex 嵌入式数据库总是可用
func (s *ChromemStore) HasIndex(ctx context.Context) (bool, error) {
	return true, nil
}

// CreateIndex 集合在第一次写入时创建
func (s *ChromemStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	return nil
}

func (s *ChromemStore) collection(namespace string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.db.GetOrCreateCollection(namespace, nil, s.embed)
	if err != nil {
		return nil, &IndexError{Op: "collection", Message: err.Error()}
	}
	return col, nil
}

// UpsertRecords 写入记录，相同ID会被覆盖
func (s *ChromemStore) UpsertRecords(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxRecordsPerUpsert {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRecords, len(records), MaxRecordsPerUpsert)
	}

	col, err := s.collection(namespace)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		meta := map[string]string{metadataCategory: r.Category}
		if r.DocumentID != "" {
			meta[metadataDocumentID] = r.DocumentID
			meta[metadataChunkNumber] = strconv.Itoa(r.ChunkNumber)
		}
		docs = append(docs, chromem.Document{
			ID:       r.ID,
			Metadata: meta,
			Content:  r.Text,
		})
	}

	// 并发度为1，保持单请求内顺序执行
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return &IndexError{Op: "upsert", Message: err.Error()}
	}
	return nil
}

// Search 语义检索
func (s *ChromemStore) Search(ctx context.Context, namespace, query string, topK int, fields []string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(fields) == 0 {
		fields = []string{s.textField}
	}

	col, err := s.collection(namespace)
	if err != nil {
		return nil, err
	}

	// chromem要求 nResults 不超过文档数量
	n := topK
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []Hit{}, nil
	}

	results, err := col.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, &IndexError{Op: "search", Message: err.Error()}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		all := map[string]any{s.textField: r.Content}
		for k, v := range r.Metadata {
			all[k] = v
		}
		selected := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := all[f]; ok {
				selected[f] = v
			}
		}
		hits = append(hits, Hit{ID: r.ID, Score: float64(r.Similarity), Fields: selected})
	}
	return hits, nil
}

// DeleteByDocument 按document_id元数据删除
func (s *ChromemStore) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	col, err := s.collection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, map[string]string{metadataDocumentID: documentID}, nil); err != nil {
		return &IndexError{Op: "delete", Message: err.Error()}
	}
	return nil
}

func init() {
	RegisterStore("chromem", NewChromemStore)
}
