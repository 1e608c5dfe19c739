package index

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 默认索引参数
const (
	DefaultIndexName    = "test-index"
	DefaultNamespace    = "policy-pdf"
	DefaultTextField    = "chunk_text"
	DefaultCategory     = "unknown"
	DefaultCloud        = "aws"
	DefaultRegion       = "us-east-1"
	DefaultEmbedModel   = "llama-text-embed-v2"
	DefaultTopK         = 3
	MaxRecordsPerUpsert = 95 // 托管索引单次upsert的记录数上限
	metadataDocumentID  = "document_id"
	metadataChunkNumber = "chunk_number"
	metadataCategory    = "category"
)

// 索引相关错误
var (
	ErrIndexNotFound  = errors.New("index not found")
	ErrTooManyRecords = errors.New("too many records in a single upsert")
	ErrEmptyQuery     = errors.New("query text cannot be empty")
)

// IndexError 索引服务调用错误
type IndexError struct {
	Op         string // 操作名称
	StatusCode int    // HTTP状态码（如果有）
	Message    string // 错误消息
}

// Error 实现error接口
func (e *IndexError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("index %s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("index %s failed: %s", e.Op, e.Message)
}

// Record 写入索引的一条记录
type Record struct {
	ID          string // 记录ID
	Text        string // 分块文本，由索引服务负责向量化
	Category    string // 分类
	DocumentID  string // 所属文档ID（可选）
	ChunkNumber int    // 分块序号（DocumentID非空时有效）
}

// Hit 检索命中
type Hit struct {
	ID     string         // 记录ID
	Score  float64        // 相关度分数
	Fields map[string]any // 请求返回的字段
}

// IndexSpec 索引创建参数
type IndexSpec struct {
	Name       string // 索引名称
	Cloud      string // 云厂商
	Region     string // 区域
	EmbedModel string // 集成的向量化模型
	TextField  string // 需要向量化的文本字段
}

// Store 向量索引服务接口
// 索引服务负责文本向量化和相似度检索
type Store interface {
	// Name 返回实现名称
	Name() string

	// HasIndex 检查索引是否存在
	HasIndex(ctx context.Context) (bool, error)

	// CreateIndex 创建带集成向量化的索引
	CreateIndex(ctx context.Context, spec IndexSpec) error

	// UpsertRecords 在命名空间下写入一批记录
	UpsertRecords(ctx context.Context, namespace string, records []Record) error

	// Search 语义检索，结果按相关度降序
	Search(ctx context.Context, namespace, query string, topK int, fields []string) ([]Hit, error)

	// DeleteByDocument 删除某个文档的所有记录
	DeleteByDocument(ctx context.Context, namespace, documentID string) error
}

// Config 索引配置
type Config struct {
	Provider     string        // 实现：pinecone 或 chromem
	APIKey       string        // API密钥
	ControlURL   string        // 控制面地址
	Host         string        // 数据面地址，为空时从控制面查询
	IndexName    string        // 索引名称
	TextField    string        // 文本字段
	Cloud        string        // 云厂商
	Region       string        // 区域
	EmbedModel   string        // 向量化模型
	Timeout      time.Duration // 请求超时
	Path         string        // chromem持久化目录，为空时仅内存
	EmbedURL     string        // chromem使用的向量化服务地址
	EmbedAPIKey  string        // chromem向量化服务密钥
	EmbedBackend string        // chromem向量化后端：openai 或 ollama
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Provider:   "pinecone",
		ControlURL: DefaultControlURL,
		IndexName:  DefaultIndexName,
		TextField:  DefaultTextField,
		Cloud:      DefaultCloud,
		Region:     DefaultRegion,
		EmbedModel: DefaultEmbedModel,
		Timeout:    30 * time.Second,
	}
}

// Factory 索引实现的工厂函数
type Factory func(cfg Config) (Store, error)

var storeFactories = make(map[string]Factory)

// RegisterStore 注册索引实现
func RegisterStore(name string, factory Factory) {
	storeFactories[name] = factory
}

// NewStore 根据配置创建索引实现
func NewStore(cfg Config) (Store, error) {
	factory, ok := storeFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported index provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// Spec 根据配置生成索引创建参数
func (c Config) Spec() IndexSpec {
	return IndexSpec{
		Name:       c.IndexName,
		Cloud:      c.Cloud,
		Region:     c.Region,
		EmbedModel: c.EmbedModel,
		TextField:  c.TextField,
	}
}
