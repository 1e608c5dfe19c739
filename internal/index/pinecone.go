package index

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DefaultControlURL Pinecone控制面地址
	DefaultControlURL = "https://api.pinecone.io"
	// DefaultReadyInterval 等待索引就绪的轮询间隔
	DefaultReadyInterval = 2 * time.Second
)

// recordIndex 某个命名空间下的数据面操作，由 *pinecone.IndexConnection 实现
type recordIndex interface {
	UpsertRecords(ctx context.Context, records []*pinecone.IntegratedRecord) error
	SearchRecords(ctx context.Context, in *pinecone.SearchRecordsRequest) (*pinecone.SearchRecordsResponse, error)
	DeleteVectorsByFilter(ctx context.Context, filter *pinecone.MetadataFilter) error
}

var _ recordIndex = (*pinecone.IndexConnection)(nil)

// PineconeStore 基于官方SDK访问带集成向量化的Pinecone索引
type PineconeStore struct {
	client        *pinecone.Client
	indexName     string
	textField     string
	readyInterval time.Duration
	dial          func(host, namespace string) (recordIndex, error)

	mu    sync.Mutex
	host  string                 // 数据面地址，首次使用时解析
	conns map[string]recordIndex // 按命名空间缓存的连接
}

// NewPineconeStore 创建Pinecone索引客户端
func NewPineconeStore(cfg Config) (Store, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}
	def := DefaultConfig()
	if cfg.ControlURL == "" {
		cfg.ControlURL = def.ControlURL
	}
	if cfg.IndexName == "" {
		cfg.IndexName = def.IndexName
	}
	if cfg.TextField == "" {
		cfg.TextField = def.TextField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey:     cfg.APIKey,
		Host:       strings.TrimRight(cfg.ControlURL, "/"),
		RestClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	s := &PineconeStore{
		client:        client,
		indexName:     cfg.IndexName,
		textField:     cfg.TextField,
		readyInterval: DefaultReadyInterval,
		host:          strings.TrimSpace(cfg.Host),
		conns:         make(map[string]recordIndex),
	}
	s.dial = s.connect
	return s, nil
}

// Name 返回实现名称
func (s *PineconeStore) Name() string {
	return "pinecone"
}

// HasIndex 检查索引是否存在，存在时顺便记录数据面地址
func (s *PineconeStore) HasIndex(ctx context.Context) (bool, error) {
	idx, err := s.client.DescribeIndex(ctx, s.indexName)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return false, nil
		}
		return false, wrapError("describe", err)
	}

	s.rememberHost(idx.Host)
	return true, nil
}

// CreateIndex 创建集成向量化的索引，并等待索引就绪
func (s *PineconeStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Name == "" {
		spec.Name = s.indexName
	}
	if spec.TextField == "" {
		spec.TextField = s.textField
	}

	_, err := s.client.CreateIndexForModel(ctx, &pinecone.CreateIndexForModelRequest{
		Name:   spec.Name,
		Cloud:  pinecone.Cloud(spec.Cloud),
		Region: spec.Region,
		Embed: pinecone.CreateIndexForModelEmbed{
			Model:    spec.EmbedModel,
			FieldMap: map[string]interface{}{"text": spec.TextField},
		},
	})
	// 并发创建时索引已存在，同样要等它就绪
	if err != nil && statusCode(err) != http.StatusConflict {
		return wrapError("create", err)
	}

	return s.waitReady(ctx, spec.Name)
}

// waitReady 轮询索引描述直到 status.ready 为真或ctx结束
func (s *PineconeStore) waitReady(ctx context.Context, name string) error {
	ticker := time.NewTicker(s.readyInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("index %s not ready: %w", name, err)
		}

		idx, err := s.client.DescribeIndex(ctx, name)
		switch {
		case err == nil && idx.Status != nil && idx.Status.Ready:
			if name == s.indexName {
				s.rememberHost(idx.Host)
			}
			return nil
		case err != nil && ctx.Err() == nil && statusCode(err) != http.StatusNotFound:
			return wrapError("describe", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("index %s not ready: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// UpsertRecords 写入记录，由索引服务负责向量化
func (s *PineconeStore) UpsertRecords(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) > MaxRecordsPerUpsert {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRecords, len(records), MaxRecordsPerUpsert)
	}

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return err
	}

	batch := make([]*pinecone.IntegratedRecord, 0, len(records))
	for _, r := range records {
		rec := pinecone.IntegratedRecord{
			"_id":            r.ID,
			s.textField:      r.Text,
			metadataCategory: r.Category,
		}
		if r.DocumentID != "" {
			rec[metadataDocumentID] = r.DocumentID
			rec[metadataChunkNumber] = r.ChunkNumber
		}
		batch = append(batch, &rec)
	}

	if err := conn.UpsertRecords(ctx, batch); err != nil {
		return wrapError("upsert", err)
	}
	return nil
}

// Search 语义检索
func (s *PineconeStore) Search(ctx context.Context, namespace, query string, topK int, fields []string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(fields) == 0 {
		fields = []string{s.textField}
	}

	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return nil, err
	}

	inputs := map[string]interface{}{"text": query}
	resp, err := conn.SearchRecords(ctx, &pinecone.SearchRecordsRequest{
		Query: pinecone.SearchRecordsQuery{
			TopK:   int32(topK),
			Inputs: &inputs,
		},
		Fields: &fields,
	})
	if err != nil {
		return nil, wrapError("search", err)
	}

	hits := make([]Hit, 0, len(resp.Result.Hits))
	for _, h := range resp.Result.Hits {
		hits = append(hits, Hit{ID: h.Id, Score: float64(h.Score), Fields: h.Fields})
	}
	return hits, nil
}

// DeleteByDocument 按document_id元数据过滤删除
func (s *PineconeStore) DeleteByDocument(ctx context.Context, namespace, documentID string) error {
	conn, err := s.connection(ctx, namespace)
	if err != nil {
		return err
	}

	filter, err := structpb.NewStruct(map[string]any{
		metadataDocumentID: map[string]any{"$eq": documentID},
	})
	if err != nil {
		return &IndexError{Op: "delete", Message: err.Error()}
	}

	if err := conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return wrapError("delete", err)
	}
	return nil
}

// connection 返回命名空间对应的数据面连接
func (s *PineconeStore) connection(ctx context.Context, namespace string) (recordIndex, error) {
	host, err := s.dataHost(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[namespace]; ok {
		return conn, nil
	}
	conn, err := s.dial(host, namespace)
	if err != nil {
		return nil, wrapError("connect", err)
	}
	s.conns[namespace] = conn
	return conn, nil
}

// connect 通过SDK建立数据面连接
func (s *PineconeStore) connect(host, namespace string) (recordIndex, error) {
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// dataHost 返回数据面地址，必要时查询控制面
func (s *PineconeStore) dataHost(ctx context.Context) (string, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host != "" {
		return host, nil
	}

	exists, err := s.HasIndex(ctx)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrIndexNotFound, s.indexName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.host == "" {
		return "", &IndexError{Op: "describe", Message: "index has no host yet"}
	}
	return s.host, nil
}

func (s *PineconeStore) rememberHost(host string) {
	host = strings.TrimSpace(host)
	if host == "" {
		return
	}
	s.mu.Lock()
	if s.host == "" {
		s.host = host
	}
	s.mu.Unlock()
}

// statusCode 取SDK错误中的HTTP状态码
func statusCode(err error) int {
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) {
		return pcErr.Code
	}
	return 0
}

// wrapError 把SDK错误转换为 IndexError
func wrapError(op string, err error) error {
	return &IndexError{Op: op, StatusCode: statusCode(err), Message: err.Error()}
}

func init() {
	RegisterStore("pinecone", NewPineconeStore)
}
