package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyerfyer/policy-QA-system/internal/cache"
	"github.com/fyerfyer/policy-QA-system/internal/document"
	"github.com/fyerfyer/policy-QA-system/internal/index"
	"github.com/fyerfyer/policy-QA-system/internal/llm"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/fyerfyer/policy-QA-system/internal/repository"
	"github.com/fyerfyer/policy-QA-system/pkg/storage"
	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

const tracerName = "github.com/fyerfyer/policy-QA-system/internal/services"

// FallbackProcessingError 单个问题检索或处理失败时的回答
const FallbackProcessingError = "Sorry, I couldn't find an answer to this question due to processing error."

// DefaultMaxQuestions 单次请求允许的最大问题数
const DefaultMaxQuestions = 50

// IndexMode 分块写入索引的方式
type IndexMode string

const (
	// IndexModeAppend 每次请求都用新ID写入
	IndexModeAppend IndexMode = "append"
	// IndexModeReplace 按文档ID删除旧分块后写入
	IndexModeReplace IndexMode = "replace"
	// IndexModeSkip 缓存中标记过的文档不再写入
	IndexModeSkip IndexMode = "skip"
)

// ParseIndexMode 解析索引写入方式，空字符串为append
func ParseIndexMode(s string) (IndexMode, error) {
	switch IndexMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", IndexModeAppend:
		return IndexModeAppend, nil
	case IndexModeReplace:
		return IndexModeReplace, nil
	case IndexModeSkip:
		return IndexModeSkip, nil
	default:
		return "", fmt.Errorf("unsupported index mode: %s", s)
	}
}

// ChunkIndex 问答流程需要的索引操作，由 index.Retriever 实现
type ChunkIndex interface {
	Namespace() string
	UpsertChunks(ctx context.Context, chunks []string, namespace, category string) (int, error)
	ReplaceDocument(ctx context.Context, namespace, documentID string, chunks []string, category string) (int, error)
	Query(ctx context.Context, question string, topK int, namespace string) ([]string, error)
}

// Explainer 根据条款生成回答，由 llm.Reasoner 实现
type Explainer interface {
	Explain(ctx context.Context, question string, clauses []string) (string, error)
}

var (
	_ ChunkIndex = (*index.Retriever)(nil)
	_ Explainer  = (*llm.Reasoner)(nil)
)

// RunRequest 一次问答请求
type RunRequest struct {
	RunID       string   // 已存在的运行记录ID，为空时新建
	DocumentURL string   // 文档地址
	Questions   []string // 问题列表
}

// RunResult 问答结果
type RunResult struct {
	RunID      string        // 运行ID
	DocumentID string        // 文档ID
	Answers    []string      // 与问题一一对应的回答
	Pages      int           // 有文本的页数
	Chunks     int           // 分块数量
	Batches    int           // 问题批次数
	Failed     int           // 使用兜底答案的问题数
	Duration   time.Duration // 总耗时
}

// RunService 文档问答流程
// 下载文档、提取文本、分块写入索引，再逐个问题检索并生成回答
type RunService struct {
	fetcher   document.Fetcher
	extractor document.Extractor
	index     ChunkIndex
	reasoner  Explainer

	archive  storage.Storage          // 文档归档（可选）
	repo     repository.RunRepository // 运行记录（可选）
	cache    cache.Cache              // 已索引文档标记（可选）
	queue    taskqueue.Queue          // 异步任务队列（可选）
	tracer   trace.Tracer
	logger   *logrus.Logger
	mode     IndexMode
	indexTTL time.Duration

	maxChunkLength int
	maxQuestions   int
	topK           int
	category       string
	batchConfig    llm.BatchConfig
}

// RunOption 问答流程配置选项
type RunOption func(*RunService)

// NewRunService 创建问答流程
func NewRunService(
	fetcher document.Fetcher,
	extractor document.Extractor,
	idx ChunkIndex,
	reasoner Explainer,
	opts ...RunOption,
) *RunService {
	s := &RunService{
		fetcher:        fetcher,
		extractor:      extractor,
		index:          idx,
		reasoner:       reasoner,
		tracer:         otel.Tracer(tracerName),
		logger:         logrus.StandardLogger(),
		mode:           IndexModeAppend,
		indexTTL:       24 * time.Hour,
		maxChunkLength: document.DefaultMaxChunkLength,
		maxQuestions:   DefaultMaxQuestions,
		topK:           index.DefaultTopK,
		category:       index.DefaultCategory,
		batchConfig:    llm.DefaultBatchConfig(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) RunOption {
	return func(s *RunService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider 使用指定的TracerProvider
func WithTracerProvider(tp trace.TracerProvider) RunOption {
	return func(s *RunService) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithIndexMode 设置索引写入方式
func WithIndexMode(mode IndexMode) RunOption {
	return func(s *RunService) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithCache 设置已索引文档的缓存和过期时间
func WithCache(c cache.Cache, ttl time.Duration) RunOption {
	return func(s *RunService) {
		s.cache = c
		if ttl > 0 {
			s.indexTTL = ttl
		}
	}
}

// WithArchive 设置文档归档存储
func WithArchive(archive storage.Storage) RunOption {
	return func(s *RunService) {
		s.archive = archive
	}
}

// WithRunRepository 设置运行记录仓储
func WithRunRepository(repo repository.RunRepository) RunOption {
	return func(s *RunService) {
		s.repo = repo
	}
}

// WithTaskQueue 设置异步任务队列
func WithTaskQueue(queue taskqueue.Queue) RunOption {
	return func(s *RunService) {
		s.queue = queue
	}
}

// WithMaxChunkLength 设置分块最大长度
func WithMaxChunkLength(n int) RunOption {
	return func(s *RunService) {
		if n > 0 {
			s.maxChunkLength = n
		}
	}
}

// WithMaxQuestions 设置单次请求最大问题数
func WithMaxQuestions(n int) RunOption {
	return func(s *RunService) {
		if n > 0 {
			s.maxQuestions = n
		}
	}
}

// WithTopK 设置每个问题检索的条款数
func WithTopK(k int) RunOption {
	return func(s *RunService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithCategory 设置写入记录的分类
func WithCategory(category string) RunOption {
	return func(s *RunService) {
		if category != "" {
			s.category = category
		}
	}
}

// WithBatchConfig 设置问题分批参数
func WithBatchConfig(cfg llm.BatchConfig) RunOption {
	return func(s *RunService) {
		s.batchConfig = cfg
	}
}

// MaxQuestions 返回单次请求最大问题数
func (s *RunService) MaxQuestions() int {
	return s.maxQuestions
}

// DocumentID 文档地址的SHA-256
func DocumentID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Validate 在任何I/O之前校验请求
func (s *RunService) Validate(req RunRequest) error {
	if strings.TrimSpace(req.DocumentURL) == "" {
		return ErrEmptyDocumentURL
	}
	if len(req.Questions) == 0 {
		return ErrNoQuestions
	}
	if len(req.Questions) > s.maxQuestions {
		return fmt.Errorf("%w: %d > %d", ErrTooManyQuestions, len(req.Questions), s.maxQuestions)
	}
	return nil
}

// Run 执行完整的问答流程
// 单个问题的失败不会中断流程，对应位置填入兜底回答
func (s *RunService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &RunResult{
		RunID:      req.RunID,
		DocumentID: DocumentID(req.DocumentURL),
	}
	if result.RunID == "" {
		result.RunID = uuid.New().String()
	}

	ctx, span := s.tracer.Start(ctx, "hackrx.run", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.String("document.id", result.DocumentID),
		attribute.Int("questions", len(req.Questions)),
		attribute.String("index.mode", string(s.mode)),
	))
	defer span.End()

	log := s.logger.WithFields(logrus.Fields{
		"run_id":      result.RunID,
		"document_id": result.DocumentID,
	})
	log.WithField("questions", len(req.Questions)).Info("Processing document Q&A request")

	run := s.startRecord(req, result)

	err := s.execute(ctx, req, result, log)
	result.Duration = time.Since(start)
	s.finishRecord(run, result, err, log)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("Document Q&A request failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("chunks", result.Chunks),
		attribute.Int("batches", result.Batches),
		attribute.Int("failed", result.Failed),
	)
	log.WithFields(logrus.Fields{
		"chunks":   result.Chunks,
		"batches":  result.Batches,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	}).Info("Document Q&A request completed")
	return result, nil
}

// execute 按顺序执行各阶段
func (s *RunService) execute(ctx context.Context, req RunRequest, result *RunResult, log *logrus.Entry) error {
	pages, err := s.loadDocument(ctx, req.DocumentURL, result.DocumentID, log)
	if err != nil {
		return err
	}
	result.Pages = len(pages)

	chunks := document.ChunkPages(pages, s.maxChunkLength)
	if len(chunks) == 0 {
		return ErrNoChunks
	}
	result.Chunks = len(chunks)
	log.WithFields(logrus.Fields{
		"pages":  len(pages),
		"chunks": len(chunks),
	}).Info("Document split into chunks")

	if err := s.indexChunks(ctx, result.DocumentID, chunks, log); err != nil {
		return err
	}

	// 用第一个问题的检索结果估算上下文规模
	primed, err := s.retrieve(ctx, req.Questions[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	batches := llm.BatchQuestions(req.Questions, primed, s.batchConfig)
	result.Batches = len(batches)

	result.Answers = make([]string, 0, len(req.Questions))
	for b, batch := range batches {
		log.WithFields(logrus.Fields{
			"batch": b + 1,
			"total": len(batches),
			"size":  len(batch),
		}).Info("Processing question batch")

		for _, question := range batch {
			answer, ok := s.answer(ctx, len(result.Answers), question, log)
			if !ok {
				result.Failed++
			}
			result.Answers = append(result.Answers, answer)
		}
	}
	return nil
}

// loadDocument 下载并提取每页文本
func (s *RunService) loadDocument(ctx context.Context, url, documentID string, log *logrus.Entry) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "document.load")
	defer span.End()

	doc, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, err)
	}
	span.SetAttributes(
		attribute.Int("document.bytes", len(doc.Data)),
		attribute.String("document.type", string(doc.ContentType)),
	)

	s.archiveDocument(doc, documentID, log)

	if doc.ContentType != document.PDF {
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, document.ErrUnsupportedType)
	}

	pages, err := s.extractor.ExtractPages(doc.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract failed")
		return nil, fmt.Errorf("%w: %v", ErrDocumentUnavailable, err)
	}
	if len(pages) == 0 {
		return nil, ErrNoText
	}

	span.SetAttributes(attribute.Int("document.pages", len(pages)))
	log.WithFields(logrus.Fields{
		"bytes":     len(doc.Data),
		"pages":     len(pages),
		"extractor": s.extractor.Name(),
	}).Debug("Extracted document text")
	return pages, nil
}

// archiveDocument 归档失败只记录日志
func (s *RunService) archiveDocument(doc *document.Document, documentID string, log *logrus.Entry) {
	if s.archive == nil {
		return
	}
	if _, err := s.archive.Save(bytes.NewReader(doc.Data), documentID, doc.FileName); err != nil {
		log.WithError(err).Warn("Failed to archive document")
	}
}

// indexChunks 按配置的方式写入索引
func (s *RunService) indexChunks(ctx context.Context, documentID string, chunks []string, log *logrus.Entry) error {
	ctx, span := s.tracer.Start(ctx, "index.write", trace.WithAttributes(
		attribute.String("index.mode", string(s.mode)),
		attribute.Int("chunks", len(chunks)),
	))
	defer span.End()

	var (
		written int
		err     error
	)
	switch s.mode {
	case IndexModeReplace:
		written, err = s.index.ReplaceDocument(ctx, "", documentID, chunks, s.category)
	case IndexModeSkip:
		if s.isIndexed(ctx, documentID, log) {
			span.SetAttributes(attribute.Bool("index.skipped", true))
			log.Info("Document already indexed, skipping upsert")
			return nil
		}
		written, err = s.index.UpsertChunks(ctx, chunks, "", s.category)
		if err == nil {
			s.markIndexed(ctx, documentID, log)
		}
	default:
		written, err = s.index.UpsertChunks(ctx, chunks, "", s.category)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "index write failed")
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	log.WithField("records", written).Info("Indexed document chunks")
	return nil
}

func (s *RunService) isIndexed(ctx context.Context, documentID string, log *logrus.Entry) bool {
	if s.cache == nil {
		return false
	}
	_, found, err := s.cache.Get(ctx, cache.IndexedDocumentKey(s.index.Namespace(), documentID))
	if err != nil {
		log.WithError(err).Warn("Failed to read index marker")
		return false
	}
	return found
}

func (s *RunService) markIndexed(ctx context.Context, documentID string, log *logrus.Entry) {
	if s.cache == nil {
		return
	}
	key := cache.IndexedDocumentKey(s.index.Namespace(), documentID)
	if err := s.cache.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.indexTTL); err != nil {
		log.WithError(err).Warn("Failed to write index marker")
	}
}

// retrieve 检索与问题相关的条款
func (s *RunService) retrieve(ctx context.Context, question string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "index.query")
	defer span.End()

	clauses, err := s.index.Query(ctx, question, s.topK, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("clauses", len(clauses)))
	return clauses, nil
}

// answer 回答单个问题，失败时返回兜底回答和false
func (s *RunService) answer(ctx context.Context, idx int, question string, log *logrus.Entry) (answer string, ok bool) {
	ctx, span := s.tracer.Start(ctx, "question.answer", trace.WithAttributes(
		attribute.Int("question.index", idx),
	))
	defer span.End()

	qlog := log.WithField("question_index", idx)
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			qlog.WithField("panic", r).Error("Recovered from panic while answering question")
			answer, ok = FallbackProcessingError, false
		}
	}()

	clauses, err := s.retrieve(ctx, question)
	if err != nil {
		span.SetStatus(codes.Error, "retrieval failed")
		qlog.WithError(err).Error("Failed to retrieve clauses for question")
		return FallbackProcessingError, false
	}

	explanation, err := s.reasoner.Explain(ctx, question, clauses)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		qlog.WithError(err).Error("Failed to generate answer")
		return llm.FallbackAnswer(err), false
	}
	return explanation, true
}

// startRecord 创建或更新运行记录，失败不影响主流程
func (s *RunService) startRecord(req RunRequest, result *RunResult) *models.Run {
	if s.repo == nil {
		return nil
	}
	log := s.logger.WithField("run_id", result.RunID)

	if req.RunID != "" {
		if err := s.repo.MarkRunning(req.RunID, result.DocumentID); err != nil {
			log.WithError(err).Warn("Failed to mark run as running")
			return nil
		}
		return &models.Run{ID: req.RunID}
	}

	run := &models.Run{
		ID:          result.RunID,
		DocumentURL: req.DocumentURL,
		DocumentID:  result.DocumentID,
		Status:      models.RunStatusRunning,
	}
	if err := run.SetQuestions(req.Questions); err != nil {
		log.WithError(err).Warn("Failed to encode questions")
		return nil
	}
	if err := s.repo.Create(run); err != nil {
		log.WithError(err).Warn("Failed to create run record")
		return nil
	}
	return run
}

// finishRecord 写入运行结果
func (s *RunService) finishRecord(run *models.Run, result *RunResult, runErr error, log *logrus.Entry) {
	if s.repo == nil || run == nil {
		return
	}

	run.Pages = result.Pages
	run.Chunks = result.Chunks
	run.Batches = result.Batches
	run.Failed = result.Failed
	run.DurationMs = result.Duration.Milliseconds()

	if runErr != nil {
		run.Finish(models.RunStatusFailed, runErr.Error())
	} else {
		if err := run.SetAnswers(result.Answers); err != nil {
			log.WithError(err).Warn("Failed to encode answers")
		}
		run.Finish(models.RunStatusCompleted, "")
	}

	if err := s.repo.SaveResult(run); err != nil {
		log.WithError(err).Warn("Failed to update run record")
	}
}
