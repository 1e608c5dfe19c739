package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	qaconfig "github.com/fyerfyer/policy-QA-system/config"
	"github.com/fyerfyer/policy-QA-system/internal/cache"
	"github.com/fyerfyer/policy-QA-system/internal/database"
	"github.com/fyerfyer/policy-QA-system/internal/document"
	"github.com/fyerfyer/policy-QA-system/internal/index"
	"github.com/fyerfyer/policy-QA-system/internal/llm"
	"github.com/fyerfyer/policy-QA-system/internal/repository"
	"github.com/fyerfyer/policy-QA-system/internal/services"
	"github.com/fyerfyer/policy-QA-system/pkg/storage"
	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

// application 组装好的服务及其资源
type application struct {
	service *services.RunService
	queue   taskqueue.Queue
	closers []func() error
}

// Close 按创建的相反顺序释放资源
func (a *application) Close(logger *logrus.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.WithError(err).Warn("Failed to release resource")
		}
	}
}

// buildApplication 根据配置创建问答服务
func buildApplication(cfg *qaconfig.Config, logger *logrus.Logger) (*application, error) {
	app := &application{}
	ok := false
	defer func() {
		if !ok {
			app.Close(logger)
		}
	}()

	fetcher := document.NewHTTPFetcher(document.FetcherConfig{
		Timeout:  cfg.Document.FetchTimeout,
		MaxBytes: cfg.Document.MaxBytes,
	})
	extractor, err := document.NewExtractor(cfg.Document.Extractor)
	if err != nil {
		return nil, err
	}

	retriever, err := setupIndex(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	reasoner, err := setupReasoner(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	mode, err := services.ParseIndexMode(cfg.Index.Mode)
	if err != nil {
		return nil, err
	}

	opts := []services.RunOption{
		services.WithLogger(logger),
		services.WithIndexMode(mode),
		services.WithMaxChunkLength(cfg.Document.MaxChunkLength),
		services.WithMaxQuestions(cfg.Run.MaxQuestions),
		services.WithTopK(cfg.Index.TopK),
		services.WithCategory(cfg.Document.Category),
		services.WithBatchConfig(llm.BatchConfig{
			TokenLimit:    cfg.Batch.TokenLimit,
			QueryOverhead: cfg.Batch.QueryOverhead,
		}),
	}

	if mode == services.IndexModeSkip {
		c, err := setupCache(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		opts = append(opts, services.WithCache(c, cfg.Cache.TTL))
	}

	if cfg.Archive.Enable {
		archive, err := setupArchive(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		opts = append(opts, services.WithArchive(archive))
	}

	if cfg.Database.Enable {
		dbCfg := database.DefaultConfig()
		dbCfg.DSN = cfg.Database.DSN
		db, err := database.Setup(dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		app.closers = append(app.closers, database.Close)
		opts = append(opts, services.WithRunRepository(repository.NewRunRepositoryWithDB(db)))
	}

	if cfg.Queue.Enable {
		queue, err := setupTaskQueue(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize task queue: %w", err)
		}
		app.queue = queue
		app.closers = append(app.closers, queue.Close)
		opts = append(opts, services.WithTaskQueue(queue))
	}

	app.service = services.NewRunService(fetcher, extractor, retriever, reasoner, opts...)
	ok = true
	return app, nil
}

// setupIndex 创建检索索引并确保索引存在
func setupIndex(cfg *qaconfig.Config, logger *logrus.Logger) (*index.Retriever, error) {
	indexCfg := index.DefaultConfig()
	indexCfg.Provider = cfg.Index.Provider
	indexCfg.APIKey = cfg.Index.APIKey
	indexCfg.IndexName = cfg.Index.Name
	indexCfg.TextField = cfg.Index.TextField
	indexCfg.Cloud = cfg.Index.Cloud
	indexCfg.Region = cfg.Index.Region
	indexCfg.EmbedModel = cfg.Index.EmbedModel
	indexCfg.Path = cfg.Index.Path
	indexCfg.EmbedURL = cfg.Index.EmbedURL
	indexCfg.EmbedAPIKey = cfg.Index.EmbedAPIKey
	indexCfg.EmbedBackend = cfg.Index.EmbedBackend
	if cfg.Index.ControlURL != "" {
		indexCfg.ControlURL = cfg.Index.ControlURL
	}
	if cfg.Index.Host != "" {
		indexCfg.Host = cfg.Index.Host
	}

	store, err := index.NewStore(indexCfg)
	if err != nil {
		return nil, err
	}

	retriever := index.NewRetriever(store,
		index.WithNamespace(cfg.Index.Namespace),
		index.WithIndexSpec(indexCfg.Spec()),
		index.WithBatchSize(cfg.Index.UpsertBatch),
		index.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := retriever.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return retriever, nil
}

// setupReasoner 设置大语言模型客户端和回答生成器
func setupReasoner(cfg *qaconfig.Config) (*llm.Reasoner, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	opts := []llm.Option{
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	}
	if cfg.LLM.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.Endpoint))
	}
	if cfg.LLM.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(cfg.LLM.Timeout))
	}

	client, err := llm.NewClient(cfg.LLM.Provider, opts...)
	if err != nil {
		return nil, err
	}

	return llm.NewReasoner(client,
		llm.WithReasonerMaxTokens(cfg.LLM.MaxTokens),
		llm.WithReasonerTemperature(cfg.LLM.Temperature),
		llm.WithRequestDelay(cfg.LLM.RequestDelay),
	), nil
}

// setupCache 设置已索引文档的缓存
func setupCache(cfg *qaconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Cache.Type
	cacheConfig.RedisAddr = cfg.Cache.RedisAddr
	cacheConfig.RedisPassword = cfg.Cache.RedisPassword
	cacheConfig.RedisDB = cfg.Cache.RedisDB
	if cfg.Cache.TTL > 0 {
		cacheConfig.DefaultTTL = cfg.Cache.TTL
	}
	return cache.NewCache(cacheConfig)
}

// setupArchive 设置文档归档存储
func setupArchive(cfg *qaconfig.Config) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type:  cfg.Archive.Type,
		Local: storage.LocalConfig{Path: cfg.Archive.Path},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
		},
	})
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *qaconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.Queue.RedisAddr
	queueConfig.RedisPassword = cfg.Queue.RedisPassword
	queueConfig.RedisDB = cfg.Queue.RedisDB
	queueConfig.Concurrency = cfg.Queue.Concurrency
	queueConfig.RetryLimit = cfg.Queue.RetryLimit
	queueConfig.RetryDelay = cfg.Queue.RetryDelay
	queueConfig.Logger = logger

	logger.WithFields(logrus.Fields{
		"redis_addr":  cfg.Queue.RedisAddr,
		"concurrency": cfg.Queue.Concurrency,
		"retry_limit": cfg.Queue.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue("redis", queueConfig)
}
