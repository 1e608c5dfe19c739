package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Index    IndexConfig    `mapstructure:"index"`
	Document DocumentConfig `mapstructure:"document"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Run      RunConfig      `mapstructure:"run"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`                                     // 服务器主机
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`          // 服务器端口
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // gin运行模式
	APIKey       string        `mapstructure:"api_key"`                                  // Bearer token
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`                             // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`                            // 写入超时，需覆盖整次问答
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"` // 日志级别
	File       string `mapstructure:"file"`                                                                   // 日志文件，为空时只输出到标准输出
	MaxSize    int    `mapstructure:"max_size"`                                                               // 单个文件最大大小(MB)
	MaxBackups int    `mapstructure:"max_backups"`                                                            // 保留的旧文件数
	MaxAge     int    `mapstructure:"max_age"`                                                                // 旧文件保留天数
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider     string        `mapstructure:"provider" validate:"oneof=groq openai"` // 提供商
	Model        string        `mapstructure:"model" validate:"required"`             // 模型名称
	APIKey       string        `mapstructure:"api_key"`                               // API密钥
	Endpoint     string        `mapstructure:"endpoint"`                              // API端点
	MaxTokens    int           `mapstructure:"max_tokens" validate:"min=1"`           // 最大生成token数量
	Temperature  float32       `mapstructure:"temperature" validate:"min=0,max=2"`    // 采样温度
	RequestDelay time.Duration `mapstructure:"request_delay"`                         // 每次调用前的等待
	Timeout      time.Duration `mapstructure:"timeout"`                               // 请求超时
}

// IndexConfig 检索索引配置
type IndexConfig struct {
	Provider     string `mapstructure:"provider" validate:"oneof=pinecone chromem"`             // 实现
	APIKey       string `mapstructure:"api_key"`                                                // API密钥
	Name         string `mapstructure:"name" validate:"required"`                               // 索引名称
	Namespace    string `mapstructure:"namespace" validate:"required"`                          // 命名空间
	Cloud        string `mapstructure:"cloud"`                                                  // 云厂商
	Region       string `mapstructure:"region"`                                                 // 区域
	EmbedModel   string `mapstructure:"embed_model"`                                            // 集成的向量化模型
	TextField    string `mapstructure:"text_field" validate:"required"`                         // 文本字段
	TopK         int    `mapstructure:"top_k" validate:"min=1"`                                 // 每个问题检索的条款数
	Mode         string `mapstructure:"mode" validate:"oneof=append replace skip"`              // 写入方式
	UpsertBatch  int    `mapstructure:"upsert_batch" validate:"min=1,max=95"`                   // 单次upsert记录数
	ControlURL   string `mapstructure:"control_url"`                                            // 控制面地址
	Host         string `mapstructure:"host"`                                                   // 数据面地址
	Path         string `mapstructure:"path"`                                                   // chromem持久化目录
	EmbedBackend string `mapstructure:"embed_backend" validate:"omitempty,oneof=openai ollama"` // chromem向量化后端
	EmbedURL     string `mapstructure:"embed_endpoint"`                                         // chromem向量化服务地址
	EmbedAPIKey  string `mapstructure:"embed_api_key"`                                          // chromem向量化服务密钥
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	MaxChunkLength int           `mapstructure:"max_chunk_length" validate:"min=1"`            // 分块最大长度
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`                                // 下载超时
	MaxBytes       int64         `mapstructure:"max_bytes" validate:"min=1"`                   // 最大下载字节数
	Extractor      string        `mapstructure:"extractor" validate:"oneof=ledongthuc pdfcpu"` // PDF文本提取器
	Category       string        `mapstructure:"category"`                                     // 写入记录的分类
}

// BatchConfig 问题分批配置
type BatchConfig struct {
	TokenLimit    int `mapstructure:"token_limit" validate:"min=1"`    // 单批次估算token上限
	QueryOverhead int `mapstructure:"query_overhead" validate:"min=1"` // 每个问题的估算开销
}

// RunConfig 问答流程配置
type RunConfig struct {
	MaxQuestions int `mapstructure:"max_questions" validate:"min=1"` // 单次请求最大问题数
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type          string        `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	RedisAddr     string        `mapstructure:"redis_addr"`                         // Redis地址
	RedisPassword string        `mapstructure:"redis_password"`                     // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`                           // Redis数据库
	TTL           time.Duration `mapstructure:"ttl"`                                // 已索引标记的有效期
}

// ArchiveConfig 文档归档配置
type ArchiveConfig struct {
	Enable    bool   `mapstructure:"enable"`                            // 是否归档下载的文档
	Type      string `mapstructure:"type" validate:"oneof=local minio"` // 存储类型
	Path      string `mapstructure:"path"`                              // 本地存储路径
	Bucket    string `mapstructure:"bucket"`                            // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"`                          // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// DatabaseConfig 运行记录数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否记录运行历史
	DSN    string `mapstructure:"dsn"`    // 数据源名称
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`                       // 是否启用任务队列
	RedisAddr     string        `mapstructure:"redis_addr"`                   // Redis地址
	RedisPassword string        `mapstructure:"redis_password"`               // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`                     // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"` // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit" validate:"min=0"` // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`                  // 重试延迟
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enable bool `mapstructure:"enable"` // 是否输出span到标准输出
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("path", configPath).Warn("Config file not found, using defaults")
	} else {
		logrus.WithField("path", v.ConfigFileUsed()).Info("Using config file")
	}

	// 支持环境变量覆盖，如 SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验配置
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Queue.Enable && !cfg.Database.Enable {
		return fmt.Errorf("invalid config: queue.enable requires database.enable")
	}
	return nil
}

// processEnvironmentVariables 展开密钥类配置中的 ${ENV} 占位符
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Server.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Index.APIKey,
		&cfg.Index.EmbedAPIKey,
		&cfg.Cache.RedisPassword,
		&cfg.Queue.RedisPassword,
		&cfg.Archive.AccessKey,
		&cfg.Archive.SecretKey,
	} {
		*field = expandPlaceholder(*field)
	}
}

// expandPlaceholder 整个值为 ${NAME} 时替换为环境变量，未设置时为空
func expandPlaceholder(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.api_key", "${API_KEY}")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)

	// LLM默认配置
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama3-70b-8192")
	v.SetDefault("llm.api_key", "${GROQ_API_KEY}")
	v.SetDefault("llm.endpoint", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.request_delay", "3s")
	v.SetDefault("llm.timeout", "60s")

	// 索引默认配置
	v.SetDefault("index.provider", "pinecone")
	v.SetDefault("index.api_key", "${PINECONE_API_KEY}")
	v.SetDefault("index.name", "test-index")
	v.SetDefault("index.namespace", "policy-pdf")
	v.SetDefault("index.cloud", "aws")
	v.SetDefault("index.region", "us-east-1")
	v.SetDefault("index.embed_model", "llama-text-embed-v2")
	v.SetDefault("index.text_field", "chunk_text")
	v.SetDefault("index.top_k", 3)
	v.SetDefault("index.mode", "append")
	v.SetDefault("index.upsert_batch", 95)
	v.SetDefault("index.control_url", "https://api.pinecone.io")
	v.SetDefault("index.host", "")
	v.SetDefault("index.path", "")
	v.SetDefault("index.embed_backend", "")
	v.SetDefault("index.embed_endpoint", "")
	v.SetDefault("index.embed_api_key", "")

	// 文档处理默认配置
	v.SetDefault("document.max_chunk_length", 90)
	v.SetDefault("document.fetch_timeout", "60s")
	v.SetDefault("document.max_bytes", 50<<20)
	v.SetDefault("document.extractor", "ledongthuc")
	v.SetDefault("document.category", "")

	// 分批默认配置
	v.SetDefault("batch.token_limit", 4000)
	v.SetDefault("batch.query_overhead", 120)
	v.SetDefault("run.max_questions", 50)

	// 缓存默认配置
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	// 归档默认配置
	v.SetDefault("archive.enable", false)
	v.SetDefault("archive.type", "local")
	v.SetDefault("archive.path", "./data/documents")
	v.SetDefault("archive.bucket", "policy-documents")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "${MINIO_ACCESS_KEY}")
	v.SetDefault("archive.secret_key", "${MINIO_SECRET_KEY}")
	v.SetDefault("archive.use_ssl", false)

	// 数据库默认配置
	v.SetDefault("database.enable", false)
	v.SetDefault("database.dsn", "data/runs.db")

	// 队列默认配置，问答任务调用付费接口，默认不重试
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.retry_limit", 0)
	v.SetDefault("queue.retry_delay", "1m")

	v.SetDefault("tracing.enable", false)
}
