package middleware

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

// 初始化日志配置
func init() {
	// 设置输出到标准输出
	log.SetOutput(os.Stdout)
	// 设置日志格式为JSON格式
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	// 根据环境变量设置日志级别
	if os.Getenv("DEBUG") == "true" {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// LogConfig 日志输出配置
type LogConfig struct {
	Level      string // 日志级别
	File       string // 日志文件路径，为空时只输出到标准输出
	MaxSize    int    // 单个文件最大大小(MB)
	MaxBackups int    // 保留的旧文件数
	MaxAge     int    // 旧文件保留天数
}

// ConfigureLogger 按配置调整进程日志
// DEBUG=true 时始终使用debug级别
func ConfigureLogger(cfg LogConfig) error {
	if cfg.Level != "" && os.Getenv("DEBUG") != "true" {
		level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}

	if cfg.File != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}))
	}
	return nil
}

// Logger 日志中间件
// 记录请求信息和响应时间
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(logrus.Fields{
			FieldStatus:   c.Writer.Status(),
			FieldLatency:  time.Since(start).String(),
			FieldClientIP: c.ClientIP(),
			FieldMethod:   c.Request.Method,
			FieldPath:     path,
			FieldTraceID:  TraceID(c),
			"user_agent":  c.Request.UserAgent(),
		}).Info("HTTP request")
	}
}

// RequestBodyLog 请求体日志中间件
// 在DEBUG模式下记录请求体内容
func RequestBodyLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if log.Level >= logrus.DebugLevel && c.Request.Body != nil {
			var buf bytes.Buffer
			tee := io.TeeReader(c.Request.Body, &buf)
			body, _ := io.ReadAll(tee)
			c.Request.Body = io.NopCloser(&buf)

			if len(body) > 0 {
				log.WithFields(logrus.Fields{
					FieldMethod:  c.Request.Method,
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
					"body":       string(body),
				}).Debug("Request body")
			}
		}

		c.Next()
	}
}

// SetTraceID 将追踪ID设置到上下文和响应头中
func SetTraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头中获取追踪ID
		traceID := c.GetHeader(HeaderTraceID)

		// 如果没有，则生成一个新的
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(contextTraceID, traceID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

// TraceID 返回请求的追踪ID
func TraceID(c *gin.Context) string {
	return c.GetString(contextTraceID)
}

// HeaderTraceID 追踪ID请求头
const HeaderTraceID = "X-Trace-ID"

const contextTraceID = "TraceID"

// 常用日志字段
const (
	FieldTraceID  = "trace_id"    // 追踪ID
	FieldPath     = "path"        // 请求路径
	FieldMethod   = "method"      // 请求方法
	FieldStatus   = "status_code" // 状态码
	FieldLatency  = "latency"     // 延迟时间
	FieldClientIP = "client_ip"   // 客户端IP
	FieldError    = "error"       // 错误信息
)

// GetLogger 返回进程日志记录器
func GetLogger() *logrus.Logger {
	return log
}
