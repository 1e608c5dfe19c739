package api

import (
	"github.com/fyerfyer/policy-QA-system/api/handler"
	"github.com/fyerfyer/policy-QA-system/api/middleware"
	"github.com/gin-gonic/gin"
)

// RouterConfig 路由配置
type RouterConfig struct {
	APIKey      string // Bearer token
	EnableRuns  bool   // 是否注册 /api/runs 接口
	DebugBodies bool   // 是否记录请求体
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(runHandler *handler.RunHandler, cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// 应用全局中间件，追踪ID需要在日志和错误处理之前设置
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(Cors())

	if cfg.DebugBodies {
		router.Use(middleware.RequestBodyLog())
	}

	// 健康检查
	router.GET("/", handler.Root)
	router.GET("/health", handler.Health)

	auth := middleware.BearerAuth(cfg.APIKey)

	// 文档问答 - POST /hackrx/run
	router.POST("/hackrx/run", auth, runHandler.HackrxRun)

	if cfg.EnableRuns {
		runs := router.Group("/api/runs", auth)
		{
			// 异步提交 - POST /api/runs
			runs.POST("", runHandler.SubmitRun)

			// 运行记录列表 - GET /api/runs
			runs.GET("", runHandler.ListRuns)

			// 运行记录详情 - GET /api/runs/:id
			runs.GET("/:id", runHandler.GetRun)
		}
	}

	return router
}

// Cors 跨域资源共享中间件，允许所有来源
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
