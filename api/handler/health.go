package handler

import (
	"net/http"

	"github.com/fyerfyer/policy-QA-system/api/model"
	"github.com/gin-gonic/gin"
)

// 服务信息
const (
	ServiceName    = "Document Q&A API"
	ServiceVersion = "1.0.0"
)

// Root 根路径
// GET /
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{
		Message: ServiceName + " is running",
		Status:  "healthy",
	})
}

// Health 健康检查
// GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:  "healthy",
		Service: ServiceName,
		Version: ServiceVersion,
	})
}
