package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/policy-QA-system/api/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeUnauthorized = "UNAUTHORIZED_ERROR" // 未授权错误
	ErrorTypeNotFound     = "NOT_FOUND_ERROR"    // 资源不存在错误
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
	ErrorTypeBusiness     = "BUSINESS_ERROR"     // 业务逻辑错误
	ErrorTypeUnavailable  = "UNAVAILABLE_ERROR"  // 功能未启用
)

// 返回给客户端的通用错误描述
const (
	MsgInternalError = "An internal server error occurred"
	MsgInvalidAPIKey = "Invalid API key"
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息，作为响应的detail返回
	Details string // 详细错误信息，只记录日志
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError 创建业务逻辑错误
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewUnavailableError 创建功能未启用错误
func NewUnavailableError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					FieldError:   err,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: TraceID(c),
				}).Error("Panic recovered in API request")

				errResp := model.NewErrorResponse(ErrorTypeInternal, MsgInternalError)
				errResp.TraceID = TraceID(c)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// 取最后一个错误进行处理
		err := c.Errors.Last().Err
		traceID := TraceID(c)

		var appErr AppError
		switch e := err.(type) {
		case AppError:
			appErr = e
		case *AppError:
			appErr = *e
		default:
			appErr = NewInternalError(MsgInternalError, err.Error())
		}

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
			FieldStatus:  appErr.Code,
		})
		if appErr.Details != "" {
			entry = entry.WithField("details", appErr.Details)
		}
		if appErr.Code >= http.StatusInternalServerError {
			entry.Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		if appErr.Code == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", "Bearer")
		}

		errResp := model.NewErrorResponse(appErr.Type, appErr.Message)
		errResp.TraceID = traceID
		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}
