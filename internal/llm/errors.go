package llm

import (
	"errors"
	"fmt"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code       int    // 错误码
	Message    string // 错误消息
	StatusCode int    // 上游HTTP状态码（如果有）
}

// Error 实现error接口
func (e LLMError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm error (code=%d, status=%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey     = 1001 // 无效的API密钥
	ErrCodeInvalidRequest    = 1002 // 无效的请求
	ErrCodeNetworkError      = 1003 // 网络连接错误
	ErrCodeRateLimited       = 1004 // 请求频率超限
	ErrCodeServerError       = 1005 // 服务器错误
	ErrCodeTimeout           = 1006 // 请求超时
	ErrCodeEmptyPrompt       = 1007 // 提示词为空
	ErrCodeHTTPStatus        = 1008 // 其他非2xx响应
	ErrCodeMalformedResponse = 1009 // 响应缺少预期字段
	ErrCodeDecodeError       = 1010 // 响应体无法解析
	ErrCodeUnknown           = 1011 // 未分类错误
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey     = "invalid API key"
	ErrMsgInvalidRequest    = "invalid request parameters"
	ErrMsgRateLimited       = "too many requests, rate limit exceeded"
	ErrMsgServerError       = "server error occurred"
	ErrMsgTimeout           = "request timed out"
	ErrMsgEmptyPrompt       = "prompt cannot be empty"
	ErrMsgNetworkError      = "network connection error"
	ErrMsgMalformedResponse = "response missing choices[0].message.content"
)

// 兜底回答
const (
	FallbackAPIError       = "Unable to process query due to API error."
	FallbackResponseFormat = "Unable to process query due to unexpected response format."
	FallbackTechnicalError = "Unable to process query due to technical error."
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}

// NewHTTPError 根据上游状态码创建错误
func NewHTTPError(statusCode int, message string) LLMError {
	code := ErrCodeHTTPStatus
	switch {
	case statusCode == 401 || statusCode == 403:
		code = ErrCodeInvalidAPIKey
	case statusCode == 429:
		code = ErrCodeRateLimited
	case statusCode >= 500:
		code = ErrCodeServerError
	}
	return LLMError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WrapError 包装普通错误为LLM错误
func WrapError(err error, code int) LLMError {
	if err == nil {
		return LLMError{Code: code, Message: "unknown error"}
	}

	// 如果已经是LLMError类型，则直接返回
	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	return LLMError{
		Code:    code,
		Message: err.Error(),
	}
}

// IsAPIError 判断是否为上游API调用失败（网络、HTTP状态、限流、超时）
func IsAPIError(err error) bool {
	var llmErr LLMError
	if !errors.As(err, &llmErr) {
		return false
	}
	switch llmErr.Code {
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError,
		ErrCodeTimeout, ErrCodeHTTPStatus, ErrCodeInvalidAPIKey:
		return true
	}
	return false
}

// IsMalformedResponse 判断是否为响应结构异常
func IsMalformedResponse(err error) bool {
	var llmErr LLMError
	return errors.As(err, &llmErr) && llmErr.Code == ErrCodeMalformedResponse
}

// FallbackAnswer 把生成失败映射为固定的兜底回答
func FallbackAnswer(err error) string {
	switch {
	case IsAPIError(err):
		return FallbackAPIError
	case IsMalformedResponse(err):
		return FallbackResponseFormat
	default:
		return FallbackTechnicalError
	}
}
