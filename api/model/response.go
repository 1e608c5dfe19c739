package model

import (
	"time"

	"github.com/fyerfyer/policy-QA-system/internal/models"
)

// Response 通用响应结构，用于 /api 下的接口
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`              // 错误类型
	Detail  string `json:"detail"`             // 错误描述
	TraceID string `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(errType, detail string) *ErrorResponse {
	return &ErrorResponse{
		Error:  errType,
		Detail: detail,
	}
}

// RunResponse 文档问答响应，答案与问题一一对应
type RunResponse struct {
	Answers []string `json:"answers"`
}

// RootResponse 根路径响应
type RootResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// RunSubmitResponse 异步提交响应
type RunSubmitResponse struct {
	RunID  string `json:"run_id"`  // 运行ID
	TaskID string `json:"task_id"` // 任务ID
	Status string `json:"status"`  // 当前状态
}

// RunInfo 运行记录信息
type RunInfo struct {
	RunID       string     `json:"run_id"`                 // 运行ID
	DocumentURL string     `json:"document_url"`           // 文档地址
	DocumentID  string     `json:"document_id"`            // 文档ID
	Status      string     `json:"status"`                 // 状态
	TaskID      string     `json:"task_id,omitempty"`      // 异步任务ID
	Questions   []string   `json:"questions,omitempty"`    // 问题列表
	Answers     []string   `json:"answers,omitempty"`      // 答案列表
	Chunks      int        `json:"chunks"`                 // 分块数量
	Failed      int        `json:"failed"`                 // 使用兜底答案的问题数
	DurationMs  int64      `json:"duration_ms"`            // 耗时
	Error       string     `json:"error,omitempty"`        // 错误信息
	CreatedAt   time.Time  `json:"created_at"`             // 创建时间
	CompletedAt *time.Time `json:"completed_at,omitempty"` // 结束时间
}

// NewRunInfo 从运行记录构造响应，detail为false时不包含问题和答案
func NewRunInfo(run *models.Run, detail bool) RunInfo {
	info := RunInfo{
		RunID:       run.ID,
		DocumentURL: run.DocumentURL,
		DocumentID:  run.DocumentID,
		Status:      string(run.Status),
		TaskID:      run.TaskID,
		Chunks:      run.Chunks,
		Failed:      run.Failed,
		DurationMs:  run.DurationMs,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		CompletedAt: run.CompletedAt,
	}
	if detail {
		info.Questions, _ = run.GetQuestions()
		info.Answers, _ = run.GetAnswers()
	}
	return info
}

// RunListResponse 运行记录列表响应
type RunListResponse struct {
	Total    int64     `json:"total"`     // 总数量
	Page     int       `json:"page"`      // 当前页码
	PageSize int       `json:"page_size"` // 每页大小
	Runs     []RunInfo `json:"runs"`      // 运行记录
}
