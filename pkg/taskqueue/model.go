package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskHackrxRun 完整的文档问答任务
	TaskHackrxRun TaskType = "hackrx_run"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	RunID       string          `json:"run_id"`       // 关联的运行记录ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷
	Result      json.RawMessage `json:"result"`       // 任务结果
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// RunPayload 问答任务载荷
type RunPayload struct {
	RunID       string   `json:"run_id"`       // 运行记录ID
	DocumentURL string   `json:"document_url"` // 文档地址
	Questions   []string `json:"questions"`    // 问题列表
}

// RunTaskResult 问答任务结果
type RunTaskResult struct {
	RunID      string `json:"run_id"`      // 运行记录ID
	Answers    int    `json:"answers"`     // 答案数量
	Failed     int    `json:"failed"`      // 使用兜底答案的问题数
	Chunks     int    `json:"chunks"`      // 分块数量
	DurationMs int64  `json:"duration_ms"` // 耗时（毫秒）
}
