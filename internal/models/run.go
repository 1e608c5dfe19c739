package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 问答运行状态
type RunStatus string

const (
	// RunStatusQueued 已提交，等待处理
	RunStatusQueued RunStatus = "queued"
	// RunStatusRunning 处理中
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted 处理完成
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed 处理失败
	RunStatusFailed RunStatus = "failed"
)

// Valid 是否为已知状态
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Finished 是否已结束
func (s RunStatus) Finished() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run 一次文档问答的运行记录
type Run struct {
	ID            string         `gorm:"primaryKey;size:36"`     // 运行ID
	DocumentURL   string         `gorm:"type:text;not null"`     // 文档地址
	DocumentID    string         `gorm:"size:64;index"`          // 文档ID（地址的SHA-256）
	Status        RunStatus      `gorm:"size:20;not null;index"` // 状态
	Questions     datatypes.JSON `gorm:"type:json"`              // 问题列表
	Answers       datatypes.JSON `gorm:"type:json"`              // 答案列表，与问题一一对应
	QuestionCount int            `gorm:"not null;default:0"`     // 问题数量
	Pages         int            `gorm:"not null;default:0"`     // 提取到文本的页数
	Chunks        int            `gorm:"not null;default:0"`     // 分块数量
	Batches       int            `gorm:"not null;default:0"`     // 问题批次数
	Failed        int            `gorm:"not null;default:0"`     // 使用兜底答案的问题数
	DurationMs    int64          `gorm:"not null;default:0"`     // 耗时（毫秒）
	Error         string         `gorm:"type:text"`              // 错误信息
	TaskID        string         `gorm:"size:50;index"`          // 异步任务ID
	CreatedAt     time.Time      `gorm:"not null;index"`         // 创建时间
	UpdatedAt     time.Time      `gorm:"not null"`               // 更新时间
	CompletedAt   *time.Time     `gorm:"index"`                  // 结束时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = RunStatusQueued
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *Run) BeforeUpdate(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Run) TableName() string {
	return "runs"
}

// SetQuestions 写入问题列表
func (r *Run) SetQuestions(questions []string) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	r.Questions = datatypes.JSON(data)
	r.QuestionCount = len(questions)
	return nil
}

// GetQuestions 读取问题列表
func (r *Run) GetQuestions() ([]string, error) {
	return decodeStrings(r.Questions)
}

// SetAnswers 写入答案列表
func (r *Run) SetAnswers(answers []string) error {
	data, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	r.Answers = datatypes.JSON(data)
	return nil
}

// GetAnswers 读取答案列表
func (r *Run) GetAnswers() ([]string, error) {
	return decodeStrings(r.Answers)
}

// Finish 标记运行结束
func (r *Run) Finish(status RunStatus, errMsg string) {
	now := time.Now()
	r.Status = status
	r.Error = errMsg
	r.CompletedAt = &now
}

func decodeStrings(data datatypes.JSON) ([]string, error) {
	if len(data) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
