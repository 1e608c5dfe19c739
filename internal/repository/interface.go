package repository

import "github.com/fyerfyer/policy-QA-system/internal/models"

// RunRepository 运行记录仓储接口
type RunRepository interface {
	// Create 创建运行记录
	Create(run *models.Run) error

	// UpdateTaskID 只写入异步任务ID
	UpdateTaskID(id, taskID string) error

	// MarkRunning 标记为处理中并写入文档ID
	MarkRunning(id, documentID string) error

	// SaveResult 只写入运行结果相关的列（状态、答案、统计、错误、结束时间）
	SaveResult(run *models.Run) error

	// GetByID 根据ID获取运行记录
	GetByID(id string) (*models.Run, error)

	// List 按创建时间倒序列出运行记录，status为空时不过滤
	List(offset, limit int, status models.RunStatus) ([]*models.Run, int64, error)

	// UpdateStatus 更新状态和错误信息
	UpdateStatus(id string, status models.RunStatus, errorMsg string) error
}
