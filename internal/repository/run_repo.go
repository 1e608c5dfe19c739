package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/policy-QA-system/internal/database"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"gorm.io/gorm"
)

// 单页最多返回的记录数
const maxPageSize = 100

// runRepository 运行记录仓储实现
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 使用全局数据库连接创建仓储
func NewRunRepository() RunRepository {
	return &runRepository{db: database.MustDB()}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建仓储
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建运行记录
func (r *runRepository) Create(run *models.Run) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	return r.db.Create(run).Error
}

// UpdateTaskID 写入异步任务ID，不触碰其他列
func (r *runRepository) UpdateTaskID(id, taskID string) error {
	return r.updateColumns(id, map[string]interface{}{
		"task_id": taskID,
	})
}

// MarkRunning 标记为处理中
func (r *runRepository) MarkRunning(id, documentID string) error {
	return r.updateColumns(id, map[string]interface{}{
		"status":      models.RunStatusRunning,
		"document_id": documentID,
	})
}

// SaveResult 写入运行结果
func (r *runRepository) SaveResult(run *models.Run) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("%w: %s", models.ErrInvalidRunStatus, run.Status)
	}
	return r.updateColumns(run.ID, map[string]interface{}{
		"status":       run.Status,
		"error":        run.Error,
		"answers":      run.Answers,
		"pages":        run.Pages,
		"chunks":       run.Chunks,
		"batches":      run.Batches,
		"failed":       run.Failed,
		"duration_ms":  run.DurationMs,
		"completed_at": run.CompletedAt,
	})
}

// GetByID 根据ID获取运行记录
func (r *runRepository) GetByID(id string) (*models.Run, error) {
	var run models.Run
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出运行记录
func (r *runRepository) List(offset, limit int, status models.RunStatus) ([]*models.Run, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	query := r.db.Model(&models.Run{})
	if status != "" {
		if !status.Valid() {
			return nil, 0, fmt.Errorf("%w: %s", models.ErrInvalidRunStatus, status)
		}
		query = query.Where("status = ?", string(status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []*models.Run
	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// UpdateStatus 更新状态，结束状态会同时写入结束时间
func (r *runRepository) UpdateStatus(id string, status models.RunStatus, errorMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %s", models.ErrInvalidRunStatus, status)
	}

	updates := map[string]interface{}{
		"status": status,
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		updates["completed_at"] = time.Now()
	}
	return r.updateColumns(id, updates)
}

// updateColumns 只更新给定的列，异步任务和提交方会并发写同一条记录
func (r *runRepository) updateColumns(id string, updates map[string]interface{}) error {
	if id == "" {
		return errors.New("run ID cannot be empty")
	}
	updates["updated_at"] = time.Now()

	result := r.db.Model(&models.Run{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}
