package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

// Submit 校验请求后创建排队中的运行记录并加入任务队列
func (s *RunService) Submit(ctx context.Context, documentURL string, questions []string) (*models.Run, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if s.queue == nil {
		return nil, ErrQueueDisabled
	}
	if err := s.Validate(RunRequest{DocumentURL: documentURL, Questions: questions}); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:          uuid.New().String(),
		DocumentURL: documentURL,
		DocumentID:  DocumentID(documentURL),
		Status:      models.RunStatusQueued,
	}
	if err := run.SetQuestions(questions); err != nil {
		return nil, fmt.Errorf("failed to encode questions: %w", err)
	}
	if err := s.repo.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskHackrxRun, run.ID, taskqueue.RunPayload{
		RunID:       run.ID,
		DocumentURL: documentURL,
		Questions:   questions,
	})
	if err != nil {
		if uerr := s.repo.UpdateStatus(run.ID, models.RunStatusFailed, err.Error()); uerr != nil {
			s.logger.WithError(uerr).Warn("Failed to mark run as failed")
		}
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}

	// 任务可能已被处理完，只写任务ID这一列
	run.TaskID = taskID
	if err := s.repo.UpdateTaskID(run.ID, taskID); err != nil {
		s.logger.WithError(err).Warn("Failed to save task id")
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"task_id":   taskID,
		"questions": len(questions),
	}).Info("Run queued")
	return run, nil
}

// GetRun 获取运行记录
func (s *RunService) GetRun(id string) (*models.Run, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	return s.repo.GetByID(id)
}

// MaxRunWait 长轮询最多等待的时间
const MaxRunWait = time.Minute

// WaitRun 等待运行结束后返回记录，超时则返回当前状态
func (s *RunService) WaitRun(ctx context.Context, id string, timeout time.Duration) (*models.Run, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run.Status.Finished() || s.queue == nil || run.TaskID == "" || timeout <= 0 {
		return run, nil
	}
	if timeout > MaxRunWait {
		timeout = MaxRunWait
	}

	if _, err := s.queue.WaitForTask(ctx, run.TaskID, timeout); err != nil && !errors.Is(err, taskqueue.ErrTaskTimeout) {
		s.logger.WithError(err).WithField("run_id", id).Warn("Failed to wait for run task")
	}
	return s.GetRun(id)
}

// ListRuns 分页列出运行记录，page从1开始
func (s *RunService) ListRuns(page, pageSize int, status models.RunStatus) ([]*models.Run, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryDisabled
	}
	if status != "" && !status.Valid() {
		return nil, 0, models.ErrInvalidRunStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.repo.List((page-1)*pageSize, pageSize, status)
}
