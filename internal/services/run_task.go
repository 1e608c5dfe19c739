package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

// RunTaskHandler 处理队列中的问答任务
type RunTaskHandler struct {
	service *RunService
}

// NewRunTaskHandler 创建问答任务处理器
func NewRunTaskHandler(service *RunService) *RunTaskHandler {
	return &RunTaskHandler{service: service}
}

// GetTaskTypes 返回支持的任务类型
func (h *RunTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskHackrxRun}
}

// ProcessTask 执行问答流程，结果写入运行记录
func (h *RunTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.RunPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.RunID == "" {
		payload.RunID = task.RunID
	}

	result, err := h.service.Run(ctx, RunRequest{
		RunID:       payload.RunID,
		DocumentURL: payload.DocumentURL,
		Questions:   payload.Questions,
	})
	if err != nil {
		return nil, err
	}

	return taskqueue.RunTaskResult{
		RunID:      result.RunID,
		Answers:    len(result.Answers),
		Failed:     result.Failed,
		Chunks:     result.Chunks,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}

var _ taskqueue.Handler = (*RunTaskHandler)(nil)
