package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/policy-QA-system/internal/database"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/fyerfyer/policy-QA-system/internal/repository"
	"github.com/fyerfyer/policy-QA-system/pkg/taskqueue"
)

func setupRunRepo(t *testing.T) repository.RunRepository {
	dsn := fmt.Sprintf("file:services_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return repository.NewRunRepositoryWithDB(db)
}

func setupQueue(t *testing.T) taskqueue.Queue {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Logger = testLogger()
	queue, err := taskqueue.NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })
	return queue
}

func answeringIndex() *MockIndex {
	idx := new(MockIndex)
	idx.On("UpsertChunks", mock.Anything, mock.Anything, "", "unknown").Return(2, nil)
	idx.On("Query", mock.Anything, mock.Anything, 3, "").Return(testClauses, nil)
	return idx
}

func answeringReasoner() *MockExplainer {
	reasoner := new(MockExplainer)
	reasoner.On("Explain", mock.Anything, mock.Anything, testClauses).Return("Thirty days.", nil)
	return reasoner
}

func TestRunService_RecordsHistory(t *testing.T) {
	repo := setupRunRepo(t)
	svc := newTestService(pdfFetcher(), policyExtractor(), answeringIndex(), answeringReasoner(),
		WithRunRepository(repo))

	result, err := svc.Run(context.Background(), RunRequest{
		DocumentURL: testURL,
		Questions:   []string{qGrace, qMaternity},
	})
	require.NoError(t, err)

	run, err := svc.GetRun(result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, DocumentID(testURL), run.DocumentID)
	assert.Equal(t, 2, run.QuestionCount)
	assert.Equal(t, 2, run.Chunks)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	answers, err := run.GetAnswers()
	require.NoError(t, err)
	assert.Equal(t, result.Answers, answers)
}

func TestRunService_RecordsFailure(t *testing.T) {
	repo := setupRunRepo(t)
	idx := new(MockIndex)
	idx.On("UpsertChunks", mock.Anything, mock.Anything, "", "unknown").Return(0, errors.New("quota exceeded"))

	svc := newTestService(pdfFetcher(), policyExtractor(), idx, new(MockExplainer), WithRunRepository(repo))
	_, err := svc.Run(context.Background(), RunRequest{DocumentURL: testURL, Questions: []string{qGrace}})
	require.Error(t, err)

	runs, total, err := svc.ListRuns(1, 10, models.RunStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "quota exceeded")
}

func TestRunService_HistoryDisabled(t *testing.T) {
	svc := newTestService(pdfFetcher(), policyExtractor(), new(MockIndex), new(MockExplainer))

	_, err := svc.GetRun("missing")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, _, err = svc.ListRuns(1, 10, "")
	assert.ErrorIs(t, err, ErrHistoryDisabled)
	_, err = svc.Submit(context.Background(), testURL, []string{qGrace})
	assert.ErrorIs(t, err, ErrHistoryDisabled)

	svc = newTestService(pdfFetcher(), policyExtractor(), new(MockIndex), new(MockExplainer),
		WithRunRepository(setupRunRepo(t)))
	_, err = svc.Submit(context.Background(), testURL, []string{qGrace})
	assert.ErrorIs(t, err, ErrQueueDisabled)
}

func TestRunService_ListRunsInvalidStatus(t *testing.T) {
	svc := newTestService(pdfFetcher(), policyExtractor(), new(MockIndex), new(MockExplainer),
		WithRunRepository(setupRunRepo(t)))

	_, _, err := svc.ListRuns(1, 10, "paused")
	assert.ErrorIs(t, err, models.ErrInvalidRunStatus)
}

func TestRunService_SubmitAndProcess(t *testing.T) {
	ctx := context.Background()
	repo := setupRunRepo(t)
	queue := setupQueue(t)

	svc := newTestService(pdfFetcher(), policyExtractor(), answeringIndex(), answeringReasoner(),
		WithRunRepository(repo), WithTaskQueue(queue))

	_, err := svc.Submit(ctx, testURL, nil)
	assert.ErrorIs(t, err, ErrNoQuestions)

	run, err := svc.Submit(ctx, testURL, []string{qGrace, qMaternity})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, run.Status)
	require.NotEmpty(t, run.TaskID)

	stored, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.TaskID, stored.TaskID)

	task, err := queue.GetTask(ctx, run.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskHackrxRun, task.Type)
	assert.Equal(t, run.ID, task.RunID)

	handler := NewRunTaskHandler(svc)
	assert.Equal(t, []taskqueue.TaskType{taskqueue.TaskHackrxRun}, handler.GetTaskTypes())

	out, err := handler.ProcessTask(ctx, task)
	require.NoError(t, err)
	res, ok := out.(taskqueue.RunTaskResult)
	require.True(t, ok)
	assert.Equal(t, run.ID, res.RunID)
	assert.Equal(t, 2, res.Answers)
	assert.Zero(t, res.Failed)

	done, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, done.Status)
	answers, err := done.GetAnswers()
	require.NoError(t, err)
	assert.Equal(t, []string{"Thirty days.", "Thirty days."}, answers)
}

func TestRunService_WaitRun(t *testing.T) {
	ctx := context.Background()
	queue := setupQueue(t)
	svc := newTestService(pdfFetcher(), policyExtractor(), answeringIndex(), answeringReasoner(),
		WithRunRepository(setupRunRepo(t)), WithTaskQueue(queue))

	run, err := svc.Submit(ctx, testURL, []string{qGrace})
	require.NoError(t, err)

	// 没有工作者处理时，超时后返回当前状态
	pending, err := svc.WaitRun(ctx, run.ID, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, pending.Status)

	go func() {
		time.Sleep(100 * time.Millisecond)
		task, err := queue.GetTask(ctx, run.TaskID)
		if err != nil {
			return
		}
		result, err := NewRunTaskHandler(svc).ProcessTask(ctx, task)
		if err != nil {
			return
		}
		_ = queue.UpdateTaskStatus(ctx, run.TaskID, taskqueue.StatusCompleted, result, "")
		_ = queue.NotifyTaskUpdate(ctx, run.TaskID)
	}()

	done, err := svc.WaitRun(ctx, run.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, done.Status)

	_, err = svc.WaitRun(ctx, "missing", time.Second)
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

// inlineQueue 入队后立即同步处理任务，相当于工作者在Submit返回前就已完成
type inlineQueue struct {
	taskqueue.Queue
	handler taskqueue.Handler
}

func (q *inlineQueue) Enqueue(ctx context.Context, taskType taskqueue.TaskType, runID string, payload interface{}) (string, error) {
	taskID, err := q.Queue.Enqueue(ctx, taskType, runID, payload)
	if err != nil {
		return "", err
	}
	task, err := q.Queue.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	if _, err := q.handler.ProcessTask(ctx, task); err != nil {
		return "", err
	}
	return taskID, nil
}

func TestRunService_SubmitWorkerFinishesFirst(t *testing.T) {
	ctx := context.Background()
	queue := &inlineQueue{Queue: setupQueue(t)}

	svc := newTestService(pdfFetcher(), policyExtractor(), answeringIndex(), answeringReasoner(),
		WithRunRepository(setupRunRepo(t)), WithTaskQueue(queue))
	queue.handler = NewRunTaskHandler(svc)

	run, err := svc.Submit(ctx, testURL, []string{qGrace, qMaternity})
	require.NoError(t, err)
	require.NotEmpty(t, run.TaskID)

	stored, err := svc.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, run.TaskID, stored.TaskID)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 2, stored.Chunks)

	answers, err := stored.GetAnswers()
	require.NoError(t, err)
	assert.Equal(t, []string{"Thirty days.", "Thirty days."}, answers)
}

func TestRunTaskHandler_InvalidPayload(t *testing.T) {
	handler := NewRunTaskHandler(newTestService(pdfFetcher(), policyExtractor(), new(MockIndex), new(MockExplainer)))

	_, err := handler.ProcessTask(context.Background(), &taskqueue.Task{ID: "t1", Type: taskqueue.TaskHackrxRun})
	assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)

	_, err = handler.ProcessTask(context.Background(), &taskqueue.Task{
		ID:      "t2",
		Type:    taskqueue.TaskHackrxRun,
		Payload: []byte(`{"run_id":"r1","document_url":"","questions":["q"]}`),
	})
	assert.ErrorIs(t, err, ErrEmptyDocumentURL)
}
