package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/policy-QA-system/internal/database"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")
	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")
	return db
}

func newRun(t *testing.T, id string, status models.RunStatus, created time.Time) *models.Run {
	run := &models.Run{
		ID:          id,
		DocumentURL: "https://example.com/" + id + ".pdf",
		DocumentID:  "doc-" + id,
		Status:      status,
		CreatedAt:   created,
	}
	require.NoError(t, run.SetQuestions([]string{"What is the grace period?", "Is maternity covered?"}))
	return run
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))

	run := newRun(t, "run-1", "", time.Now())
	require.NoError(t, repo.Create(run))

	saved, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, saved.Status)
	assert.Equal(t, 2, saved.QuestionCount)

	questions, err := saved.GetQuestions()
	require.NoError(t, err)
	assert.Equal(t, []string{"What is the grace period?", "Is maternity covered?"}, questions)

	answers, err := saved.GetAnswers()
	require.NoError(t, err)
	assert.Empty(t, answers)

	_, err = repo.GetByID("missing")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	assert.Error(t, repo.Create(&models.Run{}))
}

func TestRunRepository_SaveResult(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))

	run := newRun(t, "run-2", models.RunStatusQueued, time.Now())
	require.NoError(t, repo.Create(run))
	require.NoError(t, repo.MarkRunning("run-2", "doc-new"))

	result := &models.Run{ID: "run-2", Chunks: 42, Pages: 7, Batches: 1}
	require.NoError(t, result.SetAnswers([]string{"Thirty days.", "Yes, after 24 months."}))
	result.Finish(models.RunStatusCompleted, "")
	require.NoError(t, repo.SaveResult(result))

	saved, err := repo.GetByID("run-2")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, saved.Status)
	assert.Equal(t, "doc-new", saved.DocumentID)
	assert.Equal(t, 42, saved.Chunks)
	assert.Equal(t, 2, saved.QuestionCount)
	assert.NotNil(t, saved.CompletedAt)

	answers, err := saved.GetAnswers()
	require.NoError(t, err)
	assert.Equal(t, []string{"Thirty days.", "Yes, after 24 months."}, answers)

	assert.ErrorIs(t, repo.SaveResult(&models.Run{ID: "run-2", Status: "done"}), models.ErrInvalidRunStatus)
	assert.ErrorIs(t, repo.MarkRunning("missing", "doc"), models.ErrRunNotFound)
}

func TestRunRepository_UpdateTaskIDKeepsResult(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newRun(t, "run-t", models.RunStatusQueued, time.Now())))

	// 任务在提交方写入任务ID之前就已完成
	result := &models.Run{ID: "run-t", Chunks: 3}
	require.NoError(t, result.SetAnswers([]string{"a", "b"}))
	result.Finish(models.RunStatusCompleted, "")
	require.NoError(t, repo.SaveResult(result))

	require.NoError(t, repo.UpdateTaskID("run-t", "task-9"))

	saved, err := repo.GetByID("run-t")
	require.NoError(t, err)
	assert.Equal(t, "task-9", saved.TaskID)
	assert.Equal(t, models.RunStatusCompleted, saved.Status)
	assert.Equal(t, 3, saved.Chunks)
	answers, err := saved.GetAnswers()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, answers)

	assert.ErrorIs(t, repo.UpdateTaskID("missing", "task-1"), models.ErrRunNotFound)
}

func TestRunRepository_UpdateStatus(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newRun(t, "run-3", models.RunStatusQueued, time.Now())))

	require.NoError(t, repo.UpdateStatus("run-3", models.RunStatusFailed, "could not extract text"))
	saved, err := repo.GetByID("run-3")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, saved.Status)
	assert.Equal(t, "could not extract text", saved.Error)
	assert.NotNil(t, saved.CompletedAt)

	assert.ErrorIs(t, repo.UpdateStatus("missing", models.RunStatusRunning, ""), models.ErrRunNotFound)
	assert.ErrorIs(t, repo.UpdateStatus("run-3", "bogus", ""), models.ErrInvalidRunStatus)
}

func TestRunRepository_List(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		status := models.RunStatusCompleted
		if i%2 == 1 {
			status = models.RunStatusFailed
		}
		require.NoError(t, repo.Create(newRun(t, fmt.Sprintf("run-%d", i), status, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, total, err := repo.List(0, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, runs, 2)
	// 新记录在前
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)

	runs, total, err = repo.List(2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, "run-2", runs[0].ID)

	runs, total, err = repo.List(0, 10, models.RunStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, runs, 2)

	_, _, err = repo.List(0, 10, "unknown")
	assert.ErrorIs(t, err, models.ErrInvalidRunStatus)
}
