package handler

import (
	"net/http"
	"time"

	"github.com/fyerfyer/policy-QA-system/api/middleware"
	"github.com/fyerfyer/policy-QA-system/api/model"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SubmitRun 异步提交文档问答
// POST /api/runs
func (h *RunHandler) SubmitRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError(MsgInvalidRequest, err.Error()))
		return
	}

	run, err := h.service.Submit(c.Request.Context(), req.Documents, req.Questions)
	if err != nil {
		middleware.HandleError(c, h.mapError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":                run.ID,
		"task_id":               run.TaskID,
		middleware.FieldTraceID: middleware.TraceID(c),
	}).Info("Run submitted")

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.RunSubmitResponse{
		RunID:  run.ID,
		TaskID: run.TaskID,
		Status: string(run.Status),
	}))
}

// GetRun 查询运行记录，带wait参数时等待运行结束
// GET /api/runs/:id?wait=30
func (h *RunHandler) GetRun(c *gin.Context) {
	var req model.RunStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Run ID is required"))
		return
	}

	var wait model.RunWaitRequest
	if err := c.ShouldBindQuery(&wait); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	var (
		run *models.Run
		err error
	)
	if wait.Wait > 0 {
		run, err = h.service.WaitRun(c.Request.Context(), req.ID, time.Duration(wait.Wait)*time.Second)
	} else {
		run, err = h.service.GetRun(req.ID)
	}
	if err != nil {
		middleware.HandleError(c, h.mapError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewRunInfo(run, true)))
}

// ListRuns 分页列出运行记录
// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	page, pageSize := req.GetPage(), req.GetPageSize()
	runs, total, err := h.service.ListRuns(page, pageSize, models.RunStatus(req.Status))
	if err != nil {
		middleware.HandleError(c, h.mapError(err))
		return
	}

	infos := make([]model.RunInfo, 0, len(runs))
	for _, run := range runs {
		infos = append(infos, model.NewRunInfo(run, false))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Runs:     infos,
	}))
}
