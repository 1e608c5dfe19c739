package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyerfyer/policy-QA-system/api/middleware"
	"github.com/fyerfyer/policy-QA-system/api/model"
	"github.com/fyerfyer/policy-QA-system/internal/models"
	"github.com/fyerfyer/policy-QA-system/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RunService 处理器依赖的问答服务，由 services.RunService 实现
type RunService interface {
	Run(ctx context.Context, req services.RunRequest) (*services.RunResult, error)
	Submit(ctx context.Context, documentURL string, questions []string) (*models.Run, error)
	GetRun(id string) (*models.Run, error)
	WaitRun(ctx context.Context, id string, timeout time.Duration) (*models.Run, error)
	ListRuns(page, pageSize int, status models.RunStatus) ([]*models.Run, int64, error)
	MaxQuestions() int
}

var _ RunService = (*services.RunService)(nil)

// 问答失败时返回给客户端的描述
const (
	MsgNoQuestions    = "At least one question must be provided"
	MsgTooMany        = "Too many questions. Maximum %d questions allowed per request."
	MsgNoText         = "Could not extract text from the provided document URL"
	MsgNoChunks       = "Could not create text chunks from the document"
	MsgInvalidRequest = "Invalid request body"
	MsgUnexpected     = "An unexpected error occurred while processing the document"
)

// RunHandler 处理文档问答相关的API请求
type RunHandler struct {
	service RunService     // 问答服务
	logger  *logrus.Logger // 日志记录器
}

// NewRunHandler 创建新的问答处理器
func NewRunHandler(service RunService) *RunHandler {
	return &RunHandler{
		service: service,
		logger:  middleware.GetLogger(),
	}
}

// HackrxRun 同步执行文档问答
// POST /hackrx/run
func (h *RunHandler) HackrxRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError(MsgInvalidRequest, err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"document":              req.Documents,
		"questions":             len(req.Questions),
		middleware.FieldTraceID: middleware.TraceID(c),
	}).Info("Processing document")

	result, err := h.service.Run(c.Request.Context(), services.RunRequest{
		DocumentURL: req.Documents,
		Questions:   req.Questions,
	})
	if err != nil {
		middleware.HandleError(c, h.mapError(err))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":                result.RunID,
		"answers":               len(result.Answers),
		"failed":                result.Failed,
		middleware.FieldTraceID: middleware.TraceID(c),
	}).Info("Successfully processed questions")

	c.JSON(http.StatusOK, model.RunResponse{Answers: result.Answers})
}

// mapError 将服务层错误转换为HTTP错误
func (h *RunHandler) mapError(err error) middleware.AppError {
	switch {
	case errors.Is(err, services.ErrNoQuestions):
		return middleware.NewValidationError(MsgNoQuestions)
	case errors.Is(err, services.ErrTooManyQuestions):
		return middleware.NewValidationError(fmt.Sprintf(MsgTooMany, h.service.MaxQuestions()))
	case errors.Is(err, services.ErrEmptyDocumentURL):
		return middleware.NewValidationError(MsgInvalidRequest, err.Error())
	case errors.Is(err, services.ErrDocumentUnavailable), errors.Is(err, services.ErrNoText):
		return middleware.NewBusinessError(MsgNoText, err.Error())
	case errors.Is(err, services.ErrNoChunks):
		return middleware.NewBusinessError(MsgNoChunks)
	case errors.Is(err, services.ErrHistoryDisabled), errors.Is(err, services.ErrQueueDisabled):
		return middleware.NewUnavailableError(err.Error())
	case errors.Is(err, models.ErrRunNotFound):
		return middleware.NewNotFoundError("Run not found")
	case errors.Is(err, models.ErrInvalidRunStatus):
		return middleware.NewValidationError(err.Error())
	default:
		return middleware.NewInternalError(MsgUnexpected, err.Error())
	}
}
