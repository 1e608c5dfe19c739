package models

import "errors"

var (
	// ErrRunNotFound 运行记录不存在
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunStatus 无效的运行状态
	ErrInvalidRunStatus = errors.New("invalid run status")
)
