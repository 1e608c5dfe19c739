package model

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// RunRequest 文档问答请求
// questions 的数量由服务层校验，以返回明确的错误信息
type RunRequest struct {
	Documents string   `json:"documents" binding:"required,url"` // PDF文档地址
	Questions []string `json:"questions"`                        // 问题列表
}

// RunStatusRequest 运行记录查询请求
type RunStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 运行ID
}

// RunWaitRequest 运行记录长轮询参数，wait为等待秒数
type RunWaitRequest struct {
	Wait int `form:"wait" binding:"omitempty,min=0,max=60"`
}

// RunListRequest 运行记录列表请求
type RunListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty,oneof=queued running completed failed"` // 运行状态
}
