package services

import "errors"

// 问答流程的错误
// 校验和文档类错误对应客户端错误，其余为服务端错误
var (
	ErrEmptyDocumentURL    = errors.New("document URL cannot be empty")
	ErrNoQuestions         = errors.New("at least one question must be provided")
	ErrTooManyQuestions    = errors.New("too many questions")
	ErrDocumentUnavailable = errors.New("could not download or parse the document")
	ErrNoText              = errors.New("could not extract text from the provided document URL")
	ErrNoChunks            = errors.New("could not create text chunks from the document")
	ErrIndexFailed         = errors.New("failed to index document chunks")
	ErrRetrievalFailed     = errors.New("failed to retrieve context from index")
	ErrHistoryDisabled     = errors.New("run history is not enabled")
	ErrQueueDisabled       = errors.New("task queue is not enabled")
)

// IsClientError 是否由请求内容导致的错误
func IsClientError(err error) bool {
	for _, target := range []error{
		ErrEmptyDocumentURL,
		ErrNoQuestions,
		ErrTooManyQuestions,
		ErrDocumentUnavailable,
		ErrNoText,
		ErrNoChunks,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
