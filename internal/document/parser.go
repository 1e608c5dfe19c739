package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// 文档处理相关错误
var (
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrEmptyDocument   = errors.New("document is empty")
	ErrNoTextExtracted = errors.New("no text could be extracted from document")
)

// Extractor 文档文本提取器接口
// 按页返回文档文本，只保留有文本的页面
type Extractor interface {
	// ExtractPages 从完整的文档字节中提取每页文本
	ExtractPages(data []byte) ([]string, error)

	// Name 返回提取器名称
	Name() string
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// 提取器名称
const (
	ExtractorLedongthuc = "ledongthuc"
	ExtractorPdfcpu     = "pdfcpu"
)

// NewExtractor 提取器工厂函数，根据名称创建对应的提取器
func NewExtractor(name string) (Extractor, error) {
	switch strings.ToLower(name) {
	case "", ExtractorLedongthuc:
		return NewPDFExtractor(), nil
	case ExtractorPdfcpu:
		return NewPdfcpuExtractor(), nil
	default:
		return nil, fmt.Errorf("%w: extractor %q", ErrUnsupportedType, name)
	}
}

// DetectContentType 根据文件头和文件名检测内容类型
// 文档URL经常不带扩展名，所以优先看魔数
func DetectContentType(data []byte, filename string) ContentType {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return PDF
	}
	if strings.EqualFold(path.Ext(filename), ".pdf") {
		return PDF
	}
	return Unknown
}

// readAllLimited 读取全部内容，超过上限时报错
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("document exceeds %d bytes", limit)
	}
	return data, nil
}
