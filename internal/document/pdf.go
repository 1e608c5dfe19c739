package document

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor 基于 ledongthuc/pdf 的逐页文本提取器
type PDFExtractor struct{}

// NewPDFExtractor 创建一个新的PDF提取器
func NewPDFExtractor() Extractor {
	return &PDFExtractor{}
}

// Name 返回提取器名称
func (p *PDFExtractor) Name() string {
	return ExtractorLedongthuc
}

// ExtractPages 提取PDF每一页的纯文本
// 没有文本的页面会被丢弃，返回的页面顺序与文档一致
func (p *PDFExtractor) ExtractPages(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// 该库在遇到损坏的文件时可能直接panic
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}

		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}

	return pages, nil
}
