package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpu导出的内容文件以页码结尾，例如 input_Content_page_12.txt
var pageFilePattern = regexp.MustCompile(`(\d+)\.txt$`)

// PdfcpuExtractor 基于 pdfcpu 的内容流提取器
type PdfcpuExtractor struct{}

// NewPdfcpuExtractor 创建一个新的pdfcpu提取器
func NewPdfcpuExtractor() Extractor {
	return &PdfcpuExtractor{}
}

// Name 返回提取器名称
func (p *PdfcpuExtractor) Name() string {
	return ExtractorPdfcpu
}

// ExtractPages 提取PDF每一页的内容流文本
func (p *PdfcpuExtractor) ExtractPages(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// 创建临时目录用于存放输入文件和提取的文本
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inFile := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(inFile, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(inFile, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted text dir: %w", err)
	}

	type pageFile struct {
		page int
		name string
	}
	var files []pageFile
	for _, e := range entries {
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		files = append(files, pageFile{page: n, name: e.Name()})
	}

	// 按页码排序，文件名的字典序在第10页之后会乱
	sort.Slice(files, func(i, j int) bool {
		return files[i].page < files[j].page
	})

	var pages []string
	for _, f := range files {
		raw, err := os.ReadFile(filepath.Join(outDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", f.page, err)
		}
		text := string(raw)
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}

	return pages, nil
}
