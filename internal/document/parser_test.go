package document

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createPDF 用gofpdf生成测试PDF，每个字符串一页，空字符串生成空白页
func createPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		if text != "" {
			pdf.MultiCell(0, 10, text, "", "", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatalf("Failed to write PDF: %v", err)
	}
	return buf.Bytes()
}

func TestNewExtractor(t *testing.T) {
	e, err := NewExtractor("")
	require.NoError(t, err)
	assert.Equal(t, ExtractorLedongthuc, e.Name())

	e, err = NewExtractor("pdfcpu")
	require.NoError(t, err)
	assert.Equal(t, ExtractorPdfcpu, e.Name())

	_, err = NewExtractor("docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PDF, DetectContentType([]byte("%PDF-1.4\n..."), "download"))
	assert.Equal(t, PDF, DetectContentType([]byte("garbage"), "policy.PDF"))
	assert.Equal(t, Unknown, DetectContentType([]byte("<html>"), "index.html"))
}

func TestPDFExtractor(t *testing.T) {
	data := createPDF(t,
		"Grace period of thirty days is provided for premium payment.",
		"",
		"Maternity expenses are covered after continuous coverage.",
	)

	extractor := NewPDFExtractor()
	pages, err := extractor.ExtractPages(data)
	require.NoError(t, err)

	// 空白页被丢弃
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "Grace")
	assert.Contains(t, pages[1], "Maternity")
}

func TestPDFExtractorInvalidInput(t *testing.T) {
	extractor := NewPDFExtractor()

	_, err := extractor.ExtractPages(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = extractor.ExtractPages([]byte("this is not a pdf"))
	assert.Error(t, err)
}

func TestPdfcpuExtractor(t *testing.T) {
	data := createPDF(t, "This is a PDF test.", "Second page.")

	extractor := NewPdfcpuExtractor()
	pages, err := extractor.ExtractPages(data)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	// pdfcpu输出的是内容流，文本出现在文本操作符里
	assert.True(t, strings.Contains(pages[0], "PDF test"), "unexpected page content: %s", pages[0])
	assert.True(t, strings.Contains(pages[1], "Second page"), "unexpected page content: %s", pages[1])
}
