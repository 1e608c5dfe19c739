package document

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"
)

// ErrFetchFailed 文档下载失败
var ErrFetchFailed = errors.New("failed to fetch document")

// DefaultMaxDocumentBytes 默认允许下载的最大文档大小（50MB）
const DefaultMaxDocumentBytes int64 = 50 << 20

// Document 下载得到的原始文档
type Document struct {
	URL         string      // 来源URL
	FileName    string      // 从URL路径推断出的文件名
	ContentType ContentType // 检测到的内容类型
	Data        []byte      // 原始字节
}

// FetcherConfig 下载器配置
type FetcherConfig struct {
	Timeout  time.Duration // 请求超时
	MaxBytes int64         // 最大下载字节数
}

// Fetcher 文档下载接口
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Document, error)
}

// HTTPFetcher 通过HTTP GET下载文档
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher 创建HTTP下载器
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxDocumentBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch 下载文档的全部字节
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid document URL %q", ErrFetchFailed, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/pdf, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := readAllLimited(resp.Body, f.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, ErrEmptyDocument)
	}

	fileName := path.Base(u.Path)
	if fileName == "" || fileName == "/" || fileName == "." {
		fileName = "document.pdf"
	}

	return &Document{
		URL:         rawURL,
		FileName:    fileName,
		ContentType: DetectContentType(data, fileName),
		Data:        data,
	}, nil
}
