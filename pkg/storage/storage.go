package storage

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrFileNotFound 文件不存在
var ErrFileNotFound = errors.New("file not found")

// FileInfo 文件元数据结构
type FileInfo struct {
	ID       string // 文件标识符（文档ID）
	Name     string // 原始文件名
	Size     int64  // 文件大小(字节)
	MimeType string // 文件MIME类型
	Path     string // 内部存储路径(实现相关)
}

// Storage 文档归档存储接口
// 以调用方给出的ID保存文件，相同ID再次保存会覆盖
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(reader io.Reader, id, filename string) (FileInfo, error)

	// Get 获取文件内容
	Get(id string) (io.ReadCloser, error)

	// Delete 删除文件
	Delete(id string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(id string) (bool, error)
}

// Config 存储配置
type Config struct {
	Type  string      // local 或 minio
	Local LocalConfig // 本地存储配置
	Minio MinioConfig // MinIO配置
}

// New 根据配置创建存储实现
func New(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		s, err := NewLocalStorage(cfg.Local)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "minio":
		s, err := NewMinioStorage(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// validateID 拒绝可能逃逸存储目录的ID
func validateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\*?[`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid file id: %q", id)
	}
	return nil
}

// objectName 文件名为 ID加原扩展名
func objectName(id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return id + ext
}

// idFromName 从存储文件名提取ID
func idFromName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// getMimeType 简单根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
