package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	basePath string // 基础存储路径
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path string // 本地存储路径
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: absPath}, nil
}

// shardDir 按ID前两位分目录，避免单目录文件过多
func (s *LocalStorage) shardDir(id string) string {
	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.basePath, shard)
}

// Save 保存文件到本地存储
func (s *LocalStorage) Save(reader io.Reader, id, filename string) (FileInfo, error) {
	if err := validateID(id); err != nil {
		return FileInfo{}, err
	}

	dirPath := s.shardDir(id)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	// 先写临时文件再改名，避免读到写了一半的文件
	tmp, err := os.CreateTemp(dirPath, ".upload-*")
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	name := objectName(id, filename)
	if err := os.Rename(tmp.Name(), filepath.Join(dirPath, name)); err != nil {
		return FileInfo{}, fmt.Errorf("failed to store file: %w", err)
	}

	relPath, _ := filepath.Rel(s.basePath, filepath.Join(dirPath, name))
	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     size,
		MimeType: getMimeType(filename),
		Path:     relPath,
	}, nil
}

// Get 获取文件内容
func (s *LocalStorage) Get(id string) (io.ReadCloser, error) {
	filePath, err := s.findFilePathByID(id)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete 删除文件
func (s *LocalStorage) Delete(id string) error {
	filePath, err := s.findFilePathByID(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List 列出所有文件
func (s *LocalStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Base(path)[0] == '.' {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		name := filepath.Base(path)
		files = append(files, FileInfo{
			ID:       idFromName(name),
			Name:     name,
			Size:     info.Size(),
			MimeType: getMimeType(name),
			Path:     relPath,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// Exists 检查文件是否存在
func (s *LocalStorage) Exists(id string) (bool, error) {
	_, err := s.findFilePathByID(id)
	if err == nil {
		return true, nil
	}
	if err == ErrFileNotFound {
		return false, nil
	}
	return false, err
}

// findFilePathByID 根据ID查找文件路径
func (s *LocalStorage) findFilePathByID(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(s.shardDir(id), id+".*"))
	if err != nil {
		return "", fmt.Errorf("error searching for file: %w", err)
	}
	if len(matches) == 0 {
		return "", ErrFileNotFound
	}
	return matches[0], nil
}
