package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// 归档对象前缀
const minioPrefix = "documents/"

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// 存储桶不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Save 流式上传文件到MinIO
func (s *MinioStorage) Save(reader io.Reader, id, filename string) (FileInfo, error) {
	if err := validateID(id); err != nil {
		return FileInfo{}, err
	}

	key := minioPrefix + objectName(id, filename)
	contentType := getMimeType(filename)

	info, err := s.client.PutObject(
		context.Background(),
		s.bucketName,
		key,
		reader,
		-1,
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: map[string]string{"filename": filename},
		},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     info.Size,
		MimeType: contentType,
		Path:     key,
	}, nil
}

// Get 获取MinIO中的文件
func (s *MinioStorage) Get(id string) (io.ReadCloser, error) {
	key, err := s.findObject(id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(context.Background(), s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Delete 从MinIO中删除文件
func (s *MinioStorage) Delete(id string) error {
	key, err := s.findObject(id)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(context.Background(), s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// List 列出归档的所有文件
func (s *MinioStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	objectCh := s.client.ListObjects(context.Background(), s.bucketName, minio.ListObjectsOptions{
		Prefix:    minioPrefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		name := path.Base(object.Key)
		files = append(files, FileInfo{
			ID:       idFromName(name),
			Name:     name,
			Size:     object.Size,
			MimeType: getMimeType(name),
			Path:     object.Key,
		})
	}
	return files, nil
}

// Exists 检查MinIO中是否存在指定ID的文件
func (s *MinioStorage) Exists(id string) (bool, error) {
	_, err := s.findObject(id)
	if err == nil {
		return true, nil
	}
	if err == ErrFileNotFound {
		return false, nil
	}
	return false, err
}

// findObject 按ID前缀查找对象
func (s *MinioStorage) findObject(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix: minioPrefix + id + ".",
	})
	for object := range objectCh {
		if object.Err != nil {
			return "", fmt.Errorf("error listing objects: %w", object.Err)
		}
		return object.Key, nil
	}
	return "", ErrFileNotFound
}
